package subscription

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/envelope"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// Relay is what a subscription needs from the relay client that owns it.
// Defined here so the client package can depend on subscriptions without a
// cycle.
type Relay interface {
	URL() string
	IsConnected() bool
	Write(msg []byte) chan error
	Delete(subID string)
}

type T struct {
	Label   string
	Counter int

	Relay   Relay
	Filters filters.T

	// the Events channel emits all EVENTs that come in a subscription, it
	// will be closed when the subscription ends
	Events chan *event.T
	mu     sync.Mutex

	// the EndOfStoredEvents channel gets closed when an EOSE comes for that
	// subscription
	EndOfStoredEvents chan struct{}

	// the ClosedReason channel emits the reason when a CLOSED message is
	// received
	ClosedReason chan string

	// Context will be .Done() when the subscription ends
	Context context.T

	live   atomic.Bool
	eosed  atomic.Bool
	closed atomic.Bool
	Cancel context.F

	// this keeps track of the events we've received before the EOSE that we
	// must dispatch before closing the EndOfStoredEvents channel
	storedwg sync.WaitGroup
}

// Option is passed when creating a subscription.
type Option interface {
	IsSubscriptionOption()
}

// WithLabel puts a label on the subscription (it is prepended to the
// automatic id) that is sent to relays.
type WithLabel string

func (_ WithLabel) IsSubscriptionOption() {}

var _ Option = (WithLabel)("")

// GetID returns the nostr subscription ID as given to the relay, a
// concatenation of the label and a serial number.
func (sub *T) GetID() string {
	return sub.Label + ":" + strconv.Itoa(sub.Counter)
}

func (sub *T) Start() {
	<-sub.Context.Done()
	// the subscription ends once the context is canceled (if not already)
	sub.Unsub() // this will set sub.live to false

	// do this so we don't have the possibility of closing the Events
	// channel and then trying to send to it
	sub.mu.Lock()
	close(sub.Events)
	sub.mu.Unlock()
}

func (sub *T) DispatchEvent(evt *event.T) {
	added := false
	if !sub.eosed.Load() {
		sub.storedwg.Add(1)
		added = true
	}
	go func() {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.live.Load() {
			select {
			case sub.Events <- evt:
			case <-sub.Context.Done():
			}
		}
		if added {
			sub.storedwg.Done()
		}
	}()
}

func (sub *T) DispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		go func() {
			sub.storedwg.Wait()
			sub.EndOfStoredEvents <- struct{}{}
		}()
	}
}

func (sub *T) DispatchClosed(reason string) {
	if sub.closed.CompareAndSwap(false, true) {
		go func() {
			sub.ClosedReason <- reason
		}()
	}
}

// Unsub closes the subscription, sending "CLOSE" to relay as in NIP-01.
func (sub *T) Unsub() {
	// cancel the context (if it's not canceled already)
	sub.Cancel()

	// mark subscription as closed and send a CLOSE to the relay (naïve
	// sync.Once implementation)
	if sub.live.CompareAndSwap(true, false) {
		sub.Close()
	}

	// remove subscription from the relay's map
	sub.Relay.Delete(sub.GetID())
}

// Close just sends a CLOSE message. You probably want Unsub() instead.
func (sub *T) Close() {
	if sub.Relay.IsConnected() {
		id := sub.GetID()
		closeb, _ := (&envelope.Close{SubscriptionID: id}).MarshalJSON()
		log.D.F("{%s} sending %v", sub.Relay.URL(), string(closeb))
		<-sub.Relay.Write(closeb)
	}
}

// Sub sets sub.Filters and then calls sub.Fire. The subscription will be
// closed if the context expires.
func (sub *T) Sub(_ context.T, f filters.T) {
	sub.Filters = f
	chk.E(sub.Fire())
}

// Fire sends the "REQ" command to the relay.
func (sub *T) Fire() error {
	id := sub.GetID()

	reqb, _ := (&envelope.Req{
		SubscriptionID: id,
		Filters:        sub.Filters,
	}).MarshalJSON()
	log.D.F("{%s} sending %v", sub.Relay.URL(), string(reqb))

	sub.live.Store(true)
	if err := <-sub.Relay.Write(reqb); err != nil {
		sub.Cancel()
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}
