package client

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/connection"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/envelope"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

var subscriptionIDCounter atomic.Int32

// T is a client connection to one relay. All writes are funneled through a
// single queue goroutine, received envelopes are dispatched to the
// subscriptions that own them.
type T struct {
	closeMutex              sync.Mutex
	url                     string
	RequestHeader           http.Header // e.g. for origin header
	Connection              *connection.C
	Subscriptions           *xsync.MapOf[string, *subscription.T]
	ConnectionError         error
	ConnectionContext       context.T // canceled when connection closes
	ConnectionContextCancel context.F
	notices                 chan string // NIP-01 NOTICEs
	okCallbacks             *xsync.MapOf[string, func(bool, string)]
	writeQueue              chan writeRequest

	// AssumeValid skips verifying signatures of events from this relay.
	AssumeValid bool
}

func (r *T) URL() string { return r.url }

func (r *T) Delete(key string) { r.Subscriptions.Delete(key) }

var _ subscription.Relay = (*T)(nil)

type writeRequest struct {
	msg    []byte
	answer chan error
}

// When instantiating relay connections, some options may be passed.

// Option is the type of the argument passed for that.
type Option interface {
	IsRelayOption()
}

// WithNoticeHandler just takes notices and is expected to do something with
// them. When not given, defaults to logging the notices.
type WithNoticeHandler func(notice string)

func (_ WithNoticeHandler) IsRelayOption() {}

var _ Option = (WithNoticeHandler)(nil)

// NewRelay returns a new relay. The relay connection will be closed when
// the context is canceled.
func NewRelay(c context.T, url string, opts ...Option) *T {
	ctx, cancel := context.Cancel(c)
	r := &T{
		url:                     normalize.URL(url),
		ConnectionContext:       ctx,
		ConnectionContextCancel: cancel,
		Subscriptions:           xsync.NewMapOf[*subscription.T](),
		okCallbacks:             xsync.NewMapOf[func(bool, string)](),
		writeQueue:              make(chan writeRequest),
	}

	for _, opt := range opts {
		switch o := opt.(type) {
		case WithNoticeHandler:
			r.notices = make(chan string)
			go func() {
				for n := range r.notices {
					o(n)
				}
			}()
		}
	}

	return r
}

// Connect returns a relay object connected to url. Once successfully
// connected, cancelling ctx has no effect. To close the connection, call
// r.Close().
func Connect(c context.T, url string, opts ...Option) (*T, error) {
	r := NewRelay(c, url, opts...)
	err := r.Connect(c)
	return r, err
}

// String just returns the relay URL.
func (r *T) String() string {
	return r.url
}

// Context retrieves the context that is associated with this relay
// connection.
func (r *T) Context() context.T { return r.ConnectionContext }

// IsConnected returns true if the connection to this relay seems to be
// active.
func (r *T) IsConnected() bool { return r.ConnectionContext.Err() == nil }

// Connect tries to establish a websocket connection to r.URL. If the
// context expires before the connection is complete, an error is returned.
// Once successfully connected, context expiration has no effect: call
// r.Close to close the connection.
func (r *T) Connect(c context.T) (err error) {
	if r.ConnectionContext == nil || r.Subscriptions == nil {
		return fmt.Errorf(
			"relay must be initialized with a call to NewRelay()")
	}
	if r.url == "" {
		return fmt.Errorf("invalid relay URL '%s'", r.URL())
	}
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.F
		c, cancel = context.Timeout(c, 7*time.Second)
		defer cancel()
	}
	var conn *connection.C
	conn, err = connection.NewConnection(c, r.url, r.RequestHeader)
	if err != nil {
		return fmt.Errorf("error opening websocket to '%s': %w", r.URL(),
			err)
	}
	r.Connection = conn
	// ping every 29 seconds
	ticker := time.NewTicker(29 * time.Second)
	// to be used when the connection is closed
	go func() {
		<-r.ConnectionContext.Done()
		// close these things when the connection is closed
		if r.notices != nil {
			close(r.notices)
		}
		// stop the ticker
		ticker.Stop()
		// close all subscriptions
		r.Subscriptions.Range(func(_ string, sub *subscription.T) bool {
			go sub.Unsub()
			return true
		})
	}()

	// queue all write operations here so we don't do mutex spaghetti
	go func() {
		var err error
		for {
			select {
			case <-ticker.C:
				err = wsutil.WriteClientMessage(r.Connection.Conn,
					ws.OpPing, nil)
				if err != nil {
					log.D.F("{%s} error writing ping: %v; closing websocket",
						r.URL(), err)
					chk.D(r.Close()) // should trigger a context cancelation
					return
				}
			case wr := <-r.writeQueue:
				if wr.msg == nil {
					return
				}
				// all write requests go through this to prevent races
				if err = r.Connection.WriteMessage(wr.msg); err != nil {
					wr.answer <- err
				}
				close(wr.answer)
			case <-r.ConnectionContext.Done():
				// stop here
				return
			}
		}
	}()

	// general message reader loop
	go r.MessageReadLoop(conn)
	return nil
}

func (r *T) MessageReadLoop(conn *connection.C) {
	buf := new(bytes.Buffer)
	var err error
	for {
		buf.Reset()
		if err = conn.ReadMessage(r.ConnectionContext, buf); err != nil {
			r.ConnectionError = err
			chk.D(r.Close())
			break
		}

		message := buf.Bytes()
		env := envelope.ParseMessage(message)
		if env == nil {
			continue
		}

		switch env := env.(type) {
		case *envelope.Notice:
			// see WithNoticeHandler
			if r.notices != nil {
				r.notices <- env.Message
			} else {
				log.D.F("NOTICE from %s: '%s'", r.URL(), env.Message)
			}
		case *envelope.Event:
			if env.SubscriptionID == "" {
				continue
			}
			s, ok := r.Subscriptions.Load(env.SubscriptionID)
			if !ok {
				log.D.F("{%s} no subscription with id '%s'",
					r.URL(), env.SubscriptionID)
				continue
			}
			// check if the event matches the desired filter, ignore
			// otherwise
			if !s.Filters.Match(env.Event) {
				log.D.F("{%s} filter does not match: %v ~ %v",
					r.URL(), s.Filters, env.Event)
				continue
			}
			// check signature, ignore invalid, except from trusted
			// (AssumeValid) relays
			if !r.AssumeValid {
				if ok, err = env.Event.CheckSignature(); !ok {
					errmsg := ""
					if chk.D(err) {
						errmsg = err.Error()
					}
					log.D.F("{%s} bad signature on %s; %s",
						r.URL(), env.Event.ID, errmsg)
					continue
				}
			}
			// dispatch this to the internal events channel of the
			// subscription
			s.DispatchEvent(env.Event)
		case *envelope.EOSE:
			if s, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
				s.DispatchEose()
			}
		case *envelope.Closed:
			if s, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
				s.DispatchClosed(env.Reason)
			}
		case *envelope.OK:
			if okCallback, exist := r.okCallbacks.Load(
				env.EventID.String()); exist {
				okCallback(env.OK, env.Reason)
			} else {
				log.D.F("{%s} got an unexpected OK message for event %s",
					r.URL(), env.EventID)
			}
		}
	}
}

// Write queues a message to be sent to the relay.
func (r *T) Write(msg []byte) (ch chan error) {
	ch = make(chan error)
	timeout := time.After(time.Second * 5)
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-r.ConnectionContext.Done():
		ch <- fmt.Errorf("connection closed")
	case <-timeout:
		ch <- fmt.Errorf("write timed out")
		return
	}
	return
}

// Publish sends an "EVENT" command to the relay r as in NIP-01 and waits
// for an OK response.
func (r *T) Publish(c context.T, ev *event.T) (err error) {
	var cancel context.F
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 4 seconds
		c, cancel = context.Timeout(c, 4*time.Second)
		defer cancel()
	} else {
		// otherwise make the context cancellable so we can stop everything
		// upon receiving an "OK"
		c, cancel = context.Cancel(c)
		defer cancel()
	}
	id := ev.ID.String()
	// listen for an OK callback
	gotOk := false
	r.okCallbacks.Store(id, func(ok bool, reason string) {
		gotOk = true
		if !ok {
			err = log.E.Err("msg: %s", reason)
		}
		cancel()
	})
	defer r.okCallbacks.Delete(id)
	// publish event
	var enb []byte
	enb, _ = (&envelope.Event{Event: ev}).MarshalJSON()
	if err = <-r.Write(enb); err != nil {
		return err
	}
	for {
		select {
		case <-c.Done():
			// called when we get an OK or when the context is canceled
			if gotOk {
				return err
			}
			return c.Err()
		case <-r.ConnectionContext.Done():
			// this is caused when we lose connectivity
			return err
		}
	}
}

// Subscribe sends a "REQ" command to the relay r as in NIP-01. Events are
// returned through the channel sub.Events. The subscription is closed when
// context ctx is cancelled ("CLOSE" in NIP-01).
//
// Remember to cancel subscriptions, either by calling `.Unsub()` on them
// or ensuring their `context.T` will be canceled at some point. Failure to
// do that will result in a huge number of halted goroutines being created.
func (r *T) Subscribe(c context.T, f filters.T,
	opts ...subscription.Option) (*subscription.T, error) {

	sub := r.PrepareSubscription(c, f, opts...)

	if err := sub.Fire(); err != nil {
		return nil, fmt.Errorf("couldn't subscribe to %v at %s: %w", f,
			r.URL(), err)
	}

	return sub, nil
}

// PrepareSubscription creates a subscription, but doesn't fire it.
func (r *T) PrepareSubscription(c context.T, f filters.T,
	opts ...subscription.Option) *subscription.T {

	if r.Connection == nil {
		panic(fmt.Errorf(
			"must call .Connect() first before calling .Subscribe()"))
	}

	current := subscriptionIDCounter.Add(1)
	ctx, cancel := context.Cancel(c)

	sub := &subscription.T{
		Relay:             r,
		Context:           ctx,
		Cancel:            cancel,
		Counter:           int(current),
		Events:            make(chan *event.T),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan string, 1),
		Filters:           f,
	}

	for _, opt := range opts {
		switch o := opt.(type) {
		case subscription.WithLabel:
			sub.Label = string(o)
		}
	}

	id := sub.GetID()
	r.Subscriptions.Store(id, sub)

	// start handling events, eose, unsub etc:
	go sub.Start()

	return sub
}

// QuerySync subscribes with a single filter and collects events until EOSE
// or the context deadline, then unsubscribes.
func (r *T) QuerySync(c context.T, f *filter.T,
	opts ...subscription.Option) ([]*event.T, error) {
	sub, err := r.Subscribe(c, filters.T{f}, opts...)
	if err != nil {
		return nil, err
	}

	defer sub.Unsub()

	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.F
		c, cancel = context.Timeout(c, 7*time.Second)
		defer cancel()
	}

	var events []*event.T
	for {
		select {
		case evt := <-sub.Events:
			if evt == nil {
				log.D.Ln("channel is closed")
				return events, nil
			}
			events = append(events, evt)
		case <-sub.EndOfStoredEvents:
			return events, nil
		case <-c.Done():
			return events, nil
		}
	}
}

func (r *T) Close() error {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()

	if r.ConnectionContextCancel == nil {
		return fmt.Errorf("relay not connected")
	}

	r.ConnectionContextCancel()
	r.ConnectionContextCancel = nil
	return r.Connection.Conn.Close()
}
