package agent

import (
	"fmt"
	"time"

	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kinds"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/nip4"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
)

// Result is a decrypted direct message received over the channel.
type Result struct {
	Kind    kind.T
	Sender  string
	Content string
}

// None is returned by ReceiveMessage when the timeout elapses with no
// matching message. Timing out is a valid terminal state, not an error.
var None = &Result{}

// SendMessage encrypts content to the recipient (hex or npub) and
// publishes it as a direct message event of kind k with a "p" tag naming
// the recipient. The send time becomes the lower bound for subsequent
// ReceiveMessage calls.
func (a *T) SendMessage(c context.T, k kind.T, recipient, content string) (
	id eventid.T, err error) {
	if recipient, err = keys.ParsePublicKey(recipient); chk.E(err) {
		return
	}
	var ss []byte
	if ss, err = nip4.ComputeSharedSecret(recipient, a.sec); chk.E(err) {
		return
	}
	var enc string
	if enc, err = nip4.Encrypt(content, ss); chk.E(err) {
		return
	}
	now := timestamp.Now()
	ev := &event.T{
		CreatedAt: now,
		Kind:      k,
		Tags:      tags.T{tag.T{"p", recipient}},
		Content:   enc,
	}
	if id, err = a.Publish(c, ev); err != nil {
		return
	}
	a.lastSend.Store(now.I64())
	return
}

// ReceiveMessage waits up to timeout for a direct message addressed to
// this agent and created no earlier than the last send, returning the
// decrypted first match. When the timeout elapses without one it returns
// the None sentinel and no error. Messages that fail to decrypt are
// logged and skipped.
func (a *T) ReceiveMessage(c context.T, timeout time.Duration) (
	res *Result, err error) {
	ctx, cancel := context.Timeout(c, timeout)
	defer cancel()
	since := timestamp.FromUnix(a.lastSend.Load())
	var sub *subscription.T
	sub, err = a.relay.Subscribe(ctx, filters.T{{
		Kinds: kinds.T{kind.EncryptedDirectMessage},
		Tags:  filter.TagMap{"p": tag.T{a.pub}},
		Since: since.Ptr(),
	}})
	if chk.E(err) {
		return nil, fmt.Errorf("subscribe for messages: %w", err)
	}
	defer sub.Unsub()
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return None, nil
			}
			var msg string
			if msg, err = a.decrypt(ev); err != nil {
				log.D.F("skipping message %s: %v", ev.ID, err)
				err = nil
				continue
			}
			return &Result{
				Kind:    ev.Kind,
				Sender:  ev.PubKey,
				Content: msg,
			}, nil
		case <-ctx.Done():
			return None, nil
		}
	}
}

func (a *T) decrypt(ev *event.T) (msg string, err error) {
	var ss []byte
	if ss, err = nip4.ComputeSharedSecret(ev.PubKey, a.sec); err != nil {
		return
	}
	return nip4.Decrypt(ev.Content, ss)
}
