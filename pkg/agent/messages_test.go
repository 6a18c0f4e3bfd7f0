package agent

import (
	"testing"
	"time"

	"github.com/Hubmakerlabs/agentstr/pkg/context"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/nip4"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
	"github.com/stretchr/testify/require"
)

func encryptedTo(t *testing.T, senderSec, recipientPub, msg string) *event.T {
	t.Helper()
	ss, err := nip4.ComputeSharedSecret(recipientPub, senderSec)
	require.NoError(t, err)
	enc, err := nip4.Encrypt(msg, ss)
	require.NoError(t, err)
	ev := &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.EncryptedDirectMessage,
		Tags:      tags.T{tag.T{"p", recipientPub}},
		Content:   enc,
	}
	require.NoError(t, ev.Sign(senderSec))
	return ev
}

func TestSendMessageEncrypts(t *testing.T) {
	f := newFakeRelay()
	a, _ := newTestAgent(t, f)
	peerSec := keys.GeneratePrivateKey()
	peerPub, err := keys.GetPublicKey(peerSec)
	require.NoError(t, err)

	id, err := a.SendMessage(context.Bg(), kind.EncryptedDirectMessage,
		peerPub, "order: one first edition")
	require.NoError(t, err)
	ev := f.lastPublished()
	require.Equal(t, id, ev.ID)
	require.Equal(t, kind.EncryptedDirectMessage, ev.Kind)
	pt := ev.Tags.GetFirst([]string{"p"})
	require.NotNil(t, pt)
	require.Equal(t, peerPub, pt.Value())
	// ciphertext on the wire, plaintext only after the peer's ECDH
	require.NotContains(t, ev.Content, "first edition")
	ss, err := nip4.ComputeSharedSecret(a.PublicKey(), peerSec)
	require.NoError(t, err)
	msg, err := nip4.Decrypt(ev.Content, ss)
	require.NoError(t, err)
	require.Equal(t, "order: one first edition", msg)
}

func TestReceiveMessage(t *testing.T) {
	f := newFakeRelay()
	a, _ := newTestAgent(t, f)
	peerSec := keys.GeneratePrivateKey()
	peerPub, err := keys.GetPublicKey(peerSec)
	require.NoError(t, err)

	f.live <- encryptedTo(t, peerSec, a.PublicKey(), "confirmed")
	res, err := a.ReceiveMessage(context.Bg(), 3*time.Second)
	require.NoError(t, err)
	require.NotEqual(t, None, res)
	require.Equal(t, kind.EncryptedDirectMessage, res.Kind)
	require.Equal(t, peerPub, res.Sender)
	require.Equal(t, "confirmed", res.Content)
}

func TestReceiveMessageTimeoutReturnsNone(t *testing.T) {
	f := newFakeRelay()
	a, _ := newTestAgent(t, f)
	start := time.Now()
	res, err := a.ReceiveMessage(context.Bg(), 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, None, res)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestReceiveMessageSkipsUndecryptable(t *testing.T) {
	f := newFakeRelay()
	a, _ := newTestAgent(t, f)
	peerSec := keys.GeneratePrivateKey()
	_, err := keys.GetPublicKey(peerSec)
	require.NoError(t, err)

	garbled := encryptedTo(t, peerSec, a.PublicKey(), "ignored")
	// ciphertext is not a whole number of cipher blocks
	garbled.Content = "bm90dmFsaWQ=?iv=AAAAAAAAAAAAAAAAAAAAAA=="
	require.NoError(t, garbled.Sign(peerSec))
	f.live <- garbled
	f.live <- encryptedTo(t, peerSec, a.PublicKey(), "readable")

	res, err := a.ReceiveMessage(context.Bg(), 3*time.Second)
	require.NoError(t, err)
	require.Equal(t, "readable", res.Content)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	fBuyer := newFakeRelay()
	fSeller := newFakeRelay()
	buyer, _ := newTestAgent(t, fBuyer)
	seller, _ := newTestAgent(t, fSeller)

	_, err := buyer.SendMessage(context.Bg(), kind.EncryptedDirectMessage,
		seller.PublicKey(), "one coffee please")
	require.NoError(t, err)
	fSeller.live <- fBuyer.lastPublished()

	req, err := seller.ReceiveMessage(context.Bg(), 3*time.Second)
	require.NoError(t, err)
	require.Equal(t, "one coffee please", req.Content)
	require.Equal(t, buyer.PublicKey(), req.Sender)

	_, err = seller.SendMessage(context.Bg(), kind.EncryptedDirectMessage,
		req.Sender, "coming right up")
	require.NoError(t, err)
	fBuyer.live <- fSeller.lastPublished()

	resp, err := buyer.ReceiveMessage(context.Bg(), 3*time.Second)
	require.NoError(t, err)
	require.Equal(t, "coming right up", resp.Content)
	require.Equal(t, seller.PublicKey(), resp.Sender)
}
