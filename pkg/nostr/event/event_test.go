package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Hubmakerlabs/agentstr/pkg/hex"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
	"github.com/btcsuite/btcd/btcec/v2"
	"lukechampine.com/frand"
)

func testSecKey(t *testing.T) string {
	t.Helper()
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return hex.Enc(sk.Serialize())
}

func TestCanonicalForm(t *testing.T) {
	ev := &T{
		PubKey:    "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		CreatedAt: timestamp.T(1700000000),
		Kind:      kind.TextNote,
		Tags:      tags.T{{"t", "greeting"}},
		Content:   "hello \"world\"",
	}
	want := `[0,"79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",1700000000,1,[["t","greeting"]],"hello \"world\""]`
	if got := string(ev.ToCanonical()); got != want {
		t.Fatalf("canonical form mismatch:\ngot  %s\nwant %s", got, want)
	}
}

func TestCanonicalNilTags(t *testing.T) {
	ev := &T{Kind: kind.TextNote, Content: "x"}
	want := `[0,"",0,1,[],"x"]`
	if got := string(ev.ToCanonical()); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestSignVerify(t *testing.T) {
	sk := testSecKey(t)
	ev := &T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.TextNote,
		Content:   "signed note",
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	if len(ev.ID) != 64 || len(ev.PubKey) != 64 || len(ev.Sig) != 128 {
		t.Fatalf("unexpected field lengths id=%d pubkey=%d sig=%d",
			len(ev.ID), len(ev.PubKey), len(ev.Sig))
	}
	if err := ev.Verify(); err != nil {
		t.Fatalf("freshly signed event does not verify: %v", err)
	}
}

func TestVerifyTamperedContent(t *testing.T) {
	sk := testSecKey(t)
	ev := &T{CreatedAt: timestamp.Now(), Kind: kind.TextNote, Content: "a"}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	ev.Content = "b"
	if err := ev.Verify(); !errors.Is(err, ErrIDMismatch) {
		t.Fatalf("expected ErrIDMismatch, got %v", err)
	}
}

func TestVerifyForeignSignature(t *testing.T) {
	ev := &T{CreatedAt: timestamp.Now(), Kind: kind.TextNote, Content: "a"}
	if err := ev.Sign(testSecKey(t)); err != nil {
		t.Fatal(err)
	}
	other := &T{CreatedAt: ev.CreatedAt, Kind: ev.Kind, Content: "a"}
	if err := other.Sign(testSecKey(t)); err != nil {
		t.Fatal(err)
	}
	// graft the other signer's sig onto the first event
	ev.Sig = other.Sig
	if err := ev.Verify(); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	sk := testSecKey(t)
	ev := &T{
		CreatedAt: timestamp.T(1700000000),
		Kind:      kind.StallDefinition,
		Tags:      tags.T{{"d", "stall-1"}, {"t", "books"}},
		Content:   `{"name":"bookshop"}`,
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatal(err)
	}
	var back T
	if err := json.Unmarshal(ev.Serialize(), &back); err != nil {
		t.Fatal(err)
	}
	if back.ID != ev.ID || back.PubKey != ev.PubKey ||
		back.CreatedAt != ev.CreatedAt || back.Kind != ev.Kind ||
		back.Content != ev.Content || back.Sig != ev.Sig {
		t.Fatalf("round trip mismatch: %v vs %v", back, ev)
	}
	if err := back.Verify(); err != nil {
		t.Fatalf("round tripped event does not verify: %v", err)
	}
}

func TestRandomContentRoundTrip(t *testing.T) {
	sk := testSecKey(t)
	for i := 0; i < 16; i++ {
		ev := &T{
			CreatedAt: timestamp.Now(),
			Kind:      kind.TextNote,
			Content:   hex.Enc(frand.Bytes(1 + frand.Intn(256))),
		}
		if err := ev.Sign(sk); err != nil {
			t.Fatal(err)
		}
		var back T
		if err := json.Unmarshal(ev.Serialize(), &back); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if back.Content != ev.Content {
			t.Fatalf("round %d: content mismatch", i)
		}
		if err := back.Verify(); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
}
