package nip26

import (
	"errors"
	"testing"

	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/keys"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
)

func grant(t *testing.T, allowed []kind.T, createdAt,
	expiresAt timestamp.T) (d *Delegation, ev *event.T, delegatorSec string) {
	t.Helper()
	delegatorSec = keys.GeneratePrivateKey()
	delegateeSec := keys.GeneratePrivateKey()
	delegateePub, err := keys.GetPublicKey(delegateeSec)
	if err != nil {
		t.Fatal(err)
	}
	if d, err = New(delegatorSec, delegateePub, allowed, createdAt,
		expiresAt); err != nil {
		t.Fatal(err)
	}
	if ev, err = d.GrantEvent(delegatorSec); err != nil {
		t.Fatal(err)
	}
	return
}

func TestParseValidGrant(t *testing.T) {
	now := timestamp.Now()
	want, ev, _ := grant(t,
		[]kind.T{kind.StallDefinition, kind.ProductDefinition},
		now-3600, now+3600)
	d, err := Parse(ev)
	if err != nil {
		t.Fatal(err)
	}
	if d.Delegator != want.Delegator || d.Delegatee != want.Delegatee {
		t.Fatalf("key mismatch: %+v vs %+v", d, want)
	}
	if d.Conditions != want.Conditions {
		t.Fatalf("conditions not byte-identical: %q vs %q", d.Conditions,
			want.Conditions)
	}
	if len(d.AllowedKinds) != 2 {
		t.Fatalf("allowed kinds: %v", d.AllowedKinds)
	}
	if _, ok := d.AllowedKinds[kind.StallDefinition]; !ok {
		t.Fatal("stall kind missing from allowed set")
	}
	tg := d.Tag()
	if len(tg) != 4 || tg[0] != "delegation" || tg[2] != want.Conditions {
		t.Fatalf("tag mismatch: %v", tg)
	}
}

func TestParseWrongKind(t *testing.T) {
	sec := keys.GeneratePrivateKey()
	ev := &event.T{CreatedAt: timestamp.Now(), Kind: kind.TextNote,
		Content: "not a delegation"}
	if err := ev.Sign(sec); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(ev); !errors.Is(err, ErrNotADelegation) {
		t.Fatalf("expected ErrNotADelegation, got %v", err)
	}
}

func TestParseMissingTag(t *testing.T) {
	sec := keys.GeneratePrivateKey()
	ev := &event.T{CreatedAt: timestamp.Now(),
		Kind: kind.ApplicationSpecificData}
	if err := ev.Sign(sec); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(ev); !errors.Is(err, ErrMissingDelegationTag) {
		t.Fatalf("expected ErrMissingDelegationTag, got %v", err)
	}
}

func TestParseTamperedEvent(t *testing.T) {
	now := timestamp.Now()
	_, ev, _ := grant(t, nil, now-10, now+10)
	ev.Content = "tampered"
	if _, err := Parse(ev); !errors.Is(err,
		ErrInvalidDelegationSignature) {
		t.Fatalf("expected ErrInvalidDelegationSignature, got %v", err)
	}
}

func TestParseForgedToken(t *testing.T) {
	now := timestamp.Now()
	d, _, delegatorSec := grant(t, []kind.T{kind.TextNote}, now-10, now+10)
	// re-sign the grant with a widened conditions string but the old token
	d.Conditions = Conditions(nil, now-10, now+10)
	ev, err := d.GrantEvent(delegatorSec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = Parse(ev); !errors.Is(err, ErrInvalidDelegationSignature) {
		t.Fatalf("expected ErrInvalidDelegationSignature, got %v", err)
	}
}

func TestValidateEventWindowAndKinds(t *testing.T) {
	now := timestamp.Now()
	d, _, _ := grant(t, []kind.T{kind.StallDefinition}, now-3600, now+3600)
	if err := d.ValidateEvent(kind.StallDefinition); err != nil {
		t.Fatalf("allowed kind rejected: %v", err)
	}
	if err := d.ValidateEvent(kind.TextNote); !errors.Is(err,
		ErrKindNotAllowed) {
		t.Fatalf("expected ErrKindNotAllowed, got %v", err)
	}
	expired, _, _ := grant(t, []kind.T{kind.StallDefinition}, now-7200,
		now-1800)
	if err := expired.ValidateEvent(kind.StallDefinition); !errors.Is(err,
		ErrDelegationExpired) {
		t.Fatalf("expected ErrDelegationExpired, got %v", err)
	}
}

func TestEmptyAllowedKindsAcceptsAll(t *testing.T) {
	now := timestamp.Now()
	d, ev, _ := grant(t, nil, now-3600, now+3600)
	if err := d.ValidateEvent(kind.TextNote); err != nil {
		t.Fatalf("empty kind set should accept all, got %v", err)
	}
	parsed, err := Parse(ev)
	if err != nil {
		t.Fatal(err)
	}
	if err = parsed.ValidateEvent(kind.EncryptedDirectMessage); err != nil {
		t.Fatalf("parsed empty kind set should accept all, got %v", err)
	}
}

func TestConditionsParsing(t *testing.T) {
	d := &Delegation{
		Conditions: "kind=30017,invalid,30018,abc&created_at=123&expires_at=456",
	}
	if err := d.parseConditions(); err != nil {
		t.Fatal(err)
	}
	if len(d.AllowedKinds) != 2 {
		t.Fatalf("non-numeric kinds not skipped: %v", d.AllowedKinds)
	}
	if d.CreatedAt != 123 || d.ExpiresAt != 456 {
		t.Fatalf("window parse: created=%d expires=%d", d.CreatedAt,
			d.ExpiresAt)
	}

	// clauses without equals are ignored
	d = &Delegation{Conditions: "malformed&conditions&without=equals"}
	if err := d.parseConditions(); err != nil {
		t.Fatal(err)
	}
	if len(d.AllowedKinds) != 0 {
		t.Fatalf("unexpected kinds: %v", d.AllowedKinds)
	}

	// non-numeric timestamps are a hard error
	d = &Delegation{Conditions: "created_at=notanumber"}
	if err := d.parseConditions(); !errors.Is(err,
		ErrMalformedConditions) {
		t.Fatalf("expected ErrMalformedConditions, got %v", err)
	}
}

func TestConditionsOrderInsensitive(t *testing.T) {
	a := &Delegation{Conditions: "kind=1,4&created_at=100&expires_at=200"}
	b := &Delegation{Conditions: "expires_at=200&kind=1,4&created_at=100"}
	if err := a.parseConditions(); err != nil {
		t.Fatal(err)
	}
	if err := b.parseConditions(); err != nil {
		t.Fatal(err)
	}
	if a.CreatedAt != b.CreatedAt || a.ExpiresAt != b.ExpiresAt ||
		len(a.AllowedKinds) != len(b.AllowedKinds) {
		t.Fatal("clause order changed the parse result")
	}
}
