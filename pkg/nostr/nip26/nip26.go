package nip26

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Hubmakerlabs/agentstr/pkg/hex"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/bech32encoding"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/event"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tag"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrNotADelegation means the event is not kind 30078.
	ErrNotADelegation = errors.New("event is not a delegation (kind 30078)")
	// ErrMissingDelegationTag means the event has no delegation tag.
	ErrMissingDelegationTag = errors.New("delegation tag missing")
	// ErrInvalidDelegationSignature means the event signature or the
	// delegation token does not verify against the delegator pubkey.
	ErrInvalidDelegationSignature = errors.New("invalid delegation signature")
	// ErrMalformedConditions means a created_at or expires_at clause does
	// not carry a numeric value.
	ErrMalformedConditions = errors.New("malformed delegation conditions")
	// ErrDelegationExpired means the expires_at condition has passed.
	ErrDelegationExpired = errors.New("delegation expired")
	// ErrKindNotAllowed means the event kind is outside the delegated set.
	ErrKindNotAllowed = errors.New("event kind not allowed by delegation")
)

// Delegation is a parsed NIP-26 delegation grant: the delegator authorizes
// the delegatee to publish events of the allowed kinds on its behalf until
// the expiry. The conditions string is kept verbatim so Tag reproduces the
// original tag byte for byte.
type Delegation struct {
	// Delegator is the pubkey of the key granting signing authority, the
	// author of the grant event.
	Delegator string
	// Delegatee is the pubkey being authorized.
	Delegatee string
	// Conditions is the raw conditions string from the tag.
	Conditions string
	// Token is the delegator's schnorr signature over the delegation digest.
	Token string
	// AllowedKinds is the parsed kind set. Empty means every kind.
	AllowedKinds map[kind.T]struct{}
	// CreatedAt and ExpiresAt are the parsed time window bounds, zero when
	// the clause is absent.
	CreatedAt timestamp.T
	ExpiresAt timestamp.T
}

// digest is the hash the delegator signs:
//
//	sha256("nostr:delegation:<delegatee>:<conditions>")
func digest(delegatee, conditions string) []byte {
	h := sha256.Sum256([]byte("nostr:delegation:" + delegatee + ":" +
		conditions))
	return h[:]
}

// Conditions builds the canonical conditions string for a kind set and time
// window. Kinds are sorted so the string is deterministic.
func Conditions(allowed []kind.T, createdAt, expiresAt timestamp.T) string {
	var clauses []string
	if len(allowed) > 0 {
		ks := make([]int, len(allowed))
		for i := range allowed {
			ks[i] = allowed[i].ToInt()
		}
		sort.Ints(ks)
		ss := make([]string, len(ks))
		for i := range ks {
			ss[i] = strconv.Itoa(ks[i])
		}
		clauses = append(clauses, "kind="+strings.Join(ss, ","))
	}
	clauses = append(clauses,
		fmt.Sprintf("created_at=%d", createdAt.I64()),
		fmt.Sprintf("expires_at=%d", expiresAt.I64()))
	return strings.Join(clauses, "&")
}

// New creates a delegation grant from the delegator's secret key, signing
// the delegation token over the digest.
func New(delegatorSec, delegatee string, allowed []kind.T,
	createdAt, expiresAt timestamp.T) (d *Delegation, err error) {

	var sec *btcec.PrivateKey
	if sec, err = bech32encoding.HexToSecretKey(delegatorSec); chk.D(err) {
		return
	}
	conditions := Conditions(allowed, createdAt, expiresAt)
	var sig *schnorr.Signature
	if sig, err = schnorr.Sign(sec, digest(delegatee,
		conditions)); chk.E(err) {
		return
	}
	d = &Delegation{
		Delegator:  hex.Enc(schnorr.SerializePubKey(sec.PubKey())),
		Delegatee:  delegatee,
		Conditions: conditions,
		Token:      hex.Enc(sig.Serialize()),
	}
	if err = d.parseConditions(); chk.E(err) {
		d = nil
	}
	return
}

// GrantEvent wraps the delegation in a signed kind 30078 event published by
// the delegator so the grant can be distributed over relays.
func (d *Delegation) GrantEvent(delegatorSec string) (ev *event.T,
	err error) {
	ev = &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.ApplicationSpecificData,
		Tags:      []tag.T{d.Tag()},
	}
	if err = ev.Sign(delegatorSec); chk.D(err) {
		ev = nil
	}
	return
}

// Tag returns the delegation tag with the original strings, suitable for
// attaching verbatim to events published under the delegation.
func (d *Delegation) Tag() tag.T {
	return tag.T{"delegation", d.Delegatee, d.Conditions, d.Token}
}

// Parse extracts and fully verifies a delegation from a kind 30078 grant
// event: the event signature, the presence of the delegation tag, the token
// signature over the digest, and the conditions grammar.
func Parse(ev *event.T) (d *Delegation, err error) {
	if ev.Kind != kind.ApplicationSpecificData {
		err = fmt.Errorf("%w: got kind %d", ErrNotADelegation, ev.Kind)
		return
	}
	if err = ev.Verify(); err != nil {
		err = fmt.Errorf("%w: %s", ErrInvalidDelegationSignature, err)
		return
	}
	t := ev.Tags.GetFirst([]string{"delegation"})
	if t == nil || len(*t) < 4 {
		err = ErrMissingDelegationTag
		return
	}
	d = &Delegation{
		Delegator:  ev.PubKey,
		Delegatee:  (*t)[1],
		Conditions: (*t)[2],
		Token:      (*t)[3],
	}
	if err = d.VerifyToken(); err != nil {
		d = nil
		return
	}
	if err = d.parseConditions(); err != nil {
		d = nil
		return
	}
	return
}

// VerifyToken checks the token is the delegator's signature over the
// delegation digest.
func (d *Delegation) VerifyToken() (err error) {
	var pk *btcec.PublicKey
	if pk, err = bech32encoding.HexToPublicKey(d.Delegator); chk.D(err) {
		err = fmt.Errorf("%w: %s", ErrInvalidDelegationSignature, err)
		return
	}
	var sigBytes []byte
	if sigBytes, err = hex.Dec(d.Token); chk.D(err) {
		err = fmt.Errorf("%w: token not hex: %s",
			ErrInvalidDelegationSignature, err)
		return
	}
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sigBytes); chk.D(err) {
		err = fmt.Errorf("%w: %s", ErrInvalidDelegationSignature, err)
		return
	}
	if !sig.Verify(digest(d.Delegatee, d.Conditions), pk) {
		err = ErrInvalidDelegationSignature
		return
	}
	return
}

// parseConditions fills AllowedKinds, CreatedAt and ExpiresAt from the raw
// conditions string. Clauses without an equals sign and unknown keys are
// ignored, non-numeric entries in the kind list are skipped, but a
// non-numeric timestamp value is a hard error.
func (d *Delegation) parseConditions() (err error) {
	d.AllowedKinds = make(map[kind.T]struct{})
	for _, clause := range strings.Split(d.Conditions, "&") {
		key, val, ok := strings.Cut(clause, "=")
		if !ok {
			continue
		}
		switch key {
		case "kind":
			for _, s := range strings.Split(val, ",") {
				n, e := strconv.Atoi(strings.TrimSpace(s))
				if e != nil {
					// non-numeric kinds are skipped
					log.D.F("skipping non-numeric kind '%s' in conditions",
						s)
					continue
				}
				d.AllowedKinds[kind.T(n)] = struct{}{}
			}
		case "created_at":
			var n int64
			if n, err = strconv.ParseInt(val, 10, 64); err != nil {
				return fmt.Errorf("%w: created_at '%s'",
					ErrMalformedConditions, val)
			}
			d.CreatedAt = timestamp.T(n)
		case "expires_at":
			var n int64
			if n, err = strconv.ParseInt(val, 10, 64); err != nil {
				return fmt.Errorf("%w: expires_at '%s'",
					ErrMalformedConditions, val)
			}
			d.ExpiresAt = timestamp.T(n)
		}
	}
	return nil
}

// ValidateEvent checks an event kind against the delegation at the current
// time: the delegation must not be expired and the kind must be in the
// allowed set. An empty allowed set accepts every kind.
func (d *Delegation) ValidateEvent(k kind.T) (err error) {
	return d.ValidateEventAt(k, timestamp.Now())
}

// ValidateEventAt is ValidateEvent against an arbitrary point in time.
func (d *Delegation) ValidateEventAt(k kind.T, now timestamp.T) (err error) {
	if d.ExpiresAt > 0 && now > d.ExpiresAt {
		return fmt.Errorf("%w at %d", ErrDelegationExpired,
			d.ExpiresAt.I64())
	}
	if len(d.AllowedKinds) > 0 {
		if _, ok := d.AllowedKinds[k]; !ok {
			return fmt.Errorf("%w: kind %d", ErrKindNotAllowed, k)
		}
	}
	return
}
