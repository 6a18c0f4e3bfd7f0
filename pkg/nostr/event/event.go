package event

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"

	"github.com/Hubmakerlabs/agentstr/pkg/hex"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/wire/text"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrInvalidSignature means the sig field does not validate against the
	// event ID for the event pubkey.
	ErrInvalidSignature = errors.New("event signature invalid")
	// ErrIDMismatch means the id field is not the hash of the canonical
	// form of the event.
	ErrIDMismatch = errors.New("event ID does not match canonical form")
)

func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// T is the primary datatype of nostr. This is the form of the structure
// that defines its JSON string based format.
type T struct {

	// ID is the SHA256 hash of the canonical encoding of the event
	ID eventid.T `json:"id"`

	// PubKey is the public key of the event creator in *hexadecimal* format
	PubKey string `json:"pubkey"`

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`

	// Kind is the nostr protocol code for the type of event. See kind.T
	Kind kind.T `json:"kind"`

	// Tags are a list of tags, which are a list of strings usually
	// structured as a 3 layer scheme indicating specific features of an
	// event.
	Tags tags.T `json:"tags"`

	// Content is an arbitrary string that can contain anything, but usually
	// conforming to a specification relating to the Kind and the Tags.
	Content string `json:"content"`

	// Sig is the signature on the ID hash that validates as coming from the
	// Pubkey.
	Sig string `json:"sig"`
}

// Ascending is a slice of events that sorts in ascending chronological order
type Ascending []*T

func (ev Ascending) Len() int           { return len(ev) }
func (ev Ascending) Less(i, j int) bool { return ev[i].CreatedAt < ev[j].CreatedAt }
func (ev Ascending) Swap(i, j int)      { ev[i], ev[j] = ev[j], ev[i] }

// Descending sorts a slice of events in reverse chronological order (newest
// first)
type Descending []*T

func (e Descending) Len() int           { return len(e) }
func (e Descending) Less(i, j int) bool { return e[i].CreatedAt > e[j].CreatedAt }
func (e Descending) Swap(i, j int)      { e[i], e[j] = e[j], e[i] }

// Serialize renders the event in the wire format JSON object with the seven
// fields in canonical order.
func (ev *T) Serialize() (b []byte) {
	b = append(b, `{"id":`...)
	b = text.EscapeString(b, string(ev.ID))
	b = append(b, `,"pubkey":`...)
	b = text.EscapeString(b, ev.PubKey)
	b = append(b, `,"created_at":`...)
	b = strconv.AppendInt(b, ev.CreatedAt.I64(), 10)
	b = append(b, `,"kind":`...)
	b = strconv.AppendInt(b, int64(ev.Kind), 10)
	b = append(b, `,"tags":`...)
	b = ev.Tags.MarshalTo(b)
	b = append(b, `,"content":`...)
	b = text.EscapeString(b, ev.Content)
	b = append(b, `,"sig":`...)
	b = text.EscapeString(b, ev.Sig)
	b = append(b, '}')
	return
}

func (ev *T) MarshalJSON() (b []byte, err error) {
	return ev.Serialize(), nil
}

func (ev *T) String() string { return string(ev.Serialize()) }

// ToCanonical generates the canonical form
//
//	[0,<pubkey>,<created_at>,<kind>,<tags>,<content>]
//
// whose SHA256 hash is the event ID that is signed.
func (ev *T) ToCanonical() (b []byte) {
	b = append(b, "[0,"...)
	b = text.EscapeString(b, ev.PubKey)
	b = append(b, ',')
	b = strconv.AppendInt(b, ev.CreatedAt.I64(), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(ev.Kind), 10)
	b = append(b, ',')
	b = ev.Tags.MarshalTo(b)
	b = append(b, ',')
	b = text.EscapeString(b, ev.Content)
	b = append(b, ']')
	return
}

// GetIDBytes returns the raw SHA256 hash of the canonical form of a T.
func (ev *T) GetIDBytes() []byte { return Hash(ev.ToCanonical()) }

// GetID serializes and returns the event ID as a hexadecimal string.
func (ev *T) GetID() eventid.T {
	return eventid.T(hex.Enc(ev.GetIDBytes()))
}

// CheckSignature checks if the signature is valid for the id (which is a
// hash of the serialized event content). Returns an error if the signature
// itself is malformed.
func (ev *T) CheckSignature() (valid bool, err error) {

	// decode pubkey hex to bytes.
	var pkBytes []byte
	if pkBytes, err = hex.Dec(ev.PubKey); chk.D(err) {
		err = log.E.Err("event pubkey '%s' is invalid hex: %w", ev.PubKey,
			err)
		return
	}

	// parse pubkey bytes.
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pkBytes); chk.D(err) {
		err = log.E.Err("event has invalid pubkey '%s': %w", ev.PubKey, err)
		return
	}

	// decode signature hex to bytes.
	var sigBytes []byte
	if sigBytes, err = hex.Dec(ev.Sig); chk.D(err) {
		err = log.E.Err("signature '%s' is invalid hex: %w", ev.Sig, err)
		return
	}

	// parse signature bytes.
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sigBytes); chk.D(err) {
		err = log.E.Err("failed to parse signature: %w", err)
		return
	}

	// check signature.
	valid = sig.Verify(ev.GetIDBytes(), pk)
	return
}

// Verify checks both that the ID is the hash of the canonical form and that
// the signature validates for the event pubkey, returning ErrIDMismatch or
// ErrInvalidSignature respectively.
func (ev *T) Verify() (err error) {
	if ev.GetID() != ev.ID {
		return ErrIDMismatch
	}
	var valid bool
	if valid, err = ev.CheckSignature(); err != nil {
		return
	}
	if !valid {
		return ErrInvalidSignature
	}
	return
}

// Sign signs an event with a given secret key encoded in hexadecimal,
// filling in ID, PubKey and Sig.
func (ev *T) Sign(skStr string, so ...schnorr.SignOption) (err error) {

	// secret key hex must be 64 characters.
	if len(skStr) != 64 {
		err = log.E.Err("invalid secret key length, 64 required, got %d",
			len(skStr))
		return
	}

	// decode secret key hex to bytes
	var skBytes []byte
	if skBytes, err = hex.Dec(skStr); chk.D(err) {
		err = log.E.Err("sign called with invalid secret key: %w", err)
		return
	}

	// parse bytes to get secret key (size checks have been done).
	sk, _ := btcec.PrivKeyFromBytes(skBytes)
	ev.PubKey = hex.Enc(schnorr.SerializePubKey(sk.PubKey()))
	err = ev.SignWithSecKey(sk, so...)
	chk.D(err)
	return
}

// SignWithSecKey signs an event with a given *btcec.PrivateKey.
func (ev *T) SignWithSecKey(sk *btcec.PrivateKey,
	so ...schnorr.SignOption) (err error) {

	// sign the event.
	var sig *schnorr.Signature
	id := ev.GetIDBytes()
	if sig, err = schnorr.Sign(sk, id, so...); chk.D(err) {
		return err
	}

	// we know ID is good so just coerce type.
	ev.ID = eventid.T(hex.Enc(id))

	// we know secret key is good so we can generate the public key.
	ev.PubKey = hex.Enc(schnorr.SerializePubKey(sk.PubKey()))
	ev.Sig = hex.Enc(sig.Serialize())
	return nil
}

// Unmarshal decodes a wire format JSON event.
func Unmarshal(b []byte) (ev *T, err error) {
	ev = &T{}
	if err = json.Unmarshal(b, ev); chk.D(err) {
		ev = nil
	}
	return
}
