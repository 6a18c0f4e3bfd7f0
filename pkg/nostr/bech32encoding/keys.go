package bech32encoding

import (
	"fmt"
	"os"

	"github.com/Hubmakerlabs/agentstr/pkg/hex"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

var log, chk = slog.New(os.Stderr)

const (
	// MinKeyStringLen is 56 because Bech32 needs 52 characters plus 4 for
	// the HRP, any string shorter than this cannot be a nostr key.
	MinKeyStringLen = 56
	HexKeyLen       = 64
	Bech32HRPLen    = 4
	SecHRP          = "nsec"
	PubHRP          = "npub"
)

// ConvertForBech32 performs the bit expansion required for encoding into
// Bech32.
func ConvertForBech32(b8 []byte) (b5 []byte, err error) {
	return bech32.ConvertBits(b8, 8, 5, true)
}

// ConvertFromBech32 collapses together the bit expanded 5 bit numbers
// encoded in bech32.
func ConvertFromBech32(b5 []byte) (b8 []byte, err error) {
	return bech32.ConvertBits(b5, 5, 8, true)
}

// SecretKeyToNsec encodes a secp256k1 secret key as a Bech32 string (nsec).
func SecretKeyToNsec(sk *btcec.PrivateKey) (encoded string, err error) {
	var b5 []byte
	if b5, err = ConvertForBech32(sk.Serialize()); chk.D(err) {
		return
	}
	return bech32.Encode(SecHRP, b5)
}

// PublicKeyToNpub encodes a public key as a bech32 string (npub).
func PublicKeyToNpub(pk *btcec.PublicKey) (encoded string, err error) {
	var bits5 []byte
	if bits5, err = ConvertForBech32(schnorr.SerializePubKey(pk)); chk.D(err) {
		return
	}
	return bech32.Encode(PubHRP, bits5)
}

// HexToNsec encodes a 64 character hex secret key as a Bech32 nsec string.
func HexToNsec(sk string) (nsec string, err error) {
	var s *btcec.PrivateKey
	if s, err = HexToSecretKey(sk); err != nil {
		return
	}
	return SecretKeyToNsec(s)
}

// HexToNpub encodes a 64 character hex public key as a Bech32 npub string.
func HexToNpub(pk string) (npub string, err error) {
	var p *btcec.PublicKey
	if p, err = HexToPublicKey(pk); err != nil {
		return
	}
	return PublicKeyToNpub(p)
}

// NsecToSecretKey decodes a nostr secret key (nsec) and returns the
// secp256k1 secret key.
func NsecToSecretKey(encoded string) (sk *btcec.PrivateKey, err error) {
	var b5, b8 []byte
	var hrp string
	if hrp, b5, err = bech32.Decode(encoded); chk.D(err) {
		return
	}
	if hrp != SecHRP {
		err = fmt.Errorf("wrong human readable part, got '%s' want '%s'",
			hrp, SecHRP)
		return
	}
	if b8, err = ConvertFromBech32(b5); chk.D(err) {
		return
	}
	sk, _ = btcec.PrivKeyFromBytes(b8[:32])
	return
}

// NpubToPublicKey decodes a nostr public key (npub) and returns a secp256k1
// public key.
func NpubToPublicKey(encoded string) (pk *btcec.PublicKey, err error) {
	var b5, b8 []byte
	var hrp string
	if hrp, b5, err = bech32.Decode(encoded); chk.D(err) {
		return
	}
	if hrp != PubHRP {
		err = fmt.Errorf("wrong human readable part, got '%s' want '%s'",
			hrp, PubHRP)
		return
	}
	if b8, err = ConvertFromBech32(b5); chk.D(err) {
		return
	}
	return schnorr.ParsePubKey(b8[:32])
}

// HexToPublicKey decodes a string that should be a 64 character long hex
// encoded public key into a btcec.PublicKey that can be used to verify a
// signature or encode to Bech32.
func HexToPublicKey(pk string) (p *btcec.PublicKey, err error) {
	if len(pk) != HexKeyLen {
		err = log.E.Err("pubkey is %d chars, must be %d", len(pk), HexKeyLen)
		return
	}
	var pb []byte
	if pb, err = hex.Dec(pk); chk.D(err) {
		return
	}
	if p, err = schnorr.ParsePubKey(pb); chk.D(err) {
		return
	}
	return
}

// HexToSecretKey decodes a string that should be a 64 character long hex
// encoded secret key into a btcec.PrivateKey that can be used to sign or
// encode to Bech32.
func HexToSecretKey(sk string) (s *btcec.PrivateKey, err error) {
	if len(sk) != HexKeyLen {
		err = log.E.Err("seckey is %d chars, must be %d", len(sk), HexKeyLen)
		return
	}
	var pb []byte
	if pb, err = hex.Dec(sk); chk.D(err) {
		return
	}
	s, _ = btcec.PrivKeyFromBytes(pb)
	return
}
