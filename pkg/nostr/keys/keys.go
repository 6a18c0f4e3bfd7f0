package keys

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/Hubmakerlabs/agentstr/pkg/hex"
	"github.com/Hubmakerlabs/agentstr/pkg/nostr/bech32encoding"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var log, chk = slog.New(os.Stderr)

// ErrKeyFormat means a key string is neither 64 character hex nor a valid
// bech32 nsec/npub.
var ErrKeyFormat = errors.New("key is not hex or bech32")

func GeneratePrivateKey() string {
	params := btcec.S256().Params()
	one := new(big.Int).SetInt64(1)

	b := make([]byte, params.BitSize/8+8)
	if _, err := io.ReadFull(rand.Reader, b); chk.E(err) {
		return ""
	}

	k := new(big.Int).SetBytes(b)
	n := new(big.Int).Sub(params.N, one)
	k.Mod(k, n)
	k.Add(k, one)

	return fmt.Sprintf("%064x", k.Bytes())
}

func GetPublicKey(sk string) (string, error) {
	b, err := hex.Dec(sk)
	if err != nil {
		return "", err
	}

	_, pk := btcec.PrivKeyFromBytes(b)
	return hex.Enc(schnorr.SerializePubKey(pk)), nil
}

func IsValid32ByteHex(pk string) bool {
	if strings.ToLower(pk) != pk {
		return false
	}
	dec, _ := hex.Dec(pk)
	return len(dec) == 32
}

// ParsePublicKey accepts a public key as 64 character hex or bech32 npub
// and returns the canonical lowercase hex form. This is the single
// normalization point, everything internal deals only in hex.
func ParsePublicKey(s string) (pk string, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, bech32encoding.PubHRP) {
		var p *btcec.PublicKey
		if p, err = bech32encoding.NpubToPublicKey(s); chk.D(err) {
			err = fmt.Errorf("%w: %s", ErrKeyFormat, err)
			return
		}
		return hex.Enc(schnorr.SerializePubKey(p)), nil
	}
	pk = strings.ToLower(s)
	if !IsValid32ByteHex(pk) {
		err = fmt.Errorf("%w: %d chars", ErrKeyFormat, len(s))
		return
	}
	return
}

// ParseSecretKey accepts a secret key as 64 character hex or bech32 nsec
// and returns the canonical lowercase hex form.
func ParseSecretKey(s string) (sk string, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, bech32encoding.SecHRP) {
		var sec *btcec.PrivateKey
		if sec, err = bech32encoding.NsecToSecretKey(s); chk.D(err) {
			err = fmt.Errorf("%w: %s", ErrKeyFormat, err)
			return
		}
		return hex.Enc(sec.Serialize()), nil
	}
	sk = strings.ToLower(s)
	if !IsValid32ByteHex(sk) {
		err = fmt.Errorf("%w: %d chars", ErrKeyFormat, len(s))
		return
	}
	return
}
