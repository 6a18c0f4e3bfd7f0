package nip4

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Hubmakerlabs/agentstr/pkg/hex"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"github.com/btcsuite/btcd/btcec/v2"
)

var log, chk = slog.New(os.Stderr)

// ErrDecryptFailed means the payload was malformed or the padding did not
// check out after decryption, which with CBC usually means a wrong key.
var ErrDecryptFailed = errors.New("direct message decrypt failed")

// ComputeSharedSecret derives the 32 byte ECDH shared secret between our
// secret key and the counterparty x-only public key, both in hex. The
// counterparty key gets an 02 prefix byte because x-only keys are even by
// convention.
func ComputeSharedSecret(pub, sk string) (secret []byte, err error) {
	var skBytes []byte
	if skBytes, err = hex.Dec(sk); chk.D(err) {
		err = log.E.Err("invalid secret key hex: %w", err)
		return
	}
	var pkBytes []byte
	if pkBytes, err = hex.Dec("02" + pub); chk.D(err) {
		err = log.E.Err("invalid public key hex: %w", err)
		return
	}
	privKey, _ := btcec.PrivKeyFromBytes(skBytes)
	var pubKey *btcec.PublicKey
	if pubKey, err = btcec.ParsePubKey(pkBytes); chk.D(err) {
		err = log.E.Err("invalid public key '%s': %w", pub, err)
		return
	}
	return btcec.GenerateSharedSecret(privKey, pubKey), nil
}

// Encrypt encrypts a message with AES-256-CBC using the shared secret as
// key, returning the wire form
//
//	base64(ciphertext)?iv=base64(iv)
func Encrypt(message string, key []byte) (content string, err error) {
	if len(key) != 32 {
		err = log.E.Err("encryption key is %d bytes, must be 32", len(key))
		return
	}
	var block cipher.Block
	if block, err = aes.NewCipher(key); chk.E(err) {
		return
	}
	iv := make([]byte, aes.BlockSize)
	if _, err = io.ReadFull(rand.Reader, iv); chk.E(err) {
		return
	}
	// PKCS5 pad to the block size
	plain := []byte(message)
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	for i := 0; i < pad; i++ {
		plain = append(plain, byte(pad))
	}
	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plain)
	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" +
		base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt. Any structural defect in the payload or bad
// padding wraps ErrDecryptFailed so callers can test with errors.Is.
func Decrypt(content string, key []byte) (message string, err error) {
	parts := strings.Split(content, "?iv=")
	if len(parts) != 2 {
		err = fmt.Errorf("%w: missing iv separator", ErrDecryptFailed)
		return
	}
	var ciphertext, iv []byte
	if ciphertext, err = base64.StdEncoding.DecodeString(parts[0]); err != nil {
		err = fmt.Errorf("%w: ciphertext not base64: %s", ErrDecryptFailed,
			err)
		return
	}
	if iv, err = base64.StdEncoding.DecodeString(parts[1]); err != nil {
		err = fmt.Errorf("%w: iv not base64: %s", ErrDecryptFailed, err)
		return
	}
	if len(iv) != aes.BlockSize {
		err = fmt.Errorf("%w: iv is %d bytes, must be %d", ErrDecryptFailed,
			len(iv), aes.BlockSize)
		return
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		err = fmt.Errorf("%w: ciphertext length %d not a block multiple",
			ErrDecryptFailed, len(ciphertext))
		return
	}
	var block cipher.Block
	if block, err = aes.NewCipher(key); chk.E(err) {
		return
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	// validate and strip the padding
	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plain) {
		err = fmt.Errorf("%w: invalid padding", ErrDecryptFailed)
		return
	}
	for _, p := range plain[len(plain)-pad:] {
		if int(p) != pad {
			err = fmt.Errorf("%w: invalid padding", ErrDecryptFailed)
			return
		}
	}
	return string(plain[:len(plain)-pad]), nil
}
