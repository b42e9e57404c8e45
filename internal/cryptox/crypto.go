// Package cryptox holds the cryptographic primitives behind QR login codes:
// raw token generation, the lookup hash, at-rest encryption of the raw token
// and derivation of secondary keys from the application secret.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"github.com/atiera/qrlogin/internal/common"
	"golang.org/x/crypto/hkdf"
)

// TokenBytes is the entropy of a raw QR token. Rendered as hex the token is
// twice as long.
const TokenBytes = 32

// ErrEmptySecret is returned when a cipher is built without key material.
var ErrEmptySecret = errors.New("application secret is empty")

// NewRawToken returns a fresh hex-encoded random token.
func NewRawToken() (string, error) {
	return common.MakeRandHexString(TokenBytes)
}

// HashToken returns the hex SHA-256 digest used to look a token up.
//
// A fast digest is enough here: raw tokens carry TokenBytes of entropy and
// are never chosen by a user.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// MatchesHash reports whether raw hashes to the stored lookup hash. The
// comparison runs in constant time.
func MatchesHash(raw, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(raw)), []byte(hash)) == 1
}

// DeriveKey turns an application secret of any length into a 32-byte
// AES-256 key.
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// DeriveSubkey expands the application secret into a size-byte key bound to
// info with HKDF-SHA256. Different info labels yield independent keys, so
// the session signing key never equals the token encryption key.
func DeriveSubkey(secret string, info string, size int) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// TokenCipher encrypts raw tokens for storage with AES-256-CBC and PKCS#7
// padding. Ciphertext and IV travel separately as standard base64, which
// keeps records written by the legacy portal readable.
//
// A TokenCipher is safe for concurrent use; its key is never mutated.
type TokenCipher struct {
	block cipher.Block
}

// NewTokenCipher derives the AES key from secret and prepares the block cipher.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return nil, err
	}
	return &TokenCipher{block: block}, nil
}

// Encrypt returns the base64 ciphertext of plaintext and the base64 of the
// random IV used for it. Every call draws a new IV.
func (c *TokenCipher) Encrypt(plaintext string) (ciphertext, iv string, err error) {
	ivBytes := make([]byte, aes.BlockSize)
	if _, err := rand.Read(ivBytes); err != nil {
		return "", "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, ivBytes).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), base64.StdEncoding.EncodeToString(ivBytes), nil
}

// Decrypt reverses Encrypt. Any malformed input (bad base64, wrong IV size,
// truncated blocks, bad padding, empty plaintext) yields ok == false.
func (c *TokenCipher) Decrypt(ciphertext, iv string) (plaintext string, ok bool) {
	if ciphertext == "" || iv == "" {
		return "", false
	}
	data, err := base64.StdEncoding.Strict().DecodeString(ciphertext)
	if err != nil {
		return "", false
	}
	ivBytes, err := base64.StdEncoding.Strict().DecodeString(iv)
	if err != nil || len(ivBytes) != aes.BlockSize {
		return "", false
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", false
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, ivBytes).CryptBlocks(out, data)

	unpadded, ok := pkcs7Unpad(out, aes.BlockSize)
	if !ok || len(unpadded) == 0 {
		return "", false
	}
	return string(unpadded), true
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, false
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
