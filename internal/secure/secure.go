// Package secure implements the symmetric encryption layer shared by the
// reference ledger, the account store and finalized log files.
//
// Envelope layout: nonce(12) || tag(16) || ciphertext, AES-256-GCM.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

const (
	nonceSize   = 12
	tagSize     = 16
	minEnvelope = nonceSize + tagSize
)

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

var ErrAuthentication = errors.New("secure: authentication failed")

// NormalizeKey turns an arbitrary secret into the 32-byte key AES-256
// requires. A 64-hex-character secret is decoded directly; anything else is
// hashed with SHA-256.
func NormalizeKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("secure: empty key")
	}
	if hexKeyPattern.MatchString(secret) {
		return hex.DecodeString(secret)
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}

// GenerateToken returns n cryptographically random bytes as 2n hex
// characters. Used for operator access tokens and per-file credentials.
func GenerateToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("secure: rand: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	// Seal appends the tag; the envelope wants it up front.
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, minEnvelope+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. A short envelope or a tag
// mismatch returns ErrAuthentication; callers treat that as "no usable data".
func Decrypt(envelope, key []byte) ([]byte, error) {
	if len(envelope) < minEnvelope {
		return nil, ErrAuthentication
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := envelope[:nonceSize]
	tag := envelope[nonceSize:minEnvelope]
	ciphertext := envelope[minEnvelope:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("secure: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, tagSize)
}
