// Package crypto seals values the dashboard stores in browser cookies. Values are
// encrypted with AES-256-GCM under a key derived from the configured cookie secret,
// bound to the cookie name, and carry an expiry checked on open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a key is not exactly 32 bytes.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrSaltTooShort is returned for salts shorter than 16 bytes.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
	// ErrCiphertextCorrupted is returned when a sealed value is not valid base64 or too short.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when authentication fails: tampering, a wrong
	// key, or a value sealed for another cookie.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrExpired is returned when a sealed value is past its expiry.
	ErrExpired = errors.New("crypto: sealed value has expired")
)

const (
	minIterations     = 10000
	defaultIterations = 100000
	expiryLen         = 8
)

// CookieSealer encrypts and authenticates cookie values. It is safe for concurrent use.
type CookieSealer struct {
	aead cipher.AEAD
	now  func() time.Time
}

// NewCookieSealer creates a sealer from a 32-byte key.
func NewCookieSealer(key []byte) (*CookieSealer, error) {
	if len(key) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &CookieSealer{aead: aead, now: time.Now}, nil
}

// DeriveCookieSealer derives the key from secret with PBKDF2-SHA256. Iteration
// counts below 10000 are raised to 100000.
func DeriveCookieSealer(secret string, salt []byte, iterations int) (*CookieSealer, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < minIterations {
		iterations = defaultIterations
	}
	return NewCookieSealer(pbkdf2.Key([]byte(secret), salt, iterations, 32, sha256.New))
}

// Seal encrypts value for the cookie called name, valid for ttl.
func (s *CookieSealer) Seal(name, value string, ttl time.Duration) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: %w", err)
	}

	plaintext := make([]byte, expiryLen+len(value))
	binary.BigEndian.PutUint64(plaintext, uint64(s.now().Add(ttl).Unix()))
	copy(plaintext[expiryLen:], value)

	sealed := s.aead.Seal(nonce, nonce, plaintext, []byte(name))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open authenticates and decrypts a value produced by Seal for the same cookie name.
func (s *CookieSealer) Open(name, encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}
	nonceLen := s.aead.NonceSize()
	if len(raw) < nonceLen+s.aead.Overhead() {
		return "", ErrCiphertextCorrupted
	}

	plaintext, err := s.aead.Open(nil, raw[:nonceLen], raw[nonceLen:], []byte(name))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(plaintext) < expiryLen {
		return "", ErrCiphertextCorrupted
	}

	expires := time.Unix(int64(binary.BigEndian.Uint64(plaintext)), 0)
	if !s.now().Before(expires) {
		return "", ErrExpired
	}
	return string(plaintext[expiryLen:]), nil
}
