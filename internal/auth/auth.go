// Package auth guards the HTTP transport with a single bearer key whose
// bcrypt hash is configured at startup.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of a bearer key are kept for
// audit records and rate-limit buckets.
const KeyPrefixLen = 12

const keyScheme = "lfmcp_"

// ErrInvalidHash is returned when the configured hash is not a bcrypt hash.
var ErrInvalidHash = errors.New("api key hash is not a valid bcrypt hash")

// APIKey holds the hashed key and a short prefix for identification.
type APIKey struct {
	Hash   string
	Prefix string
}

// GenerateAPIKey creates a new key with the "lfmcp_" prefix followed by 32
// URL-safe random characters. It returns the APIKey (bcrypt hash and prefix)
// and the full plaintext key.
func GenerateAPIKey(cost int) (APIKey, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return APIKey{}, "", fmt.Errorf("generating random bytes: %w", err)
	}
	plaintext := keyScheme + base64.RawURLEncoding.EncodeToString(b)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return APIKey{}, "", fmt.Errorf("hashing api key: %w", err)
	}
	return APIKey{Hash: string(hash), Prefix: KeyPrefix(plaintext)}, plaintext, nil
}

// KeyPrefix returns the displayable head of a key.
func KeyPrefix(key string) string {
	if len(key) <= KeyPrefixLen {
		return key
	}
	return key[:KeyPrefixLen]
}

// HashKey returns the hex-encoded SHA-256 hash of the given plaintext key.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// Verifier checks bearer keys against one bcrypt hash. bcrypt is slow on
// purpose, so the SHA-256 of the last accepted key is remembered and later
// requests with the same key skip the comparison.
type Verifier struct {
	hash []byte

	mu       sync.Mutex
	accepted string
}

// NewVerifier returns a verifier for hash. An empty hash yields a disabled
// verifier that accepts every request.
func NewVerifier(hash string) (*Verifier, error) {
	if hash == "" {
		return &Verifier{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Enabled reports whether a key is required.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// Verify reports whether key matches the configured hash.
func (v *Verifier) Verify(key string) bool {
	if !v.Enabled() {
		return true
	}
	if key == "" {
		return false
	}
	digest := HashKey(key)

	v.mu.Lock()
	cached := v.accepted
	v.mu.Unlock()
	if cached != "" && subtle.ConstantTimeCompare([]byte(cached), []byte(digest)) == 1 {
		return true
	}

	if bcrypt.CompareHashAndPassword(v.hash, []byte(key)) != nil {
		return false
	}
	v.mu.Lock()
	v.accepted = digest
	v.mu.Unlock()
	return true
}
