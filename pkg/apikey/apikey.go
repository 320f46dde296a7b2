// Package apikey implements the API-key layer: mapping a gateway-issued
// bearer key to an owning user id, consumed by the HTTP surface before it
// calls the Allocator (SPEC_FULL.md §1 item 8, §3's Gateway API key record).
//
// Grounded on the teacher's pkg/auth/apikey.go for the masking idiom
// (maskAPIKey) and the never-store-plaintext discipline, generalized here
// from "provider API key" to "gateway-issued bearer key": instead of a
// plaintext key, only its SHA-256 hash is ever retained, and the key itself
// is generated from github.com/google/uuid rather than accepted as operator
// input.
package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one issued gateway API key (SPEC_FULL.md §3's Gateway API key
// record). The plaintext key is never retained; KeyHash is its SHA-256 hex
// digest.
type Record struct {
	KeyHash   string
	OwnerID   string // empty for an anonymous/public key
	CreatedAt time.Time
	Revoked   bool
}

// Store issues and resolves gateway API keys. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record // keyed by KeyHash
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Issue generates a new bearer key for ownerID (empty for an anonymous key),
// stores its hash, and returns the plaintext key. The plaintext is returned
// exactly once; callers must hand it to the requester immediately and never
// log it.
func (s *Store) Issue(ownerID string) (plaintext string, err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	plaintext = "gw_" + id.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[hashKey(plaintext)] = &Record{
		KeyHash:   hashKey(plaintext),
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
	}
	return plaintext, nil
}

// Resolve authenticates a bearer key, returning the owner id it maps to. A
// revoked or unknown key resolves with ok=false; the HTTP surface must
// translate that into ErrInvalidAPIKey/401, never reaching the core.
func (s *Store) Resolve(key string) (ownerID string, ok bool) {
	hash := hashKey(key)

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.records[hash]
	if !exists || rec.Revoked {
		return "", false
	}
	return rec.OwnerID, true
}

// Revoke marks a key (identified by its plaintext, as originally issued) so
// it authenticates no further requests. Returns false if the key is unknown.
func (s *Store) Revoke(key string) bool {
	hash := hashKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.records[hash]
	if !exists {
		return false
	}
	rec.Revoked = true
	return true
}

// Mask renders a key safe for logging/display, matching the teacher's
// maskAPIKey idiom (pkg/auth/apikey.go): reveal a short prefix/suffix, hide
// the rest.
func Mask(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
