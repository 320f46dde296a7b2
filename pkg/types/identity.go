// Package types defines the data shapes shared across the gateway's credential and
// allocation cores: identity records, cached tokens, allocation strategies, and the
// gateway's typed error taxonomy.
package types

import "time"

// Status is the lifecycle status of an Identity.
type Status string

const (
	StatusActive  Status = "active"
	StatusInvalid Status = "invalid"
)

// Visibility controls whether an Identity participates in the public pool.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Strategy is the tagged variant selecting how the Allocator picks among candidates.
// Modeled as a small enum rather than an interface hierarchy: extend by adding a
// constant and a case in the Allocator's select switch, not by subclassing.
type Strategy string

const (
	StrategyScoreBased Strategy = "score_based"
	StrategyRoundRobin Strategy = "round_robin"
	StrategySequential Strategy = "sequential"
)

// Identity is one stored upstream refresh-token record and its allocation metadata.
// The refresh token itself is never carried on this struct; it lives only behind
// PersistentStore.GetTokenCredentials, decrypted on demand.
type Identity struct {
	ID         int64
	Region     string
	ProfileARN string
	OwnerID    string // empty for identities with no owner
	Visibility Visibility
	Status     Status

	SuccessCount int64
	FailCount    int64
	LastUsed     *time.Time // nil if never used

	LastCheckOK    bool
	LastCheckError string

	// LastAccessToken/LastAccessTokenExpiresAt mirror the most recently persisted
	// refresh outcome. PersistentStore retains them for operator visibility and
	// crash-recovery assertions (SPEC_FULL.md §8 scenario 1); no operation in §6
	// reads them back into the hot allocation/refresh path, since CredentialManager
	// keeps its own in-memory CachedToken as the source of truth for serving requests.
	LastAccessToken          string
	LastAccessTokenExpiresAt time.Time
}

// Total returns success_count + fail_count.
func (id Identity) Total() int64 {
	return id.SuccessCount + id.FailCount
}

// SuccessRate returns success_count / total, defined as 1.0 when total is zero.
func (id Identity) SuccessRate() float64 {
	total := id.Total()
	if total == 0 {
		return 1.0
	}
	return float64(id.SuccessCount) / float64(total)
}

// Credentials is the decrypted material needed to perform a refresh, returned by
// PersistentStore.GetTokenCredentials.
type Credentials struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// CachedToken is the in-memory access-token state held by a CredentialManager.
// ExpiresAt is the zero time when no token has ever been obtained.
type CachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// IsStale reports whether the token should be refreshed before use: absent, or
// within threshold seconds of ExpiresAt.
func (t CachedToken) IsStale(now time.Time, threshold time.Duration) bool {
	if t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return true
	}
	return !t.ExpiresAt.After(now.Add(threshold))
}

// RefreshResult is what a successful upstream refresh call yields.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string // empty if the upstream did not rotate it
	ProfileARN   string // empty if the upstream did not return one
	ExpiresIn    time.Duration
}
