// Package store defines the PersistentStore contract the credential and allocation
// cores depend on, plus two concrete adapters: an in-memory store and an
// AES-GCM-encrypted file store. The contract is deliberately narrow — SPEC_FULL.md §6
// names only the operations the two cores actually call.
package store

import (
	"context"
	"time"

	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

// Store is the PersistentStore contract consumed by the credential and allocation
// cores. Implementations must provide their own internal concurrency control;
// callers never hold a gateway-level lock across a Store call (SPEC_FULL.md §5).
type Store interface {
	GetUserTokens(ctx context.Context, userID string) ([]types.Identity, error)
	GetPublicTokens(ctx context.Context) ([]types.Identity, error)
	GetTokensByStatus(ctx context.Context, status types.Status) ([]types.Identity, error)
	GetAllActiveTokens(ctx context.Context) ([]types.Identity, error)

	// GetTokenCredentials decrypts and returns the refresh material for id. Returns
	// a *GatewayError with Kind ErrCredentialsMissing on decrypt failure or absence.
	GetTokenCredentials(ctx context.Context, id int64) (types.Credentials, error)

	// GetDecryptedToken is a narrower accessor returning only the refresh token.
	GetDecryptedToken(ctx context.Context, id int64) (refreshToken string, ok bool, err error)

	SetTokenStatus(ctx context.Context, id int64, status types.Status) error
	RecordTokenUsage(ctx context.Context, id int64, success bool) error
	RecordHealthCheck(ctx context.Context, id int64, ok bool, checkErr string) error

	// ApplyRefresh is the single atomic write used by the persist-before-mutate
	// step of CredentialManager's refresh algorithm (SPEC_FULL.md §4.1 step 5,
	// §6's ApplyRefresh entry). refreshToken and profileARN are empty when the
	// upstream did not return a rotated value, in which case the store must leave
	// the existing stored value untouched.
	ApplyRefresh(ctx context.Context, id int64, accessToken, refreshToken, profileARN string, expiresAt time.Time) error

	// Identity lifecycle, used by the HealthChecker's promote/demote transitions
	// and by operator tooling; not part of the hot request path.
	GetIdentity(ctx context.Context, id int64) (types.Identity, bool, error)
}
