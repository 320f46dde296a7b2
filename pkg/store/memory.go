package store

import (
	"context"
	"sync"
	"time"

	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

// record is the in-memory representation of one identity plus its plaintext
// credentials, held by MemoryStore. Plaintext never leaves record except through
// GetTokenCredentials/GetDecryptedToken, matching the encrypted-at-rest contract
// PersistentStore promises (here "at rest" is just "not serialized," since this
// adapter never touches disk — see File for the encrypted variant).
type record struct {
	identity     types.Identity
	refreshToken string
	clientID     string
	clientSecret string
}

// Memory is an in-memory PersistentStore adapter, grounded on the teacher's
// MemoryTokenStorage (pkg/auth/storage.go): a mutex-guarded map with copy-on-read
// semantics so callers never observe or mutate the store's internal state directly.
type Memory struct {
	mu      sync.RWMutex
	records map[int64]*record
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[int64]*record)}
}

// Seed inserts or replaces an identity and its credentials. Intended for test setup
// and for a config-driven bootstrap at process start; not part of the Store
// interface since it is a construction-time concern, not a request-path operation.
func (m *Memory) Seed(identity types.Identity, refreshToken, clientID, clientSecret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[identity.ID] = &record{
		identity:     identity,
		refreshToken: refreshToken,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (m *Memory) GetUserTokens(_ context.Context, userID string) ([]types.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Identity
	for _, r := range m.records {
		if r.identity.OwnerID == userID {
			out = append(out, r.identity)
		}
	}
	return out, nil
}

func (m *Memory) GetPublicTokens(_ context.Context) ([]types.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Identity
	for _, r := range m.records {
		if r.identity.Visibility == types.VisibilityPublic && r.identity.Status == types.StatusActive {
			out = append(out, r.identity)
		}
	}
	return out, nil
}

func (m *Memory) GetTokensByStatus(_ context.Context, status types.Status) ([]types.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Identity
	for _, r := range m.records {
		if r.identity.Status == status {
			out = append(out, r.identity)
		}
	}
	return out, nil
}

func (m *Memory) GetAllActiveTokens(ctx context.Context) ([]types.Identity, error) {
	return m.GetTokensByStatus(ctx, types.StatusActive)
}

func (m *Memory) GetIdentity(_ context.Context, id int64) (types.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return types.Identity{}, false, nil
	}
	return r.identity, true, nil
}

func (m *Memory) GetTokenCredentials(_ context.Context, id int64) (types.Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok || r.refreshToken == "" {
		return types.Credentials{}, types.NewError(types.ErrCredentialsMissing, "no credentials for identity").WithIdentity(id)
	}
	return types.Credentials{
		RefreshToken: r.refreshToken,
		ClientID:     r.clientID,
		ClientSecret: r.clientSecret,
	}, nil
}

func (m *Memory) GetDecryptedToken(_ context.Context, id int64) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok || r.refreshToken == "" {
		return "", false, nil
	}
	return r.refreshToken, true, nil
}

func (m *Memory) SetTokenStatus(_ context.Context, id int64, status types.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return types.NewError(types.ErrCredentialsMissing, "unknown identity").WithIdentity(id)
	}
	r.identity.Status = status
	return nil
}

func (m *Memory) RecordTokenUsage(_ context.Context, id int64, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return types.NewError(types.ErrCredentialsMissing, "unknown identity").WithIdentity(id)
	}
	if success {
		r.identity.SuccessCount++
		now := time.Now()
		r.identity.LastUsed = &now
	} else {
		r.identity.FailCount++
	}
	return nil
}

func (m *Memory) RecordHealthCheck(_ context.Context, id int64, ok bool, checkErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.records[id]
	if !exists {
		return types.NewError(types.ErrCredentialsMissing, "unknown identity").WithIdentity(id)
	}
	r.identity.LastCheckOK = ok
	r.identity.LastCheckError = checkErr
	return nil
}

func (m *Memory) ApplyRefresh(_ context.Context, id int64, accessToken, refreshToken, profileARN string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return types.NewError(types.ErrCredentialsMissing, "unknown identity").WithIdentity(id)
	}
	r.identity.LastAccessToken = accessToken
	r.identity.LastAccessTokenExpiresAt = expiresAt
	if refreshToken != "" {
		r.refreshToken = refreshToken
	}
	if profileARN != "" {
		r.identity.ProfileARN = profileARN
	}
	return nil
}
