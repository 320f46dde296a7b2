// Package registry implements the ManagerRegistry: a cache of one
// credential.Manager per identity, constructed on demand and kept for the
// lifetime of the process (SPEC_FULL.md §4.2).
//
// Grounded on the teacher's map+mutex shape shared by pkg/oauthmanager's
// credential map and pkg/keymanager's key map (both sync.RWMutex-guarded
// maps read far more often than written), adapted here to guard only the map
// itself — never the construction or use of a Manager — matching
// SPEC_FULL.md §5's requirement that a single mutex guard the registry's map
// and nothing more.
package registry

import (
	"context"
	"sync"

	"github.com/cecil-the-coder/token-gateway/pkg/credential"
)

// Factory constructs a credential.Manager for an identity not yet cached,
// typically by loading the identity's region/profile/refresh-URL settings and
// wiring them into credential.New.
type Factory func(ctx context.Context, identityID int64) (*credential.Manager, error)

// Registry is the ManagerRegistry. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	managers map[int64]*credential.Manager
	factory  Factory
}

// New constructs an empty Registry backed by factory.
func New(factory Factory) *Registry {
	return &Registry{
		managers: make(map[int64]*credential.Manager),
		factory:  factory,
	}
}

// GetOrCreate returns the cached Manager for identityID, constructing and
// caching one via the Factory if this is the first request for it. Concurrent
// callers requesting the same unseen identityID may race to construct, but
// only one constructed Manager is ever cached and returned — the loser's is
// discarded rather than replacing the winner's, so no caller holds a stale
// second reference to a different Manager for the same identity.
func (r *Registry) GetOrCreate(ctx context.Context, identityID int64) (*credential.Manager, error) {
	r.mu.RLock()
	m, ok := r.managers[identityID]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	created, err := r.factory(ctx, identityID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.managers[identityID]; ok {
		return existing, nil
	}
	r.managers[identityID] = created
	return created, nil
}

// Evict removes identityID's cached Manager, if any, forcing the next
// GetOrCreate to reconstruct it. Used when an identity's credentials change
// out from under the registry (e.g. an operator rotates a refresh token).
func (r *Registry) Evict(identityID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, identityID)
}

// Len reports how many managers are currently cached, for tests and
// operator-facing diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}
