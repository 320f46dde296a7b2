// Package allocator implements the Token Allocation Core: selecting which
// identity should serve a given request, across the score_based, round_robin,
// and sequential strategies (SPEC_FULL.md §4.4).
//
// Grounded directly on original_source/kiro_gateway/token_allocator.py's
// SmartTokenAllocator — candidate-set construction (self-use mode, private-
// before-public pool precedence), per-strategy selection, and the
// record_usage/reset_sequential_token operations all follow that file's shape,
// translated from per-user asyncio.Lock-guarded dicts to Go maps guarded by
// one sync.Mutex (SPEC_FULL.md §5).
package allocator

import (
	"context"
	"sort"
	"sync"

	"github.com/cecil-the-coder/token-gateway/pkg/clock"
	"github.com/cecil-the-coder/token-gateway/pkg/credential"
	"github.com/cecil-the-coder/token-gateway/pkg/registry"
	"github.com/cecil-the-coder/token-gateway/pkg/scorer"
	"github.com/cecil-the-coder/token-gateway/pkg/store"
	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

// Logger matches pkg/credential.Logger so a single logger implementation can
// be shared by both cores.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{}) {}
func (noopLogger) Info(msg string, fields ...interface{})  {}
func (noopLogger) Warn(msg string, fields ...interface{})  {}
func (noopLogger) Error(msg string, fields ...interface{}) {}

// sequentialSwitchMinTotal/Rate mirror the original's "total > 10 and
// success_rate < 0.3" sticky-switch condition.
const (
	sequentialSwitchMinTotal = 10
	sequentialSwitchMaxRate  = 0.3
)

// globalKey is the cursor key used when a request carries no owner, matching
// the original's `key = user_id or 0`.
const globalKey = ""

// ErrNoTokenAvailable-shaped errors are reported via types.GatewayError with
// Kind ErrNoTokenAvailable; see newNoTokenError.

// Allocator is the Token Allocation Core.
type Allocator struct {
	store           store.Store
	registry        *registry.Registry
	clock           clock.Clock
	logger          Logger
	selfUseEnabled  func() bool
	defaultStrategy types.Strategy

	mu               sync.Mutex
	roundRobinCursor map[string]int
	sequentialID     map[string]int64
}

// Config configures an Allocator.
type Config struct {
	Store           store.Store
	Registry        *registry.Registry
	Clock           clock.Clock
	Logger          Logger
	DefaultStrategy types.Strategy
	// SelfUseEnabled reports whether the gateway is running in self-use mode,
	// where only a requester's own private identities may serve their
	// requests and the public pool is disabled entirely. Nil means "always
	// false" (public pool always available).
	SelfUseEnabled func() bool
}

// New constructs an Allocator.
func New(cfg Config) *Allocator {
	strategy := cfg.DefaultStrategy
	if strategy == "" {
		strategy = types.StrategyScoreBased
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	selfUse := cfg.SelfUseEnabled
	if selfUse == nil {
		selfUse = func() bool { return false }
	}

	return &Allocator{
		store:            cfg.Store,
		registry:         cfg.Registry,
		clock:            clk,
		logger:           logger,
		selfUseEnabled:   selfUse,
		defaultStrategy:  strategy,
		roundRobinCursor: make(map[string]int),
		sequentialID:     make(map[string]int64),
	}
}

func newNoTokenError(message string) *types.GatewayError {
	return types.NewError(types.ErrNoTokenAvailable, message)
}

// GetBestToken selects the best identity to serve a request from ownerID
// (empty for an unowned/public request), under strategy (empty to use the
// Allocator's default), and returns that identity plus its credential
// Manager. For an owner with active private identities, their own pool takes
// precedence over the public pool; in self-use mode the public pool is
// never consulted at all.
func (a *Allocator) GetBestToken(ctx context.Context, ownerID string, strategy types.Strategy) (types.Identity, *credential.Manager, error) {
	if strategy == "" {
		strategy = a.defaultStrategy
	}
	selfUse := a.selfUseEnabled()

	if ownerID != "" {
		userTokens, err := a.store.GetUserTokens(ctx, ownerID)
		if err != nil {
			return types.Identity{}, nil, err
		}
		var active []types.Identity
		for _, id := range userTokens {
			if id.Status != types.StatusActive {
				continue
			}
			if selfUse && id.Visibility != types.VisibilityPrivate {
				continue
			}
			active = append(active, id)
		}
		if len(active) > 0 {
			best, err := a.selectByStrategy(active, ownerID, strategy)
			if err != nil {
				return types.Identity{}, nil, err
			}
			mgr, err := a.registry.GetOrCreate(ctx, best.ID)
			if err != nil {
				return types.Identity{}, nil, err
			}
			return best, mgr, nil
		}
	}

	if selfUse {
		return types.Identity{}, nil, newNoTokenError("self-use mode: public token pool is disabled")
	}

	publicTokens, err := a.store.GetPublicTokens(ctx)
	if err != nil {
		return types.Identity{}, nil, err
	}
	if len(publicTokens) == 0 {
		return types.Identity{}, nil, newNoTokenError("no public tokens available")
	}

	candidates := publicTokens
	if strategy == types.StrategyScoreBased {
		var good []types.Identity
		for _, id := range publicTokens {
			if id.SuccessRate() >= scorer.MinSuccessRate || id.Total() < 10 {
				good = append(good, id)
			}
		}
		if len(good) == 0 {
			a.logger.Warn("score_based filter excluded every public token, falling back to the unfiltered pool")
			good = publicTokens
		}
		candidates = good
	}

	best, err := a.selectByStrategy(candidates, ownerID, strategy)
	if err != nil {
		return types.Identity{}, nil, err
	}
	mgr, err := a.registry.GetOrCreate(ctx, best.ID)
	if err != nil {
		return types.Identity{}, nil, err
	}
	return best, mgr, nil
}

func cursorKey(ownerID string) string {
	if ownerID == "" {
		return globalKey
	}
	return ownerID
}

// selectByStrategy chooses one identity from candidates per strategy. The
// cursor maps (round-robin index, sequential current-id) are the only shared
// mutable state here, guarded by a.mu for the duration of the call.
func (a *Allocator) selectByStrategy(candidates []types.Identity, ownerID string, strategy types.Strategy) (types.Identity, error) {
	if len(candidates) == 0 {
		return types.Identity{}, newNoTokenError("no tokens available")
	}

	sorted := make([]types.Identity, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	key := cursorKey(ownerID)

	switch strategy {
	case types.StrategyRoundRobin:
		a.mu.Lock()
		defer a.mu.Unlock()
		idx := a.roundRobinCursor[key]
		a.roundRobinCursor[key] = (idx + 1) % len(sorted)
		return sorted[idx%len(sorted)], nil

	case types.StrategySequential:
		a.mu.Lock()
		defer a.mu.Unlock()
		if currentID, ok := a.sequentialID[key]; ok {
			currentIdx := -1
			for i, id := range sorted {
				if id.ID == currentID {
					currentIdx = i
					break
				}
			}
			if currentIdx >= 0 && sorted[currentIdx].Status == types.StatusActive {
				current := sorted[currentIdx]
				if current.Total() > sequentialSwitchMinTotal && current.SuccessRate() < sequentialSwitchMaxRate {
					nextIdx := (currentIdx + 1) % len(sorted)
					a.sequentialID[key] = sorted[nextIdx].ID
					return sorted[nextIdx], nil
				}
				return current, nil
			}
		}
		a.sequentialID[key] = sorted[0].ID
		return sorted[0], nil

	default: // score_based
		now := a.clock.Now()
		best := sorted[0]
		bestScore := scorer.Score(best, now)
		for _, id := range sorted[1:] {
			s := scorer.Score(id, now)
			if s > bestScore {
				best, bestScore = id, s
			}
		}
		return best, nil
	}
}

// RecordUsage records a request outcome for identityID.
func (a *Allocator) RecordUsage(ctx context.Context, identityID int64, success bool) error {
	return a.store.RecordTokenUsage(ctx, identityID, success)
}

// ResetSequential clears the sequential cursor for ownerID (empty for the
// global cursor), forcing the next sequential selection to start over from
// the lowest-id active candidate.
func (a *Allocator) ResetSequential(ownerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sequentialID, cursorKey(ownerID))
}
