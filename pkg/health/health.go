// Package health implements the background health-checking sweep that keeps
// Identity.Status in sync with whether an identity can still actually obtain
// an access token (SPEC_FULL.md §4.5).
//
// Grounded on original_source/kiro_gateway/health_checker.py's
// TokenHealthChecker: sweep both active and invalid identities every tick,
// demote an active identity that fails and promote an invalid one that now
// succeeds, pace the per-identity checks by a short delay to avoid hammering
// the upstream, and back off 60s after a loop-level error rather than
// spinning. The start/stop/ticker shape (mutex-guarded `running` flag,
// stop channel closed in Stop, WaitGroup drained in Stop) is grounded on the
// teacher's pkg/providers/common.HealthChecker.
package health

import (
	"context"
	"time"

	"github.com/cecil-the-coder/token-gateway/pkg/clock"
	"github.com/cecil-the-coder/token-gateway/pkg/registry"
	"github.com/cecil-the-coder/token-gateway/pkg/store"
	"github.com/cecil-the-coder/token-gateway/pkg/types"

	"sync"
)

// Logger matches pkg/credential.Logger and pkg/allocator.Logger so one
// implementation serves all three packages.
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

// maxCheckErrorLen truncates a check failure message before persisting it,
// matching the original's `str(e)[:200]`.
const maxCheckErrorLen = 200

// loopErrorBackoff is how long the background loop waits after CheckAll
// itself returns an error (as opposed to individual identity check
// failures, which are recorded per-identity and never abort the sweep).
const loopErrorBackoff = 60 * time.Second

// checkPace is the delay between consecutive per-identity checks within one
// sweep, so a large pool isn't hammered all at once.
const checkPace = time.Second

// Summary reports the outcome of one CheckAll sweep.
type Summary struct {
	Checked   int
	Valid     int
	Invalid   int
	Recovered int
}

// Config configures a Checker.
type Config struct {
	Store    store.Store
	Registry *registry.Registry
	Clock    clock.Clock
	Logger   Logger
	// Interval is the time between sweeps. Defaults to 5 minutes.
	Interval time.Duration
}

// Checker is the background health-checking sweep.
type Checker struct {
	store    store.Store
	registry *registry.Registry
	clock    clock.Clock
	logger   Logger
	interval time.Duration

	mu        sync.Mutex
	running   bool
	ticker    *time.Ticker
	stopChan  chan struct{}
	wg        sync.WaitGroup
	lastSweep time.Time
}

// New constructs a Checker.
func New(cfg Config) *Checker {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		store:    cfg.Store,
		registry: cfg.Registry,
		clock:    clk,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the background sweep loop. Calling Start on an already-running
// Checker is a no-op.
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("health checker is already running")
		return
	}
	c.running = true
	c.ticker = time.NewTicker(c.interval)
	c.stopChan = make(chan struct{})
	ticker := c.ticker
	stopChan := c.stopChan
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("token health checker started", "interval", c.interval)

	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ticker.C:
				if _, err := c.CheckAll(context.Background()); err != nil {
					c.logger.Error("health check loop error", "error", err)
					c.clock.Sleep(loopErrorBackoff)
				}
			case <-stopChan:
				return
			}
		}
	}()
}

// Stop halts the background sweep loop and waits for it to exit. Calling Stop
// on an already-stopped Checker is a no-op.
func (c *Checker) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	ticker := c.ticker
	stopChan := c.stopChan
	c.ticker = nil
	c.stopChan = nil
	c.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
	if stopChan != nil {
		close(stopChan)
	}
	c.wg.Wait()
	c.logger.Info("token health checker stopped")
}

// CheckAll checks every active and invalid identity once, demoting an active
// identity that now fails and promoting an invalid one that now succeeds.
func (c *Checker) CheckAll(ctx context.Context) (Summary, error) {
	active, err := c.store.GetTokensByStatus(ctx, types.StatusActive)
	if err != nil {
		return Summary{}, err
	}
	invalid, err := c.store.GetTokensByStatus(ctx, types.StatusInvalid)
	if err != nil {
		return Summary{}, err
	}
	all := append(append([]types.Identity{}, active...), invalid...)

	if len(all) == 0 {
		c.logger.Debug("no tokens to check")
		return Summary{}, nil
	}

	c.logger.Info("starting health check", "total", len(all), "active", len(active), "invalid", len(invalid))

	var summary Summary
	for i, id := range all {
		wasInvalid := id.Status == types.StatusInvalid
		ok := c.checkOne(ctx, id)

		if ok {
			summary.Valid++
			if wasInvalid {
				if err := c.store.SetTokenStatus(ctx, id.ID, types.StatusActive); err != nil {
					c.logger.Error("failed to promote identity", "id", id.ID, "error", err)
				} else {
					summary.Recovered++
					c.logger.Info("identity recovered", "id", id.ID)
				}
			}
		} else {
			summary.Invalid++
			if !wasInvalid {
				if err := c.store.SetTokenStatus(ctx, id.ID, types.StatusInvalid); err != nil {
					c.logger.Error("failed to demote identity", "id", id.ID, "error", err)
				} else {
					c.logger.Warn("identity marked invalid", "id", id.ID)
				}
			}
		}

		if i < len(all)-1 {
			c.clock.Sleep(checkPace)
		}
	}

	summary.Checked = len(all)
	c.logger.Info("health check complete", "valid", summary.Valid, "invalid", summary.Invalid, "recovered", summary.Recovered)

	c.mu.Lock()
	c.lastSweep = c.clock.Now()
	c.mu.Unlock()

	return summary, nil
}

// LastSweep reports when CheckAll last completed a full pass, the zero Time if
// none has completed yet. Used by the HTTP surface's liveness endpoint.
func (c *Checker) LastSweep() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSweep
}

// checkOne validates a single identity by forcing its credential Manager to
// obtain a fresh access token, recording the outcome via RecordHealthCheck.
func (c *Checker) checkOne(ctx context.Context, id types.Identity) bool {
	if _, ok, err := c.store.GetDecryptedToken(ctx, id.ID); err != nil || !ok {
		c.recordResult(ctx, id.ID, false, "failed to decrypt token")
		return false
	}

	mgr, err := c.registry.GetOrCreate(ctx, id.ID)
	if err != nil {
		c.recordResult(ctx, id.ID, false, truncate(err.Error()))
		return false
	}

	accessToken, err := mgr.ForceRefresh(ctx)
	if err != nil {
		c.recordResult(ctx, id.ID, false, truncate(err.Error()))
		return false
	}
	if accessToken == "" {
		c.recordResult(ctx, id.ID, false, "no access token returned")
		return false
	}

	c.recordResult(ctx, id.ID, true, "")
	return true
}

func (c *Checker) recordResult(ctx context.Context, id int64, ok bool, checkErr string) {
	if err := c.store.RecordHealthCheck(ctx, id, ok, checkErr); err != nil {
		c.logger.Error("failed to record health check", "id", id, "error", err)
	}
}

func truncate(s string) string {
	if len(s) > maxCheckErrorLen {
		return s[:maxCheckErrorLen]
	}
	return s
}
