// Package credential implements the Credential Lifecycle Core: one Manager per
// identity, serializing refresh against a single upstream refresh token and
// keeping an in-memory access token fresh for callers.
//
// Grounded on the teacher's pkg/oauthmanager.OAuthKeyManager (single-flight
// refresh under a mutex, in-flight tracking, persist callback) and
// pkg/auth.AuthManagerImpl (Logger interface, DefaultLogger), adapted from
// "many credentials behind one manager" to "one identity behind one manager" —
// and on original_source/kiro_gateway/auth.py's KiroAuthManager, which is the
// direct model for the refresh algorithm itself (3-attempt exponential
// backoff, persist-before-mutate, 60-second expiry buffer, User-Agent built
// from a machine fingerprint).
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/cecil-the-coder/token-gateway/pkg/clock"
	"github.com/cecil-the-coder/token-gateway/pkg/store"
	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

// Logger matches the teacher's pkg/auth.Logger shape.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// DefaultLogger is a no-op Logger, used when none is configured.
type DefaultLogger struct{}

func (DefaultLogger) Debug(msg string, fields ...interface{}) {}
func (DefaultLogger) Info(msg string, fields ...interface{})  {}
func (DefaultLogger) Warn(msg string, fields ...interface{})  {}
func (DefaultLogger) Error(msg string, fields ...interface{}) {}

// Doer is the subset of *http.Client a Manager needs to perform a refresh
// request, kept narrow so tests can substitute a fake transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures one Manager.
type Config struct {
	RefreshURL   string
	Region       string
	ProfileARN   string
	APIHost      string
	QHost        string
	Fingerprint  string
	ExpiryBuffer time.Duration // subtracted from the upstream's expires_in; default 60s
	MaxAttempts  int           // refresh attempts before giving up; default 3
	BaseDelay    time.Duration // default 1s
	MaxDelay     time.Duration // default 60s
	RateLimit    rate.Limit    // 0 disables outbound throttling
	RateBurst    int
}

func (c *Config) setDefaults() {
	if c.ExpiryBuffer == 0 {
		c.ExpiryBuffer = 60 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 60 * time.Second
	}
}

// Manager is the Credential Lifecycle Core for a single identity. All exported
// methods are safe for concurrent use; a refresh in flight is shared by every
// caller that arrives while it is running (SPEC_FULL.md §4.1, §5).
type Manager struct {
	identityID int64
	store      store.Store
	clock      clock.Clock
	httpClient Doer
	logger     Logger
	cfg        Config
	limiter    *rate.Limiter

	mu           chan struct{} // binary semaphore; see lock()/unlock()
	refreshToken string
	clientID     string
	clientSecret string
	cached       types.CachedToken
	loaded       bool
}

// New constructs a Manager for identityID. Credentials are lazily loaded from
// st on the first refresh, not at construction time, so constructing a
// Manager never touches the store.
func New(identityID int64, st store.Store, clk clock.Clock, httpClient Doer, logger Logger, cfg Config) *Manager {
	cfg.setDefaults()
	if logger == nil {
		logger = DefaultLogger{}
	}
	if clk == nil {
		clk = clock.System{}
	}

	m := &Manager{
		identityID: identityID,
		store:      st,
		clock:      clk,
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
		mu:         make(chan struct{}, 1),
	}
	m.mu <- struct{}{}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	return m
}

func (m *Manager) lock(ctx context.Context) error {
	select {
	case <-m.mu:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) unlock() {
	m.mu <- struct{}{}
}

// GetAccessToken returns a valid access token, refreshing first if the cached
// one is absent or within the expiry buffer of expiring.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	if err := m.lock(ctx); err != nil {
		return "", err
	}
	defer m.unlock()

	if !m.cached.IsStale(m.clock.Now(), m.cfg.ExpiryBuffer) {
		return m.cached.AccessToken, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.cached.AccessToken, nil
}

// ForceRefresh refreshes unconditionally, for use after an upstream rejection
// (e.g. HTTP 403) that indicates the cached token is no longer valid even
// though it has not expired by the clock.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	if err := m.lock(ctx); err != nil {
		return "", err
	}
	defer m.unlock()

	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	return m.cached.AccessToken, nil
}

// Region returns the AWS-style region configured for this identity.
func (m *Manager) Region() string { return m.cfg.Region }

// ProfileARN returns the profile ARN in use, which may have been rotated in
// by the most recent successful refresh.
func (m *Manager) ProfileARN() string { return m.cfg.ProfileARN }

// APIHost returns the API host for this identity's region.
func (m *Manager) APIHost() string { return m.cfg.APIHost }

// QHost returns the Q-API host for this identity's region.
func (m *Manager) QHost() string { return m.cfg.QHost }

// Fingerprint returns the machine fingerprint used to build the User-Agent
// header on outbound requests.
func (m *Manager) Fingerprint() string { return m.cfg.Fingerprint }

// cachedExpiry returns the expiry of the currently cached access token under
// lock, for use by TokenSource.
func (m *Manager) cachedExpiry(ctx context.Context) (time.Time, error) {
	if err := m.lock(ctx); err != nil {
		return time.Time{}, err
	}
	defer m.unlock()
	return m.cached.ExpiresAt, nil
}

func (m *Manager) ensureCredentialsLoadedLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	creds, err := m.store.GetTokenCredentials(ctx, m.identityID)
	if err != nil {
		return err
	}
	m.refreshToken = creds.RefreshToken
	m.clientID = creds.ClientID
	m.clientSecret = creds.ClientSecret
	m.loaded = true
	return nil
}

// refreshLocked performs the retry-with-backoff refresh algorithm. Caller
// must hold m.mu.
func (m *Manager) refreshLocked(ctx context.Context) error {
	if err := m.ensureCredentialsLoadedLocked(ctx); err != nil {
		return err
	}
	if m.refreshToken == "" {
		return types.NewError(types.ErrNoRefreshToken, "identity has no refresh token").WithIdentity(m.identityID)
	}

	m.logger.Info("refreshing access token", "identity", m.identityID)

	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(m.cfg.BaseDelay, m.cfg.MaxDelay, attempt)
			m.logger.Warn("refresh attempt failed, retrying", "identity", m.identityID, "attempt", attempt, "delay", delay.String())
			m.clock.Sleep(delay)
		}

		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		result, status, transportErr := m.attemptRefresh(ctx)
		if transportErr == nil && status == http.StatusOK {
			if err := m.applyResult(ctx, result); err != nil {
				return err
			}
			m.logger.Info("access token refreshed", "identity", m.identityID, "expires_at", m.cached.ExpiresAt.String())
			return nil
		}

		retry, kind := types.Classify(status, transportErr)
		gwErr := types.NewError(kind, refreshErrorMessage(status, transportErr)).WithIdentity(m.identityID).WithStatusCode(status).WithCause(transportErr)
		lastErr = gwErr
		if !retry {
			m.logger.Error("refresh failed with non-retryable error", "identity", m.identityID, "status", status)
			return gwErr
		}
	}

	m.logger.Error("refresh failed after all attempts", "identity", m.identityID, "attempts", m.cfg.MaxAttempts)
	return lastErr
}

func refreshErrorMessage(status int, transportErr error) string {
	if transportErr != nil {
		return fmt.Sprintf("refresh transport error: %v", transportErr)
	}
	return fmt.Sprintf("refresh failed with status %d", status)
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	ProfileARN   string `json:"profileArn"`
}

// attemptRefresh sends one refresh request and reports the HTTP status (0 on
// a transport-level failure) so the caller can classify it.
func (m *Manager) attemptRefresh(ctx context.Context) (types.RefreshResult, int, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": m.refreshToken})
	if err != nil {
		return types.RefreshResult{}, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.RefreshURL, bytes.NewReader(payload))
	if err != nil {
		return types.RefreshResult{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", (types.HeaderInputs{
		Region:      m.cfg.Region,
		ProfileARN:  m.cfg.ProfileARN,
		Fingerprint: m.cfg.Fingerprint,
	}).UserAgent())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return types.RefreshResult{}, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return types.RefreshResult{}, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.RefreshResult{}, resp.StatusCode, err
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return types.RefreshResult{}, resp.StatusCode, nil
	}
	if parsed.AccessToken == "" {
		return types.RefreshResult{}, resp.StatusCode, nil
	}

	return types.RefreshResult{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ProfileARN:   parsed.ProfileARN,
		ExpiresIn:    time.Duration(parsed.ExpiresIn) * time.Second,
	}, resp.StatusCode, nil
}

// applyResult persists the refresh outcome before mutating in-memory state
// (SPEC_FULL.md §9 Open Question (a)): store.ApplyRefresh must return
// successfully before the cached token or refresh token are swapped.
func (m *Manager) applyResult(ctx context.Context, result types.RefreshResult) error {
	if result.AccessToken == "" {
		return types.NewError(types.ErrMalformedResponse, "refresh response missing access token").WithIdentity(m.identityID)
	}

	expiresAt := m.clock.Now().Add(result.ExpiresIn - m.cfg.ExpiryBuffer)

	if err := m.store.ApplyRefresh(ctx, m.identityID, result.AccessToken, result.RefreshToken, result.ProfileARN, expiresAt); err != nil {
		return err
	}

	m.cached = types.CachedToken{AccessToken: result.AccessToken, ExpiresAt: expiresAt}
	if result.RefreshToken != "" {
		m.refreshToken = result.RefreshToken
	}
	if result.ProfileARN != "" {
		m.cfg.ProfileARN = result.ProfileARN
	}
	return nil
}
