package credential

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/cecil-the-coder/token-gateway/pkg/clock"
	"github.com/cecil-the-coder/token-gateway/pkg/store"
	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

type fakeDoer struct {
	mu        sync.Mutex
	responses []func() (*http.Response, error)
	calls     int32
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	idx := int(atomic.AddInt32(&f.calls, 1)) - 1
	f.mu.Unlock()
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx]()
}

func jsonResponse(status int, body string) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

func newTestManager(t *testing.T, st store.Store, doer Doer, clk clock.Clock) *Manager {
	t.Helper()
	return New(1, st, clk, doer, nil, Config{
		RefreshURL: "https://example.test/refresh",
		Region:     "us-east-1",
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	})
}

func TestGetAccessTokenRefreshesWhenAbsent(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "client", "secret")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(200, `{"accessToken":"at1","refreshToken":"rt1","expiresIn":3600}`),
	}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if token != "at1" {
		t.Errorf("token = %q, want at1", token)
	}

	id, _, _ := st.GetIdentity(context.Background(), 1)
	if id.LastAccessToken != "at1" {
		t.Errorf("store LastAccessToken = %q, want at1", id.LastAccessToken)
	}
}

func TestGetAccessTokenReusesCachedTokenWhenFresh(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(200, `{"accessToken":"at1","expiresIn":3600}`),
	}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)
	ctx := context.Background()

	if _, err := m.GetAccessToken(ctx); err != nil {
		t.Fatalf("first GetAccessToken: %v", err)
	}
	if _, err := m.GetAccessToken(ctx); err != nil {
		t.Fatalf("second GetAccessToken: %v", err)
	}

	if doer.calls != 1 {
		t.Errorf("expected exactly one refresh call, got %d", doer.calls)
	}
}

func TestGetAccessTokenRefreshesWhenNearExpiry(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(200, `{"accessToken":"at1","expiresIn":120}`),
		jsonResponse(200, `{"accessToken":"at2","expiresIn":3600}`),
	}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)
	ctx := context.Background()

	if _, err := m.GetAccessToken(ctx); err != nil {
		t.Fatalf("first GetAccessToken: %v", err)
	}
	// 120s expiry - 60s buffer puts ExpiresAt 60s out, already inside the 60s
	// staleness threshold; advancing the clock keeps the token stale.
	clk.Advance(90 * time.Second)

	token, err := m.GetAccessToken(ctx)
	if err != nil {
		t.Fatalf("second GetAccessToken: %v", err)
	}
	if token != "at2" {
		t.Errorf("token = %q, want at2 (expected a refresh)", token)
	}
}

func TestForceRefreshAlwaysRefreshes(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(200, `{"accessToken":"at1","expiresIn":3600}`),
		jsonResponse(200, `{"accessToken":"at2","expiresIn":3600}`),
	}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)
	ctx := context.Background()

	if _, err := m.GetAccessToken(ctx); err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	token, err := m.ForceRefresh(ctx)
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if token != "at2" {
		t.Errorf("token = %q, want at2", token)
	}
}

func TestRefreshRetriesOnTransientErrorThenSucceeds(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(503, ""),
		jsonResponse(200, `{"accessToken":"at1","expiresIn":3600}`),
	}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if token != "at1" {
		t.Errorf("token = %q, want at1", token)
	}
	if doer.calls != 2 {
		t.Errorf("calls = %d, want 2", doer.calls)
	}
}

func TestRefreshStopsImmediatelyOnNonRetryableError(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(401, `{"error":"invalid_grant"}`),
	}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)

	_, err := m.GetAccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	gwErr, ok := err.(*types.GatewayError)
	if !ok {
		t.Fatalf("error is not *GatewayError: %T", err)
	}
	if gwErr.Kind != types.ErrUpstreamRefused {
		t.Errorf("Kind = %v, want ErrUpstreamRefused", gwErr.Kind)
	}
	if doer.calls != 1 {
		t.Errorf("expected exactly one attempt for a non-retryable error, got %d", doer.calls)
	}
}

func TestRefreshFailsAfterExhaustingAllRetries(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(500, ""),
		jsonResponse(500, ""),
		jsonResponse(500, ""),
	}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)

	_, err := m.GetAccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if doer.calls != 3 {
		t.Errorf("calls = %d, want 3 (MaxAttempts)", doer.calls)
	}
}

func TestNoRefreshTokenIsReportedAsGatewayError(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)

	_, err := m.GetAccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	gwErr, ok := err.(*types.GatewayError)
	if !ok || gwErr.Kind != types.ErrNoRefreshToken {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestRefreshRespectsRateLimiter(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(200, `{"accessToken":"at1","expiresIn":3600}`),
		jsonResponse(200, `{"accessToken":"at2","expiresIn":3600}`),
	}}
	clk := clock.NewFake(time.Now())
	m := New(1, st, clk, doer, nil, Config{
		RefreshURL: "https://example.test/refresh",
		Region:     "us-east-1",
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		RateLimit:  rate.Limit(0.001), // one token roughly every 1000s
		RateBurst:  1,
	})

	if _, err := m.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("first ForceRefresh: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.ForceRefresh(ctx); err == nil {
		t.Fatal("expected second ForceRefresh to be throttled by the rate limiter")
	}
}

func TestConcurrentGetAccessTokenSharesOneRefresh(t *testing.T) {
	st := store.NewMemory()
	st.Seed(types.Identity{ID: 1}, "rt0", "", "")

	doer := &fakeDoer{responses: []func() (*http.Response, error){
		jsonResponse(200, `{"accessToken":"at1","expiresIn":3600}`),
	}}
	clk := clock.NewFake(time.Now())
	m := newTestManager(t, st, doer, clk)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.GetAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if doer.calls != 1 {
		t.Errorf("expected a single shared refresh, got %d calls", doer.calls)
	}
}
