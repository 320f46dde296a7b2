package types

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		transport  error
		wantRetry  bool
		wantKind   ErrorKind
	}{
		{"connection failure", 0, errors.New("dial tcp: connection refused"), true, ErrUpstreamTransient},
		{"429", 429, nil, true, ErrUpstreamTransient},
		{"500", 500, nil, true, ErrUpstreamTransient},
		{"502", 502, nil, true, ErrUpstreamTransient},
		{"503", 503, nil, true, ErrUpstreamTransient},
		{"504", 504, nil, true, ErrUpstreamTransient},
		{"400 non-retryable", 400, nil, false, ErrUpstreamRefused},
		{"401 non-retryable", 401, nil, false, ErrUpstreamRefused},
		{"403 non-retryable", 403, nil, false, ErrUpstreamRefused},
		{"404 non-retryable", 404, nil, false, ErrUpstreamRefused},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retry, kind := Classify(tc.status, tc.transport)
			if retry != tc.wantRetry {
				t.Errorf("retry = %v, want %v", retry, tc.wantRetry)
			}
			if kind != tc.wantKind {
				t.Errorf("kind = %v, want %v", kind, tc.wantKind)
			}
		})
	}
}

func TestGatewayErrorUnwrapAndChaining(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrUpstreamRefused, "refused").WithIdentity(7).WithStatusCode(401).WithCause(cause)

	if err.IdentityID != 7 {
		t.Errorf("IdentityID = %d, want 7", err.IdentityID)
	}
	if err.StatusCode != 401 {
		t.Errorf("StatusCode = %d, want 401", err.StatusCode)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}

	var ge *GatewayError
	if !errors.As(err, &ge) {
		t.Fatal("expected errors.As to recover *GatewayError")
	}
	if ge.Kind != ErrUpstreamRefused {
		t.Errorf("Kind = %v, want %v", ge.Kind, ErrUpstreamRefused)
	}
}

func TestGatewayErrorIsRetryable(t *testing.T) {
	if !NewError(ErrUpstreamTransient, "x").IsRetryable() {
		t.Error("UpstreamTransient should be retryable")
	}
	if NewError(ErrUpstreamRefused, "x").IsRetryable() {
		t.Error("UpstreamRefused should not be retryable")
	}
	if NewError(ErrNoTokenAvailable, "x").IsRetryable() {
		t.Error("NoTokenAvailable should not be retryable")
	}
}

func TestHeaderInputsUserAgent(t *testing.T) {
	h := HeaderInputs{Fingerprint: "0123456789abcdefXXXX"}
	got := h.UserAgent()
	want := "KiroGateway-0123456789abcdef"
	if got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}

	short := HeaderInputs{Fingerprint: "abc"}
	if short.UserAgent() != "KiroGateway-abc" {
		t.Errorf("UserAgent() for short fingerprint = %q", short.UserAgent())
	}
}

func TestIdentitySuccessRate(t *testing.T) {
	zero := Identity{}
	if zero.SuccessRate() != 1.0 {
		t.Errorf("zero-total SuccessRate = %v, want 1.0", zero.SuccessRate())
	}

	mixed := Identity{SuccessCount: 4, FailCount: 16}
	if got := mixed.SuccessRate(); got != 0.2 {
		t.Errorf("SuccessRate = %v, want 0.2", got)
	}
	if mixed.Total() != 20 {
		t.Errorf("Total = %d, want 20", mixed.Total())
	}
}
