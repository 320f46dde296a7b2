package types

import "fmt"

// ErrorKind categorizes a GatewayError, matching SPEC_FULL.md §7's taxonomy.
// Modeled directly on the teacher's ProviderError.Code (pkg/types/provider_error.go),
// generalized from "provider error" to "gateway error".
type ErrorKind string

const (
	// ErrNoRefreshToken: identity missing a refresh token. Immediate, non-retry.
	ErrNoRefreshToken ErrorKind = "no_refresh_token"
	// ErrUpstreamTransient: 429/5xx/timeout/connection failure. Retried in-manager.
	ErrUpstreamTransient ErrorKind = "upstream_transient"
	// ErrUpstreamRefused: non-retryable 4xx from the upstream refresh endpoint.
	ErrUpstreamRefused ErrorKind = "upstream_refused"
	// ErrMalformedResponse: upstream reply missing accessToken. Not retried.
	ErrMalformedResponse ErrorKind = "malformed_response"
	// ErrCredentialsMissing: PersistentStore could not decrypt stored credentials.
	ErrCredentialsMissing ErrorKind = "credentials_missing"
	// ErrNoTokenAvailable: the allocator's candidate set was empty.
	ErrNoTokenAvailable ErrorKind = "no_token_available"
	// ErrInvalidAPIKey: gateway bearer key missing, unknown, or revoked. HTTP-layer only.
	ErrInvalidAPIKey ErrorKind = "invalid_api_key"
)

// GatewayError is the gateway's single typed error shape, carrying a programmatically
// distinguishable Kind plus an optional wrapped cause. No error in this module wraps
// another error's type identity opaquely: callers use errors.As to recover a
// *GatewayError and branch on Kind.
type GatewayError struct {
	Kind       ErrorKind
	Message    string
	IdentityID int64 // 0 when not identity-scoped
	StatusCode int   // 0 when not an HTTP outcome
	Cause      error
}

func (e *GatewayError) Error() string {
	if e.IdentityID != 0 {
		return fmt.Sprintf("%s: identity %d: %s", e.Kind, e.IdentityID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the caller may reasonably retry the operation that
// produced this error. Only ErrUpstreamTransient is retryable; CredentialManager's
// own retry loop has already exhausted its attempts by the time an error of this
// kind escapes to a caller, so IsRetryable here describes outer-loop retry (e.g. the
// request-forwarding collaborator deciding whether to retry the whole request).
func (e *GatewayError) IsRetryable() bool {
	return e.Kind == ErrUpstreamTransient
}

// WithIdentity sets IdentityID and returns the error for chaining.
func (e *GatewayError) WithIdentity(id int64) *GatewayError {
	e.IdentityID = id
	return e
}

// WithStatusCode sets StatusCode and returns the error for chaining.
func (e *GatewayError) WithStatusCode(code int) *GatewayError {
	e.StatusCode = code
	return e
}

// WithCause sets Cause and returns the error for chaining.
func (e *GatewayError) WithCause(err error) *GatewayError {
	e.Cause = err
	return e
}

// NewError constructs a GatewayError of the given kind.
func NewError(kind ErrorKind, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message}
}

// Classify turns an upstream HTTP outcome into a retry decision and error kind,
// replacing exception-as-control-flow with a typed classifier per SPEC_FULL.md §9.
// Grounded on pkg/providers/common/retry/errors.go's retryable-status-code table.
func Classify(httpStatus int, transportErr error) (retry bool, kind ErrorKind) {
	if transportErr != nil {
		return true, ErrUpstreamTransient
	}
	switch httpStatus {
	case 429, 500, 502, 503, 504:
		return true, ErrUpstreamTransient
	case 0:
		// No response and no transport error only happens before a request is sent;
		// treat defensively as transient.
		return true, ErrUpstreamTransient
	default:
		if httpStatus >= 400 && httpStatus < 500 {
			return false, ErrUpstreamRefused
		}
		// Unexpected 2xx/3xx reaching the classifier (e.g. a malformed-body case
		// the caller already detected) is not a retryable transport outcome.
		return false, ErrMalformedResponse
	}
}
