package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/cecil-the-coder/token-gateway/internal/httpapi/middleware"
	"github.com/cecil-the-coder/token-gateway/pkg/credential"
	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

// Allocator is the subset of *pkg/allocator.Allocator ChatHandler needs.
type Allocator interface {
	GetBestToken(ctx context.Context, ownerID string, strategy types.Strategy) (types.Identity, *credential.Manager, error)
	RecordUsage(ctx context.Context, identityID int64, success bool) error
}

// Doer is the subset of *http.Client ChatHandler needs to reach the
// upstream API, matching pkg/credential.Doer so a test can substitute the
// same fake transport for both.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ChatHandler serves POST /v1/chat/completions: resolve the caller's best
// identity through the Token Allocation Core, attach its access token,
// reverse-proxy the request body to the identity's region-specific API
// host (streaming the response back as it arrives), and report the outcome
// back through Allocator.RecordUsage.
//
// Grounded on the teacher's pkg/backend/handlers/stream.go for the
// forward-then-stream-response shape and sse.go for the flusher-per-chunk
// idiom — adapted from "build response chunks locally" (a generation
// provider) to "copy upstream bytes verbatim" (a reverse proxy), since this
// gateway never constructs completions itself.
type ChatHandler struct {
	allocator Allocator
	doer      Doer
	strategy  types.Strategy
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(allocator Allocator, doer Doer, strategy types.Strategy) *ChatHandler {
	return &ChatHandler{allocator: allocator, doer: doer, strategy: strategy}
}

// Complete handles one chat-completion request end to end, including the
// single force-refresh-and-retry on an upstream 403 (SPEC_FULL.md §6).
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		SendError(w, r, "BAD_REQUEST", "could not read request body", http.StatusBadRequest)
		return
	}

	identity, mgr, err := h.allocator.GetBestToken(r.Context(), ownerID, h.strategy)
	if err != nil {
		SendError(w, r, "NO_TOKEN_AVAILABLE", err.Error(), http.StatusServiceUnavailable)
		return
	}

	// A cheap up-front check: mgr.GetAccessToken caches, so this costs nothing
	// beyond the first call and lets a pure credential failure surface as
	// CREDENTIAL_ERROR before forward's oauth2 transport would otherwise fold
	// it into an opaque transport error.
	if _, err := mgr.GetAccessToken(r.Context()); err != nil {
		SendError(w, r, "CREDENTIAL_ERROR", err.Error(), http.StatusBadGateway)
		return
	}

	resp, err := h.forward(r.Context(), mgr, body)
	if err != nil {
		_ = h.allocator.RecordUsage(r.Context(), identity.ID, false)
		SendError(w, r, "UPSTREAM_UNREACHABLE", err.Error(), http.StatusBadGateway)
		return
	}

	if resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		if _, refreshErr := mgr.ForceRefresh(r.Context()); refreshErr == nil {
			resp, err = h.forward(r.Context(), mgr, body)
			if err != nil {
				_ = h.allocator.RecordUsage(r.Context(), identity.ID, false)
				SendError(w, r, "UPSTREAM_UNREACHABLE", err.Error(), http.StatusBadGateway)
				return
			}
		}
	}
	defer resp.Body.Close()

	success := resp.StatusCode < 400
	_ = h.allocator.RecordUsage(r.Context(), identity.ID, success)

	passthrough(w, resp)
}

// forward attaches mgr's access token via a golang.org/x/oauth2.Transport
// sourced from a credential.TokenSource and sends the request through the
// handler's Doer (adapted to http.RoundTripper by doerRoundTripper). This is
// the oauth2 ecosystem's standard consumption boundary (SPEC_FULL.md's
// DOMAIN STACK): the Manager's own refresh algorithm stays hand-rolled, but
// anything shaped like an http.Client consumes it through oauth2.TokenSource
// rather than a manually built Authorization header.
func (h *ChatHandler) forward(ctx context.Context, mgr *credential.Manager, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mgr.APIHost()+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Transport: &oauth2.Transport{
		Source: credential.NewTokenSource(ctx, mgr),
		Base:   doerRoundTripper{h.doer},
	}}
	return client.Do(req)
}

// doerRoundTripper adapts Doer to http.RoundTripper so oauth2.Transport can
// wrap it as Base — the two methods already share an identical signature.
type doerRoundTripper struct{ doer Doer }

func (d doerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return d.doer.Do(req)
}

// passthrough copies the upstream response to w verbatim, flushing after
// every read so a streamed (SSE) body reaches the caller incrementally
// instead of waiting for the whole upstream response to buffer.
func passthrough(w http.ResponseWriter, resp *http.Response) {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}
