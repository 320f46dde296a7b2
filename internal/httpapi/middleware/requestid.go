// Package middleware provides the HTTP gateway's request pipeline:
// request-ID tagging, structured logging, panic recovery, and the two
// bearer-key auth variants (gateway key, admin key).
//
// Grounded on the teacher's pkg/backend/middleware package shape
// (Auth/CORS/Logging/Recovery as independent func(http.Handler) http.Handler
// wrappers composed by the server). The teacher's own package references a
// RequestID/GetRequestID pair from its Logging and Recovery middleware and
// from handlers/base.go, but never defines them — this fills that gap in the
// teacher's own idiom: a context key plus a random ID generated per request.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID assigns a fresh request ID to every inbound request (or reuses
// an inbound X-Request-Id, if the caller already supplied one) and stores it
// in the request context for downstream middleware and handlers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID stashed by RequestID, or "" if none was
// set (e.g. in a test that constructs a request directly).
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
