package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const ownerIDKey contextKey = "owner_id"

// KeyResolver is the subset of *apikey.Store the auth middleware needs,
// narrow so tests can substitute a fake.
type KeyResolver interface {
	Resolve(key string) (ownerID string, ok bool)
}

// BearerAuth authenticates every request carrying an "Authorization: Bearer
// <key>" header against resolver, rejecting with 401 on a missing, unknown,
// or revoked key. The resolved owner ID (empty for an anonymous/public key)
// is stashed in the request context for handlers via GetOwnerID.
//
// Grounded on the teacher's middleware.Auth shape (PublicPaths bypass,
// Bearer-prefix stripping, JSON 401 body), generalized from a single
// shared password to a per-caller key resolved through apikey.Store.
func BearerAuth(resolver KeyResolver, publicPaths []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range publicPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if key == "" {
				writeUnauthorized(w, r, "missing bearer key")
				return
			}

			ownerID, ok := resolver.Resolve(key)
			if !ok {
				writeUnauthorized(w, r, "invalid or revoked API key")
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOwnerID returns the owner ID resolved by BearerAuth, "" for an anonymous
// key or a request that never went through BearerAuth (e.g. a public path).
func GetOwnerID(ctx context.Context) string {
	id, _ := ctx.Value(ownerIDKey).(string)
	return id
}

// AdminAuth guards operator-only endpoints behind a single static key,
// distinct from the per-caller keys BearerAuth resolves. A blank adminKey
// disables the surface entirely, returning 404 rather than leaking that the
// endpoint exists unauthenticated.
func AdminAuth(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				http.NotFound(w, r)
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != adminKey {
				writeUnauthorized(w, r, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
		"request_id": GetRequestID(r.Context()),
	})
}
