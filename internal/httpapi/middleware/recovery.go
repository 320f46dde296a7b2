package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
)

// ErrorLogger is the subset of internal/gatewaylog.Logger Recovery needs.
type ErrorLogger interface {
	Error(msg string, fields ...interface{})
}

// Recovery turns a panic in any downstream handler into a 500 JSON response
// instead of crashing the process, grounded on the teacher's
// middleware.Recovery (log the stack, reply with a generic INTERNAL_ERROR
// body so the panic's detail never reaches the caller).
func Recovery(logger ErrorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic", "request_id", GetRequestID(r.Context()), "error", err, "stack", string(debug.Stack()))

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]interface{}{
						"success": false,
						"error": map[string]string{
							"code":    "INTERNAL_ERROR",
							"message": "an internal error occurred",
						},
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
