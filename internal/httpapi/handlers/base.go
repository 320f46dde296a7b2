// Package handlers implements the gateway's HTTP surface (SPEC_FULL.md §6):
// chat completion proxying through the Token Allocation Core, a static model
// list, liveness, and an operator status view.
//
// Grounded on the teacher's pkg/backend/handlers package: the
// envelope/SendSuccess/SendError shape of base.go, translated from
// backendtypes.APIResponse to this gateway's own envelope type since
// backendtypes belongs to the teacher's multi-provider generation API, not
// this one.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cecil-the-coder/token-gateway/internal/httpapi/middleware"
)

// envelope is every handler's response shape, mirroring the teacher's
// backendtypes.APIResponse (success flag, data xor error, request ID, time).
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendJSON sends data verbatim with the given status code, used by the chat
// proxy to pass an upstream body through unmodified rather than re-wrapping
// it in envelope.
func SendJSON(w http.ResponseWriter, statusCode int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}

// SendSuccess wraps data in envelope and writes it with 200 OK.
func SendSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}

// SendError wraps a code/message pair in envelope and writes it with
// statusCode.
func SendError(w http.ResponseWriter, r *http.Request, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   false,
		Error:     &apiError{Code: code, Message: message},
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}
