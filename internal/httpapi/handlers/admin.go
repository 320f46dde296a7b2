package handlers

import (
	"context"
	"net/http"

	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

// StatusStore is the subset of pkg/store.Store the admin status view needs.
// Every identity is either active or invalid (SPEC_FULL.md §3), so the union
// of both status queries is the full identity population — the same
// approach pkg/health.Checker's CheckAll uses to sweep everything.
type StatusStore interface {
	GetTokensByStatus(ctx context.Context, status types.Status) ([]types.Identity, error)
}

// AdminHandler serves GET /admin/status, guarded by middleware.AdminAuth.
type AdminHandler struct {
	store StatusStore
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(store StatusStore) *AdminHandler {
	return &AdminHandler{store: store}
}

type statusCounts struct {
	Active  int `json:"active"`
	Invalid int `json:"invalid"`
}

type visibilityCounts struct {
	Public  int `json:"public"`
	Private int `json:"private"`
}

// Status reports identity counts by status and, within status, by
// visibility — an operator-facing view with no involvement from either core
// beyond reading the store they already maintain.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	active, err := h.store.GetTokensByStatus(r.Context(), types.StatusActive)
	if err != nil {
		SendError(w, r, "STORE_UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
		return
	}
	invalid, err := h.store.GetTokensByStatus(r.Context(), types.StatusInvalid)
	if err != nil {
		SendError(w, r, "STORE_UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
		return
	}

	byStatus := statusCounts{Active: len(active), Invalid: len(invalid)}
	byVisibility := visibilityCounts{}
	for _, id := range append(append([]types.Identity{}, active...), invalid...) {
		if id.Visibility == types.VisibilityPublic {
			byVisibility.Public++
		} else {
			byVisibility.Private++
		}
	}

	SendSuccess(w, r, map[string]interface{}{
		"by_status":     byStatus,
		"by_visibility": byVisibility,
		"total":         byStatus.Active + byStatus.Invalid,
	})
}
