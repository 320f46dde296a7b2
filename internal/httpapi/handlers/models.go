package handlers

import "net/http"

// ModelsHandler serves GET /v1/models: a static, operator-configured list.
// No core involvement beyond BearerAuth already having required a valid key.
type ModelsHandler struct {
	models []string
}

// NewModelsHandler constructs a ModelsHandler over a fixed model list.
func NewModelsHandler(models []string) *ModelsHandler {
	return &ModelsHandler{models: models}
}

type modelEntry struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := make([]modelEntry, 0, len(h.models))
	for _, id := range h.models {
		entries = append(entries, modelEntry{ID: id, Object: "model"})
	}
	SendSuccess(w, r, map[string]interface{}{"object": "list", "data": entries})
}
