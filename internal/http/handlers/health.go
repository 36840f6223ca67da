package handlers

import "net/http"

// HealthHandler answers liveness probes
type HealthHandler struct{}

// NewHealthHandler creates a health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
