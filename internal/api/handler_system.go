package api

import (
	"net/http"

	"github.com/opcoord/opcoord/internal/invoker"
	"github.com/opcoord/opcoord/internal/state"
)

// Version is the server version reported by the health endpoint.
const Version = "0.3.0"

// SystemHandler handles health and introspection endpoints.
type SystemHandler struct {
	store    state.Store
	registry *invoker.Registry
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(store state.Store, registry *invoker.Registry) *SystemHandler {
	return &SystemHandler{store: store, registry: registry}
}

// Health handles GET /v1/health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, map[string]any{
		"status":  status,
		"version": Version,
	})
}

// Operations handles GET /v1/operations — the registered invoker names.
func (h *SystemHandler) Operations(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"operations": h.registry.Names(),
	})
}
