package api

import (
	"io"
	"net/http"

	"github.com/opcoord/opcoord/internal/core"
	"github.com/opcoord/opcoord/internal/wait"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
const SignatureHeader = "X-Opcoord-Signature"

// EventHandler is the webhook ingestion entry point.
type EventHandler struct {
	coordinator *wait.Coordinator
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(coordinator *wait.Coordinator) *EventHandler {
	return &EventHandler{coordinator: coordinator}
}

// Deliver handles POST /v1/events. The raw body bytes are what the signature
// covers; they are handed to verification untouched.
func (h *EventHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	rawBytes, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, core.NewInputError("Failed to read request body.", nil))
		return
	}

	status, deliverErr := h.coordinator.DeliverEvent(rawBytes, r.Header.Get(SignatureHeader))
	switch status {
	case wait.DeliveryRejectedSignature:
		WriteError(w, http.StatusUnauthorized, core.NewAuthorizationError("Invalid event signature."))
	case wait.DeliveryAccepted:
		WriteJSON(w, http.StatusAccepted, map[string]any{"status": wait.DeliveryAccepted})
	default:
		if deliverErr != nil {
			HandleError(w, deliverErr)
			return
		}
		// Not an error: the event may belong to a session not yet registered
		// or already resolved.
		WriteJSON(w, http.StatusAccepted, map[string]any{"status": wait.DeliveryNoMatch})
	}
}
