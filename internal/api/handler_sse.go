package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opcoord/opcoord/internal/core"
)

// SSEHandler streams coordinator events over Server-Sent Events.
type SSEHandler struct {
	subscriber core.EventSubscriber
}

// NewSSEHandler creates a new SSEHandler.
func NewSSEHandler(subscriber core.EventSubscriber) *SSEHandler {
	return &SSEHandler{subscriber: subscriber}
}

// Stream handles GET /v1/events/stream. An optional correlation_key query
// parameter filters the stream to one key.
func (h *SSEHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, core.NewServerError("streaming unsupported", nil))
		return
	}

	var (
		events      <-chan *core.CoordinatorEvent
		unsubscribe func()
		err         error
	)
	if key := r.URL.Query().Get("correlation_key"); key != "" {
		events, unsubscribe, err = h.subscriber.SubscribeKey(key)
	} else {
		events, unsubscribe, err = h.subscriber.SubscribeAll()
	}
	if err != nil {
		HandleError(w, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			data, marshalErr := json.Marshal(event)
			if marshalErr != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
