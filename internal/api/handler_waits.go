package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opcoord/opcoord/internal/core"
	"github.com/opcoord/opcoord/internal/invoker"
	"github.com/opcoord/opcoord/internal/tracing"
	"github.com/opcoord/opcoord/internal/wait"
)

// WaitHandler handles wait-session endpoints.
type WaitHandler struct {
	coordinator *wait.Coordinator
	registry    *invoker.Registry
}

// NewWaitHandler creates a new WaitHandler.
func NewWaitHandler(coordinator *wait.Coordinator, registry *invoker.Registry) *WaitHandler {
	return &WaitHandler{coordinator: coordinator, registry: registry}
}

type waitRequest struct {
	CorrelationKey string   `json:"correlation_key"`
	Timeout        string   `json:"timeout"`
	ExpectedEvents []string `json:"expected_events,omitempty"`
	Probe          *struct {
		Operation   string                     `json:"operation"`
		Parameters  map[string]json.RawMessage `json:"parameters,omitempty"`
		Interval    string                     `json:"interval,omitempty"`
		RetryPolicy *core.WireRetryPolicy      `json:"retry_policy,omitempty"`
	} `json:"probe,omitempty"`
}

// Create handles POST /v1/waits. The request blocks until the wait resolves;
// the connection is the caller's suspension point.
func (h *WaitHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, core.NewInputError("Failed to read request body.", nil))
		return
	}

	var req waitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, http.StatusBadRequest, core.NewInputError("Invalid JSON in request body.", nil))
		return
	}
	if req.CorrelationKey == "" {
		WriteError(w, http.StatusBadRequest, core.NewInputError("correlation_key is required.", nil))
		return
	}

	timeout, err := core.ParseISO8601Duration(req.Timeout)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, core.NewInputError("timeout: "+err.Error(), nil))
		return
	}

	spec := wait.Spec{
		CorrelationKey: req.CorrelationKey,
		Timeout:        timeout,
		ExpectedEvents: req.ExpectedEvents,
	}

	if req.Probe != nil {
		op, bindErr := h.registry.Bind(req.Probe.Operation, req.Probe.Parameters)
		if bindErr != nil {
			HandleError(w, bindErr)
			return
		}
		policy, policyErr := req.Probe.RetryPolicy.ToPolicy()
		if policyErr != nil {
			WriteError(w, http.StatusUnprocessableEntity, core.NewInputError(policyErr.Error(), nil))
			return
		}
		if req.Probe.Interval != "" {
			interval, intervalErr := core.ParseISO8601Duration(req.Probe.Interval)
			if intervalErr != nil {
				WriteError(w, http.StatusUnprocessableEntity, core.NewInputError("probe.interval: "+intervalErr.Error(), nil))
				return
			}
			spec.PollInterval = interval
		}
		spec.ProbePolicy = policy
		spec.Probe = probeFromOperation(op)
	}

	ctx, span := tracing.StartSpan(r.Context(), "opcoord.wait", tracing.CorrelationKey(req.CorrelationKey))
	defer span.End()

	outcome := h.coordinator.Wait(ctx, spec)
	if outcome.Err != nil {
		HandleError(w, outcome.Err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     outcome.Status,
		"payload":    outcome.Payload,
		"elapsed_ms": outcome.Elapsed.Milliseconds(),
	})
}

// probeEnvelope is the shape a probe operation reports progress in.
type probeEnvelope struct {
	Done          bool            `json:"done"`
	TerminalState string          `json:"terminal_state,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// probeFromOperation adapts an invoker operation into a probe.
func probeFromOperation(op core.Operation) wait.Probe {
	return func(ctx context.Context) wait.ProbeResult {
		payload, err := op(ctx)
		if err != nil {
			return wait.RetryableError(err)
		}
		var env probeEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return wait.RetryableError(core.NewServerError("probe response is not a valid envelope", err))
		}
		if env.Done {
			return wait.Complete(env.Result)
		}
		if env.TerminalState != "" {
			return wait.TerminalState(env.TerminalState)
		}
		return wait.ContinuePolling()
	}
}

// List handles GET /v1/waits.
func (h *WaitHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.coordinator.Sessions()
	WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Cancel handles DELETE /v1/waits/{id}.
func (h *WaitHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !core.IsValidID(id) {
		WriteError(w, http.StatusNotFound, core.NewInputError("No open session with that id.", map[string]any{"session_id": id}))
		return
	}
	if err := h.coordinator.Cancel(id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			WriteError(w, http.StatusNotFound, core.NewInputError("No open session with that id.", map[string]any{"session_id": id}))
			return
		}
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"status":     core.StatusCancelled,
	})
}
