package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/opcoord/opcoord/internal/core"
	"github.com/opcoord/opcoord/internal/idempotency"
	"github.com/opcoord/opcoord/internal/invoker"
	"github.com/opcoord/opcoord/internal/metrics"
	"github.com/opcoord/opcoord/internal/tracing"
)

// OperationHandler handles idempotent operation submissions.
type OperationHandler struct {
	manager   *idempotency.Manager
	registry  *invoker.Registry
	publisher core.EventPublisher
}

// NewOperationHandler creates a new OperationHandler. publisher may be nil to
// disable real-time event publication.
func NewOperationHandler(manager *idempotency.Manager, registry *invoker.Registry, publisher core.EventPublisher) *OperationHandler {
	return &OperationHandler{manager: manager, registry: registry, publisher: publisher}
}

func (h *OperationHandler) publishFinished(operation, key, status string) {
	if h.publisher == nil {
		return
	}
	_ = h.publisher.Publish(&core.CoordinatorEvent{
		EventType:      core.EventOperationFinished,
		Operation:      operation,
		CorrelationKey: key,
		Status:         status,
		Timestamp:      core.NowFormatted(),
	})
}

type submitRequest struct {
	Operation   string                     `json:"operation"`
	Parameters  map[string]json.RawMessage `json:"parameters"`
	RetryPolicy *core.WireRetryPolicy      `json:"retry_policy,omitempty"`
}

// Submit handles POST /v1/operations.
func (h *OperationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, core.NewInputError("Failed to read request body.", nil))
		return
	}

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, http.StatusBadRequest, core.NewInputError("Invalid JSON in request body.", nil))
		return
	}
	if req.Operation == "" {
		WriteError(w, http.StatusBadRequest, core.NewInputError("operation is required.", nil))
		return
	}

	policy, err := req.RetryPolicy.ToPolicy()
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, core.NewInputError(err.Error(), nil))
		return
	}

	op, err := h.registry.Bind(req.Operation, req.Parameters)
	if err != nil {
		HandleError(w, err)
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "opcoord.submit", tracing.Operation(req.Operation))
	defer span.End()

	key := idempotency.Fingerprint(req.Operation, req.Parameters)
	result, err := h.manager.Submit(ctx, req.Operation, req.Parameters, op, policy)
	if errors.Is(err, core.ErrDuplicateInProgress) {
		metrics.OperationsTotal.WithLabelValues(req.Operation, "duplicate").Inc()
		WriteJSON(w, http.StatusConflict, map[string]any{
			"status":          "duplicate_in_progress",
			"idempotency_key": key,
		})
		return
	}
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(req.Operation, "failed").Inc()
		h.publishFinished(req.Operation, key, "failed")
		HandleError(w, err)
		return
	}

	metrics.OperationsTotal.WithLabelValues(req.Operation, "completed").Inc()
	h.publishFinished(req.Operation, key, "completed")
	WriteJSON(w, http.StatusCreated, map[string]any{
		"status":          "completed",
		"idempotency_key": key,
		"result":          result,
	})
}

// Lookup handles GET /v1/operations/{key} — returns the cached result for a
// completed idempotency key without re-executing.
func (h *OperationHandler) Lookup(w http.ResponseWriter, r *http.Request, key string) {
	result, err := h.manager.Lookup(r.Context(), key)
	if errors.Is(err, core.ErrNotFound) {
		WriteError(w, http.StatusNotFound, core.NewInputError("No completed result for key.", map[string]any{"key": key}))
		return
	}
	if err != nil {
		HandleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"idempotency_key": key,
		"result":          result,
	})
}
