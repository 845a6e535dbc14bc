// Package invoker maps operation names to the callables that execute them
// against external systems.
package invoker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opcoord/opcoord/internal/core"
)

// Invoker performs one named operation. params are the canonicalized
// parameters from the submission.
type Invoker func(ctx context.Context, params map[string]json.RawMessage) (json.RawMessage, error)

// Registry is a string-keyed dispatch table from operation name to Invoker.
// Unrecognized names hit an explicit default case: an unsupported error,
// logged, never silently ignored.
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		invokers: make(map[string]Invoker),
		logger:   logger,
	}
}

// Register binds an operation name to its invoker. Re-registering a name
// replaces the previous binding.
func (r *Registry) Register(name string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[name] = inv
}

// Names lists registered operation names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	return names
}

// Bind resolves an operation name and its parameters into a core.Operation.
func (r *Registry) Bind(name string, params map[string]json.RawMessage) (core.Operation, error) {
	r.mu.RLock()
	inv, ok := r.invokers[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("no invoker registered for operation", "operation", name)
		return nil, core.NewInputError("unsupported operation", map[string]any{"operation": name})
	}
	return func(ctx context.Context) (json.RawMessage, error) {
		return inv(ctx, params)
	}, nil
}
