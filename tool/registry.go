package tool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Registry maps tool names to descriptors. It is populated at startup,
// sealed, and read-only afterwards.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Descriptor
	order  []string // registration order
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Descriptor),
	}
}

// Register adds one descriptor. Names are unique.
func (r *Registry) Register(d Descriptor) error {
	if diags := ValidateDescriptor(d); diags.HasErrors() {
		return withToolErrorDetails(
			newToolError(ToolErrorCodeInvalidDescriptor, fmt.Sprintf("tool %q: %s", d.Name, diags.Summary()), ErrInvalidDescriptor),
			map[string]any{"diagnostics": []Diagnostic(diags)},
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return newToolError(ToolErrorCodeRegistrySealed, fmt.Sprintf("cannot register %q after startup", d.Name), ErrRegistrySealed)
	}
	if _, exists := r.tools[d.Name]; exists {
		return newToolError(ToolErrorCodeDuplicateTool, fmt.Sprintf("tool %q is already registered", d.Name), ErrDuplicateTool)
	}

	d.Params = slices.Clone(d.Params)
	r.tools[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Seal ends the registration phase.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether registration has ended.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get returns a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	d.Params = slices.Clone(d.Params)
	return d, true
}

// List returns every descriptor in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		d := r.tools[name]
		d.Params = slices.Clone(d.Params)
		out = append(out, d)
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke resolves name, validates args, and calls the handler. The handler's
// result is returned unchanged. Registry faults come back as *ToolError.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result Result, err error) {
	start := time.Now()
	defer func() {
		emitInvokeObservation(InvokeObservation{
			ToolName:   name,
			DurationMS: time.Since(start).Milliseconds(),
			Success:    err == nil && !result.IsError,
			ErrorCode:  ErrorCode(err),
		})
	}()

	r.mu.RLock()
	d, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, withToolErrorDetails(
			newToolError(ToolErrorCodeUnknownTool, fmt.Sprintf("no tool named %q", name), ErrUnknownTool),
			map[string]any{"tool": name},
		)
	}

	bound, diags := BindArguments(d, args)
	if diags.HasErrors() {
		return Result{}, withToolErrorDetails(
			newToolError(ToolErrorCodeInvalidArguments, fmt.Sprintf("tool %q: %s", name, diags.Summary()), ErrInvalidArguments),
			map[string]any{"tool": name, "diagnostics": []Diagnostic(diags)},
		)
	}

	return callHandler(ctx, d, bound)
}

func callHandler(ctx context.Context, d Descriptor, args Args) (result Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Result{}
			err = newToolError(ToolErrorCodeInvocationFailed, fmt.Sprintf("tool %q panicked: %v", d.Name, recovered), ErrInvocationFailed)
		}
	}()

	result, err = d.Handler(ctx, args)
	if err != nil {
		if _, ok := AsToolError(err); ok {
			return Result{}, err
		}
		return Result{}, newToolError(ToolErrorCodeInvocationFailed, fmt.Sprintf("tool %q: %v", d.Name, err), fmt.Errorf("%w: %w", ErrInvocationFailed, err))
	}
	return result, nil
}
