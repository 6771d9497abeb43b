// Package variable resolves "#name" references in a parsed request to
// concrete values, in reference order.
package variable

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hrygo/chatkit/plugin/chat/agent"
	"github.com/hrygo/chatkit/plugin/chat/parser"
)

// Resolver produces the value for one variable reference. promptText
// is the full prompt the reference appears in, available for
// resolvers whose value depends on it.
type Resolver func(ctx context.Context, name, promptText string, progress agent.ProgressFunc) (string, error)

// Variable is one registered variable.
type Variable struct {
	ID          string
	Name        string
	Description string
	Resolver    Resolver
}

// Registry maps variable names to resolvers. Satisfies
// parser.VariableNames.
type Registry struct {
	mu        sync.RWMutex
	variables map[string]Variable
}

// NewRegistry creates an empty variable registry.
func NewRegistry() *Registry {
	return &Registry{variables: make(map[string]Variable)}
}

// Register adds a variable. Registering a duplicate name is an error.
func (r *Registry) Register(v Variable) error {
	if v.Name == "" {
		return fmt.Errorf("variable has empty name")
	}
	if v.Resolver == nil {
		return fmt.Errorf("variable %q has no resolver", v.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.variables[v.Name]; ok {
		return fmt.Errorf("variable %q already registered", v.Name)
	}
	r.variables[v.Name] = v
	return nil
}

// HasVariable reports whether name is registered.
func (r *Registry) HasVariable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.variables[name]
	return ok
}

// VariableID returns the ID of the named variable, or "".
func (r *Registry) VariableID(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.variables[name].ID
}

// Resolve resolves every variable reference in the parsed request, in
// reference order. References whose resolver fails are skipped with a
// warning; resolution of the rest continues.
func (r *Registry) Resolve(ctx context.Context, req *parser.ParsedRequest, progress agent.ProgressFunc) []agent.VariableEntry {
	var entries []agent.VariableEntry
	for _, ref := range req.Variables() {
		r.mu.RLock()
		v, ok := r.variables[ref.Name]
		r.mu.RUnlock()
		if !ok {
			continue
		}

		value, err := v.Resolver(ctx, ref.Name, req.PromptText(), progress)
		if err != nil {
			slog.Warn("variable resolution failed",
				"variable", ref.Name,
				"session_id", req.SessionID,
				"error", err)
			continue
		}
		entries = append(entries, agent.VariableEntry{ID: v.ID, Name: ref.Name, Value: value})
	}
	return entries
}

// ResolveImplicit resolves the named variables outside of any textual
// reference, used for location-dependent implicit context. Unknown
// names and failed resolvers are skipped.
func (r *Registry) ResolveImplicit(ctx context.Context, names []string, promptText string, progress agent.ProgressFunc) []agent.VariableEntry {
	var entries []agent.VariableEntry
	for _, name := range names {
		r.mu.RLock()
		v, ok := r.variables[name]
		r.mu.RUnlock()
		if !ok {
			continue
		}

		value, err := v.Resolver(ctx, name, promptText, progress)
		if err != nil {
			slog.Warn("implicit variable resolution failed", "variable", name, "error", err)
			continue
		}
		entries = append(entries, agent.VariableEntry{ID: v.ID, Name: name, Value: value})
	}
	return entries
}

var _ parser.VariableNames = (*Registry)(nil)
