// Package command provides the registry of standalone slash commands,
// invoked directly by name instead of through agent dispatch.
package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/hrygo/chatkit/plugin/chat/agent"
)

// Handler executes one slash command. argument is the text following
// the command token. Progress parts stream into the response exactly
// like agent progress. Errors are absorbed by the orchestrator into an
// error response.
type Handler func(ctx context.Context, argument string, progress agent.ProgressFunc, history []agent.HistoryEntry) (*Outcome, error)

// Outcome is the terminal result of one command execution.
type Outcome struct {
	Followups []agent.Followup
}

// Command is one registered slash command.
type Command struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry maps command names to executable handlers. Constructed
// explicitly and injected; no package-level state.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command. Registering a duplicate name is an error.
func (r *Registry) Register(c Command) error {
	if c.Name == "" {
		return fmt.Errorf("command has empty name")
	}
	if c.Handler == nil {
		return fmt.Errorf("command %q has no handler", c.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.commands[c.Name]; ok {
		return fmt.Errorf("command %q already registered", c.Name)
	}
	r.commands[c.Name] = c
	return nil
}

// HasCommand reports whether name is registered.
func (r *Registry) HasCommand(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// Commands returns every registered command.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	return out
}

// Execute runs the named command.
func (r *Registry) Execute(ctx context.Context, name, argument string, progress agent.ProgressFunc, history []agent.HistoryEntry) (*Outcome, error) {
	r.mu.RLock()
	c, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	return c.Handler(ctx, argument, progress, history)
}
