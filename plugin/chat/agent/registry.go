package agent

import (
	"fmt"
	"sync"
)

// Registry maps agent identifiers to registered agents and answers
// default-agent-per-location lookups. It is constructed explicitly and
// injected into its consumers; there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	// order preserves registration order so default lookup is stable.
	order []string
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent. Registering a duplicate ID is an error.
func (r *Registry) Register(a Agent) error {
	md := a.Metadata()
	if md.ID == "" {
		return fmt.Errorf("agent has empty ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[md.ID]; ok {
		return fmt.Errorf("agent %q already registered", md.ID)
	}
	r.agents[md.ID] = a
	r.order = append(r.order, md.ID)
	return nil
}

// Deregister removes an agent by ID. Unknown IDs are ignored.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.agents, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Agent returns the agent registered under id.
func (r *Registry) Agent(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// AgentByName returns the first agent whose name matches and that
// serves the given location. Used by the parser to decide whether an
// "@name" token is an agent reference.
func (r *Registry) AgentByName(name string, loc Location) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		a := r.agents[id]
		md := a.Metadata()
		if md.Name == name && md.HasLocation(loc) {
			return a, true
		}
	}
	return nil, false
}

// DefaultAgent returns the default agent for the location, falling
// back to the panel default when the location has none.
func (r *Registry) DefaultAgent(loc Location) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.defaultForLocked(loc); ok {
		return a, true
	}
	if loc != LocationPanel {
		return r.defaultForLocked(LocationPanel)
	}
	return nil, false
}

func (r *Registry) defaultForLocked(loc Location) (Agent, bool) {
	for _, id := range r.order {
		a := r.agents[id]
		md := a.Metadata()
		if md.IsDefault && md.HasLocation(loc) {
			return a, true
		}
	}
	return nil, false
}
