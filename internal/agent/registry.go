package agent

import (
	"fmt"
	"sync"

	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Registry manages agent registration and lookup. The set of agents is
// fixed after process start; workflow validation consults it so that
// unroutable tasks are rejected at submission, not at dispatch.
type Registry struct {
	agents map[string]Agent
	mu     sync.RWMutex
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register registers an agent for its type. Registering the same type
// twice is an error.
func (r *Registry) Register(a Agent) error {
	if a == nil {
		return fmt.Errorf("cannot register nil agent")
	}
	agentType := a.Type()
	if agentType == "" {
		return fmt.Errorf("agent type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agentType]; exists {
		return fmt.Errorf("agent type already registered: %s", agentType)
	}
	r.agents[agentType] = a
	return nil
}

// MustRegister registers an agent and panics on error.
func (r *Registry) MustRegister(a Agent) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Get returns the agent for the given type, or nil.
func (r *Registry) Get(agentType string) Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[agentType]
}

// GetOrError returns the agent for the given type or a NOT_FOUND error.
func (r *Registry) GetOrError(agentType string) (Agent, error) {
	a := r.Get(agentType)
	if a == nil {
		return nil, types.NewError(types.ErrCodeNotFound, "no agent registered for type: %s", agentType)
	}
	return a, nil
}

// Has reports whether an agent is registered for the given type.
func (r *Registry) Has(agentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.agents[agentType]
	return exists
}

// Types returns all registered agent types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for t := range r.agents {
		out = append(out, t)
	}
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
