package agent

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medcode-ai/opnote/pkg/models"
)

// Registration binds an agent to its place in the topology.
type Registration struct {
	Agent        Agent
	Dependencies []models.AgentName
	Priority     int
	Optional     bool

	// Timeout overrides the executor default when positive.
	Timeout time.Duration
}

// Registry maps stage names to registrations. Registration happens at
// startup; lookups afterwards are read-only and concurrency-safe.
type Registry struct {
	mu      sync.RWMutex
	entries map[models.AgentName]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[models.AgentName]Registration)}
}

// Register adds a stage. Re-registering a name is an error: the topology
// is fixed and duplicate wiring indicates a setup bug.
func (r *Registry) Register(reg Registration) error {
	if reg.Agent == nil {
		return fmt.Errorf("register: nil agent")
	}
	name := reg.Agent.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register: agent %s already registered", name)
	}
	r.entries[name] = reg
	return nil
}

// Get returns the registration for a stage.
func (r *Registry) Get(name models.AgentName) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// Names returns registered stage names ordered by priority, then name.
func (r *Registry) Names() []models.AgentName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.AgentName, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r.entries[names[i]], r.entries[names[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return names[i] < names[j]
	})
	return names
}

// Validate checks that every declared dependency is itself registered.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, reg := range r.entries {
		for _, dep := range reg.Dependencies {
			if _, ok := r.entries[dep]; !ok {
				return fmt.Errorf("agent %s depends on unregistered agent %s", name, dep)
			}
		}
	}
	return nil
}
