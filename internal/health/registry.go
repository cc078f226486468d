package health

import (
	"fmt"
	"sync"
)

// CheckRegistry holds the file checks a scanner runs, in registration order.
type CheckRegistry struct {
	mu     sync.RWMutex
	checks []FileCheck
	names  map[string]bool
}

// NewCheckRegistry creates a registry pre-populated with checks.
func NewCheckRegistry(checks ...FileCheck) (*CheckRegistry, error) {
	r := &CheckRegistry{names: make(map[string]bool)}
	for _, c := range checks {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a check. Names must be unique.
func (r *CheckRegistry) Register(check FileCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := check.Name()
	if r.names[name] {
		return fmt.Errorf("check %q already registered", name)
	}
	r.names[name] = true
	r.checks = append(r.checks, check)
	return nil
}

// Checks returns a snapshot of the registered checks.
func (r *CheckRegistry) Checks() []FileCheck {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FileCheck, len(r.checks))
	copy(out, r.checks)
	return out
}

// Names returns the registered check names in order.
func (r *CheckRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.checks))
	for i, c := range r.checks {
		out[i] = c.Name()
	}
	return out
}
