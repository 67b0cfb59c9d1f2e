package gateway

import "sync"

// Registry tracks the single active session per process. Activating a new
// session invalidates the prior one: its in-flight leg results are still
// computed, but the send choke point drops them (an invalidated sink, not a
// cancellation).
type Registry struct {
	mu          sync.Mutex
	active      *Session
	activations uint64
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Activate makes s the active session, displacing any prior one, and
// returns the activation number for logging.
func (r *Registry) Activate(s *Session) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = s
	r.activations++
	return r.activations
}

// Deactivate clears the slot if s is still the active session. A session
// displaced by a newer activation leaves the newer session in place.
func (r *Registry) Deactivate(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == s {
		r.active = nil
	}
}

// IsActive reports whether s is still the session events should reach
func (r *Registry) IsActive(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.active == s
}
