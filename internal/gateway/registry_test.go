package gateway

import "testing"

func TestRegistryActivateDisplaces(t *testing.T) {
	r := NewRegistry()
	a := &Session{}
	b := &Session{}

	if n := r.Activate(a); n != 1 {
		t.Errorf("Expected activation count 1, got %d", n)
	}
	if !r.IsActive(a) {
		t.Error("Session a should be active")
	}

	if n := r.Activate(b); n != 2 {
		t.Errorf("Expected activation count 2, got %d", n)
	}
	if r.IsActive(a) {
		t.Error("Session a must be displaced by b")
	}
	if !r.IsActive(b) {
		t.Error("Session b should be active")
	}
}

func TestRegistryDeactivateOnlyIfStillActive(t *testing.T) {
	r := NewRegistry()
	a := &Session{}
	b := &Session{}

	r.Activate(a)
	r.Activate(b)

	// A stale deactivation from the displaced session must not unseat b
	r.Deactivate(a)
	if !r.IsActive(b) {
		t.Error("Deactivating a displaced session must not affect the active one")
	}

	r.Deactivate(b)
	if r.IsActive(b) {
		t.Error("Session b should no longer be active")
	}
}

func TestRegistryIsActiveOnEmpty(t *testing.T) {
	r := NewRegistry()
	if r.IsActive(&Session{}) {
		t.Error("No session should be active in a fresh registry")
	}
}
