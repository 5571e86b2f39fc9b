// Package shutdown implements the process-wide, idempotent teardown
// registry. Grounded on chassis-shutdown-hooks.c.
package shutdown

import "sync"

// Hook is a registered teardown callback.
type Hook func()

type entry struct {
	hook   Hook
	called bool
}

// Registry maps hook name to {callback, called}. Registration is
// first-writer-wins; CallAll is idempotent per hook.
type Registry struct {
	mu    sync.Mutex
	hooks map[string]*entry
	order []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{hooks: make(map[string]*entry)}
}

// Register inserts hook under name only if the name is not already
// present. Returns whether the insertion happened.
func (r *Registry) Register(name string, hook Hook) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[name]; exists {
		return false
	}
	r.hooks[name] = &entry{hook: hook}
	r.order = append(r.order, name)
	return true
}

// CallAll invokes every hook whose called flag is still false, then
// sets it. A second invocation is a no-op: only the first CallAll
// (across however many times it is invoked) runs each hook.
func (r *Registry) CallAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		e := r.hooks[name]
		if e.called {
			continue
		}
		e.hook()
		e.called = true
	}
}
