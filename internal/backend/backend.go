// Package backend implements the registry of upstream MySQL servers:
// their address, role, and liveness state, plus the throttled
// health-recovery sweep. Grounded on network-backend.c.
package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/bigwindlee/mysqlproxy/internal/logrecord"
)

// Role is a backend's routing role.
type Role int

const (
	ReadWrite Role = iota
	ReadOnly
)

func (r Role) String() string {
	if r == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// State is a backend's liveness state.
type State int

const (
	Up State = iota
	Down
	Unknown
	Offline
)

func (s State) String() string {
	switch s {
	case Up:
		return "up"
	case Down:
		return "down"
	case Unknown:
		return "unknown"
	case Offline:
		return "offline"
	default:
		return "invalid"
	}
}

const downDwell = 4 * time.Second
const checkThrottle = 1 * time.Second

// Address identifies an upstream by host:port with a stable name used
// for the registry's uniqueness invariant.
type Address struct {
	Name string // e.g. "10.0.0.1:3306"
	Host string
	Port int
}

// Descriptor is one upstream server entry in the registry.
type Descriptor struct {
	Address    Address
	UUID       string
	Role       Role
	State      State
	StateSince time.Time
}

// ErrDuplicate is returned by Add when address.Name is already present.
var ErrDuplicate = fmt.Errorf("backend: duplicate address name")

// Registry is the set of upstream descriptors with liveness and role,
// ordered stably so index identifies a backend in routing policy.
type Registry struct {
	mu        sync.Mutex
	backends  []*Descriptor
	lastCheck time.Time
	now       func() time.Time
	logger    logrecord.Logger
}

// New returns an empty Registry. logger may be nil.
func New(logger logrecord.Logger) *Registry {
	return &Registry{now: time.Now, logger: logger}
}

// Add constructs a fresh descriptor with state Unknown and appends it,
// rejecting duplicate address names.
func (r *Registry) Add(addr Address, role Role) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.backends {
		if b.Address.Name == addr.Name {
			return nil, ErrDuplicate
		}
	}
	d := &Descriptor{
		Address:    addr,
		Role:       role,
		State:      Unknown,
		StateSince: r.now(),
	}
	r.backends = append(r.backends, d)
	return d, nil
}

// Get returns the backend at index, or false if out of range.
func (r *Registry) Get(index int) (*Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.backends) {
		return nil, false
	}
	return r.backends[index], true
}

// Count returns the number of registered backends.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backends)
}

// Snapshot returns a shallow copy of the descriptor list for callers
// (admin API, metrics exporter) that must not hold the registry mutex
// across I/O.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, len(r.backends))
	for i, b := range r.backends {
		out[i] = *b
	}
	return out
}

// Check runs the throttled health-recovery sweep: a no-op if invoked
// less than checkThrottle since the last sweep; otherwise flips any
// Down backend whose StateSince is more than downDwell in the past to
// Unknown, admitting retry traffic. Returns the number of backends
// awakened. Safe and cheap to call on every session step.
func (r *Registry) Check() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Before(r.lastCheck) {
		r.log(logrecord.Info, "system clock went backwards; resetting health-check throttle")
		r.lastCheck = time.Time{}
	}
	if !r.lastCheck.IsZero() && now.Sub(r.lastCheck) < checkThrottle {
		return 0
	}
	r.lastCheck = now

	woken := 0
	for _, b := range r.backends {
		if b.State == Down && now.Sub(b.StateSince) > downDwell {
			b.State = Unknown
			b.StateSince = now
			woken++
		}
	}
	return woken
}

// MarkDown flips a backend to Down, recording the state-transition
// time. Called by session code observing a failed connect or a fatal
// protocol error on a pooled socket.
func (r *Registry) MarkDown(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.State = Down
	d.StateSince = r.now()
}

func (r *Registry) log(level logrecord.Level, msg string) {
	if r.logger != nil {
		r.logger.Log(logrecord.Record{Logger: "backend", Level: level, Message: msg})
	}
}
