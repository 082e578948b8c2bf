// Package router selects provider candidates for a request: explicit user
// preference first, then configured priority, with unhealthy providers
// filtered by a per-provider circuit breaker.
package router

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HingolSingh/airelay/internal/llm"
)

// Descriptor describes one registered provider backend. Capability set and
// priority are static configuration; health state is mutated only by the
// fallback controller after an attempt.
type Descriptor struct {
	Name         string
	Client       llm.Client
	Capabilities map[llm.Capability]bool
	Priority     int
	FreeTier     bool

	// Health state. Atomics: updated per descriptor, never under a lock
	// shared across providers.
	consecutiveFailures atomic.Int32
	lastFailureUnixNano atomic.Int64
	authDisabled        atomic.Bool
}

// Supports reports whether the provider declares the capability.
func (d *Descriptor) Supports(c llm.Capability) bool {
	return d.Capabilities[c]
}

// ConsecutiveFailures returns the current consecutive-failure count.
func (d *Descriptor) ConsecutiveFailures() int {
	return int(d.consecutiveFailures.Load())
}

// RecordFailure increments the consecutive-failure count and stamps the
// failure time.
func (d *Descriptor) RecordFailure(now time.Time) {
	d.consecutiveFailures.Add(1)
	d.lastFailureUnixNano.Store(now.UnixNano())
}

// RecordSuccess resets the consecutive-failure count.
func (d *Descriptor) RecordSuccess() {
	d.consecutiveFailures.Store(0)
}

// DisableAuth marks the provider unusable until reconfigured. Set on fatal
// credential failures.
func (d *Descriptor) DisableAuth() {
	d.authDisabled.Store(true)
}

// AuthDisabled reports whether the provider was disabled by an auth
// failure.
func (d *Descriptor) AuthDisabled() bool {
	return d.authDisabled.Load()
}

// healthy applies the circuit breaker: a provider is unhealthy while its
// consecutive failures have reached threshold and the last failure is
// within cooldown. Auth-disabled providers are always unhealthy.
func (d *Descriptor) healthy(threshold int, cooldown time.Duration, now time.Time) bool {
	if d.authDisabled.Load() {
		return false
	}
	if threshold <= 0 {
		return true
	}
	if int(d.consecutiveFailures.Load()) < threshold {
		return true
	}
	last := time.Unix(0, d.lastFailureUnixNano.Load())
	return now.Sub(last) >= cooldown
}

// Registry holds the registered providers. Registration happens at startup;
// lookups afterwards are read-mostly.
type Registry struct {
	mu        sync.RWMutex
	providers []*Descriptor
	byName    map[string]*Descriptor
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a provider. Fails on duplicate names and on descriptors
// without a client or capabilities.
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("register provider: empty name")
	}
	if d.Client == nil {
		return fmt.Errorf("register provider %q: nil client", d.Name)
	}
	if len(d.Capabilities) == 0 {
		return fmt.Errorf("register provider %q: no capabilities", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("register provider %q: already registered", d.Name)
	}
	r.providers = append(r.providers, d)
	r.byName[d.Name] = d
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Priority < r.providers[j].Priority
	})
	return nil
}

// Get returns a provider by name, nil if unknown.
func (r *Registry) Get(name string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns the providers in priority order.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.providers))
	copy(out, r.providers)
	return out
}
