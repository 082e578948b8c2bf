package router

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/HingolSingh/airelay/internal/llm"
)

// NoCapableProviderError is returned when no registered provider supports a
// requested capability.
type NoCapableProviderError struct {
	Capability llm.Capability
}

func (e *NoCapableProviderError) Error() string {
	return fmt.Sprintf("no provider supports capability %q", e.Capability)
}

// UserMessage returns the human-readable failure text for the end user.
func (e *NoCapableProviderError) UserMessage() string {
	return fmt.Sprintf("Sorry, no configured AI backend can handle %s requests.", e.Capability)
}

// Router builds the ordered candidate list for a request.
type Router struct {
	registry  *Registry
	threshold int
	cooldown  time.Duration
	rules     atomic.Pointer[RuleSet]
	now       func() time.Time
}

// RouterOption configures the Router.
type RouterOption func(*Router)

// WithRules installs configurable routing rules evaluated during selection.
func WithRules(rules *RuleSet) RouterOption {
	return func(r *Router) { r.rules.Store(rules) }
}

// WithNow injects a clock. Used in tests.
func WithNow(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// New creates a router over the registry. threshold is the
// consecutive-failure count that trips the circuit breaker; cooldown is how
// long a tripped provider stays excluded after its last failure.
func New(registry *Registry, threshold int, cooldown time.Duration, opts ...RouterOption) *Router {
	r := &Router{
		registry:  registry,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the underlying provider registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// SetRules swaps the routing rules. Safe to call while requests are in
// flight; used by config hot reload.
func (r *Router) SetRules(rules *RuleSet) {
	r.rules.Store(rules)
}

// SelectInput carries the selection context for one request.
type SelectInput struct {
	UserID     string
	Capability llm.Capability
	Preference string
	Chars      int
}

// Select returns the ordered candidate list: the user's preferred provider
// first when capable and healthy, then rule-promoted providers, then the
// rest by configured priority. Unhealthy providers are excluded. Fails with
// NoCapableProviderError when no registered provider supports the
// capability at all.
func (r *Router) Select(in SelectInput) ([]*Descriptor, error) {
	now := r.now()
	supported := false

	var candidates []*Descriptor
	for _, d := range r.registry.All() {
		if !d.Supports(in.Capability) {
			continue
		}
		supported = true
		if !d.healthy(r.threshold, r.cooldown, now) {
			continue
		}
		candidates = append(candidates, d)
	}

	if !supported {
		return nil, &NoCapableProviderError{Capability: in.Capability}
	}

	if rules := r.rules.Load(); rules != nil {
		if preferred := rules.Preferred(in); preferred != "" {
			candidates = promote(candidates, preferred)
		}
	}
	if in.Preference != "" {
		candidates = promote(candidates, in.Preference)
	}
	return candidates, nil
}

// promote moves the named provider to the front, preserving the relative
// order of the others. No-op when the name is not a candidate.
func promote(candidates []*Descriptor, name string) []*Descriptor {
	for i, d := range candidates {
		if d.Name == name {
			out := make([]*Descriptor, 0, len(candidates))
			out = append(out, d)
			out = append(out, candidates[:i]...)
			out = append(out, candidates[i+1:]...)
			return out
		}
	}
	return candidates
}
