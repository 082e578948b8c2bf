// Package analytics carries the outbound per-request records the core emits
// for storage collaborators. The core never blocks on a sink.
package analytics

import (
	"context"
	"time"
)

// Outcome labels how a request finished.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeNoProvider  Outcome = "no_capable_provider"
	OutcomeFailed      Outcome = "all_providers_failed"
)

// Record is emitted once per completed request.
type Record struct {
	UserID     string        `json:"user_id"`
	Provider   string        `json:"provider,omitempty"`
	Capability string        `json:"capability"`
	Outcome    Outcome       `json:"outcome"`
	Latency    time.Duration `json:"latency"`
	Tokens     int           `json:"tokens"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Sink consumes request records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}
