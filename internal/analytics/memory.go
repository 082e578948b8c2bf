package analytics

import (
	"context"
	"sync"
	"time"
)

// UserStats aggregates a user's recorded activity.
type UserStats struct {
	TotalRequests int            `json:"total_requests"`
	ByCapability  map[string]int `json:"by_capability"`
	ByProvider    map[string]int `json:"by_provider"`
	TotalTokens   int            `json:"total_tokens"`
	AvgLatencyMS  float64        `json:"avg_latency_ms"`
}

// MemorySink keeps a bounded ring of recent records and per-user
// aggregates. It backs the stats endpoint when no database is configured.
type MemorySink struct {
	mu      sync.Mutex
	maxRecs int
	records []Record
	byUser  map[string]*userAgg
}

type userAgg struct {
	requests   int
	capability map[string]int
	provider   map[string]int
	tokens     int
	latencySum time.Duration
	latencyN   int
}

// NewMemorySink creates an in-memory sink retaining up to maxRecords recent
// records (default 1000 when <= 0).
func NewMemorySink(maxRecords int) *MemorySink {
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &MemorySink{
		maxRecs: maxRecords,
		byUser:  make(map[string]*userAgg),
	}
}

// Write stores the record and updates aggregates.
func (s *MemorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if len(s.records) > s.maxRecs {
		s.records = s.records[len(s.records)-s.maxRecs:]
	}

	agg, ok := s.byUser[rec.UserID]
	if !ok {
		agg = &userAgg{
			capability: make(map[string]int),
			provider:   make(map[string]int),
		}
		s.byUser[rec.UserID] = agg
	}
	agg.requests++
	agg.capability[rec.Capability]++
	if rec.Provider != "" {
		agg.provider[rec.Provider]++
	}
	agg.tokens += rec.Tokens
	if rec.Outcome == OutcomeSuccess {
		agg.latencySum += rec.Latency
		agg.latencyN++
	}
	return nil
}

// Close is a no-op for the memory sink.
func (s *MemorySink) Close(context.Context) error { return nil }

// StatsFor returns the aggregates for a user. Zero-valued stats when the
// user has no records.
func (s *MemorySink) StatsFor(userID string) UserStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := UserStats{
		ByCapability: make(map[string]int),
		ByProvider:   make(map[string]int),
	}
	agg, ok := s.byUser[userID]
	if !ok {
		return stats
	}
	stats.TotalRequests = agg.requests
	stats.TotalTokens = agg.tokens
	for k, v := range agg.capability {
		stats.ByCapability[k] = v
	}
	for k, v := range agg.provider {
		stats.ByProvider[k] = v
	}
	if agg.latencyN > 0 {
		stats.AvgLatencyMS = float64(agg.latencySum.Milliseconds()) / float64(agg.latencyN)
	}
	return stats
}

// Recent returns up to n most recent records, newest last.
func (s *MemorySink) Recent(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	out := make([]Record, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}
