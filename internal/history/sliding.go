package history

import (
	"context"
	"sync"
	"time"
)

// session is the per-user record. Owned exclusively by the store; all
// mutation goes through store methods.
type session struct {
	turns      []Turn
	preference string
	usage      Usage
	createdAt  time.Time
	lastActive time.Time
}

// SlidingStore is an in-memory Store with FIFO eviction on two bounds: a
// turn count and a character budget.
type SlidingStore struct {
	mu       sync.Mutex
	maxTurns int
	maxChars int
	sessions map[string]*session
}

// NewSlidingStore creates a sliding-window history store. maxTurns bounds
// the number of retained turns per user (default 20 when <= 0); maxChars
// bounds their total character size (0 disables the character bound).
func NewSlidingStore(maxTurns, maxChars int) *SlidingStore {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &SlidingStore{
		maxTurns: maxTurns,
		maxChars: maxChars,
		sessions: make(map[string]*session),
	}
}

func (s *SlidingStore) get(userID string) *session {
	sess, ok := s.sessions[userID]
	if !ok {
		now := time.Now()
		sess = &session{createdAt: now, lastActive: now}
		s.sessions[userID] = sess
	}
	return sess
}

// History returns a copy of the ordered history for a user.
func (s *SlidingStore) History(_ context.Context, userID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Append adds turns and evicts oldest-first until both bounds hold.
func (s *SlidingStore) Append(_ context.Context, userID string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(userID)
	sess.turns = append(sess.turns, turns...)
	sess.lastActive = time.Now()

	if len(sess.turns) > s.maxTurns {
		sess.turns = sess.turns[len(sess.turns)-s.maxTurns:]
	}
	if s.maxChars > 0 {
		total := 0
		for _, t := range sess.turns {
			total += len(t.Content)
		}
		for total > s.maxChars && len(sess.turns) > 1 {
			total -= len(sess.turns[0].Content)
			sess.turns = sess.turns[1:]
		}
	}
}

// Reset clears a user's history but keeps preference and consumed usage.
func (s *SlidingStore) Reset(_ context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.turns = nil
		sess.lastActive = time.Now()
	}
}

// Preference returns the user's provider preference.
func (s *SlidingStore) Preference(_ context.Context, userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess.preference
	}
	return ""
}

// SetPreference records the user's provider preference.
func (s *SlidingStore) SetPreference(_ context.Context, userID, provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(userID)
	sess.preference = provider
	sess.lastActive = time.Now()
}

// AddUsage accumulates consumed budget for a user.
func (s *SlidingStore) AddUsage(_ context.Context, userID string, usage Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(userID)
	sess.usage.Chars += usage.Chars
	sess.usage.Tokens += usage.Tokens
}

// UsageFor returns the cumulative consumed budget for a user.
func (s *SlidingStore) UsageFor(_ context.Context, userID string) Usage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess.usage
	}
	return Usage{}
}

// Len reports the number of live sessions. Used by metrics.
func (s *SlidingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
