// Package history implements the bounded in-memory conversation store.
// Sessions are keyed by user ID, created lazily, and live for the process
// lifetime only.
package history

import (
	"context"
	"time"

	"github.com/HingolSingh/airelay/internal/llm"
)

// Turn is one message exchange unit in a conversation.
type Turn struct {
	Role      llm.Role  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UserTurn builds a user turn stamped now.
func UserTurn(content string) Turn {
	return Turn{Role: llm.RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantTurn builds an assistant turn stamped now.
func AssistantTurn(content string) Turn {
	return Turn{Role: llm.RoleAssistant, Content: content, Timestamp: time.Now()}
}

// Usage is the cumulative budget a session has consumed.
type Usage struct {
	Chars  int `json:"chars"`
	Tokens int `json:"tokens"`
}

// Store manages per-user conversation history. Implementations are safe for
// concurrent use across users; callers that need same-user ordering
// serialize above the store.
type Store interface {
	// History returns a copy of the ordered history for a user, empty if
	// none. Never fails.
	History(ctx context.Context, userID string) []Turn

	// Append adds turns and evicts oldest-first until the configured
	// bounds hold. Relative order of surviving turns is preserved.
	Append(ctx context.Context, userID string, turns ...Turn)

	// Reset clears a user's history. Idempotent.
	Reset(ctx context.Context, userID string)

	// Preference returns the user's active provider preference, empty if
	// unset.
	Preference(ctx context.Context, userID string) string

	// SetPreference records the user's provider preference.
	SetPreference(ctx context.Context, userID, provider string)

	// AddUsage accumulates consumed budget for a user.
	AddUsage(ctx context.Context, userID string, usage Usage)

	// UsageFor returns the cumulative consumed budget for a user.
	UsageFor(ctx context.Context, userID string) Usage
}
