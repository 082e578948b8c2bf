// Package dispatch composes the router, rate limiter, context store, and
// provider adapters into the message-handling engine, wrapping provider
// calls with retry and cross-provider fallback.
package dispatch

import (
	"fmt"
	"time"
)

// RateLimitError is returned when admission is rejected. Terminal for the
// request; the caller surfaces the retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// UserMessage returns the human-readable failure text for the end user.
func (e *RateLimitError) UserMessage() string {
	return fmt.Sprintf("You're sending messages too quickly. Please wait %d seconds and try again.",
		int(e.RetryAfter.Seconds())+1)
}

// AllProvidersFailedError is returned when every candidate was exhausted.
// It carries the last observed provider error for diagnostics.
type AllProvidersFailedError struct {
	Attempts int
	LastErr  error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.LastErr
}

// UserMessage returns the human-readable failure text for the end user.
func (e *AllProvidersFailedError) UserMessage() string {
	return "The AI service is temporarily unavailable. Please try again in a few minutes."
}
