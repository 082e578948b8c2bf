package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure for retry and fallback decisions.
type ErrorKind int

const (
	// KindTransient covers timeouts and connection failures. Retryable.
	KindTransient ErrorKind = iota
	// KindQuota covers provider-side quota or rate exhaustion. Retryable
	// after backoff or via fallback.
	KindQuota
	// KindAuth covers bad or missing credentials. Fatal for the provider
	// until reconfigured; never retried.
	KindAuth
	// KindUnsupported means the request needs a capability the provider
	// lacks. A routing signal, never retried on the same provider.
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindAuth:
		return "auth"
	case KindUnsupported:
		return "unsupported_capability"
	default:
		return "transient"
	}
}

// ProviderError wraps a failure from a provider adapter with its
// classification.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a classified provider error.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// KindOf returns the classification of err. Unwrapped errors and plain
// network/context failures classify as transient, the safe retryable
// default.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// IsAuth reports whether err is a fatal credential failure.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsQuota reports whether err is provider-side quota exhaustion.
func IsQuota(err error) bool { return KindOf(err) == KindQuota }

// IsTransient reports whether err is a timeout or connection failure.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsUnsupported reports whether err signals a missing capability.
func IsUnsupported(err error) bool { return KindOf(err) == KindUnsupported }

// IsRetryable reports whether the same provider may be retried after
// backoff.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient || k == KindQuota
}

// classifyStatus maps an HTTP status code from a provider API onto an
// error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindQuota
	default:
		return KindTransient
	}
}

