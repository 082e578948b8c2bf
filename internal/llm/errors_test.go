package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"auth", NewProviderError("gemini", KindAuth, errors.New("bad key")), KindAuth},
		{"quota", NewProviderError("gemini", KindQuota, errors.New("429")), KindQuota},
		{"transient", NewProviderError("gemini", KindTransient, errors.New("reset")), KindTransient},
		{"unsupported", NewProviderError("gemini", KindUnsupported, errors.New("no vision")), KindUnsupported},
		{"plain error defaults to transient", errors.New("boom"), KindTransient},
		{"wrapped provider error", fmt.Errorf("outer: %w", NewProviderError("x", KindQuota, errors.New("q"))), KindQuota},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	auth := NewProviderError("p", KindAuth, errors.New("e"))
	quota := NewProviderError("p", KindQuota, errors.New("e"))
	transient := NewProviderError("p", KindTransient, errors.New("e"))
	unsupported := NewProviderError("p", KindUnsupported, errors.New("e"))

	if !IsAuth(auth) || IsAuth(quota) {
		t.Error("IsAuth misclassified")
	}
	if !IsQuota(quota) || IsQuota(auth) {
		t.Error("IsQuota misclassified")
	}
	if !IsUnsupported(unsupported) || IsUnsupported(transient) {
		t.Error("IsUnsupported misclassified")
	}
	if !IsTransient(transient) || IsTransient(quota) {
		t.Error("IsTransient misclassified")
	}
	if !IsRetryable(transient) || !IsRetryable(quota) {
		t.Error("IsRetryable should accept transient and quota")
	}
	if IsRetryable(auth) || IsRetryable(unsupported) {
		t.Error("IsRetryable should reject auth and unsupported")
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewProviderError("gemini", KindTransient, inner)

	if !errors.Is(err, inner) {
		t.Error("ProviderError does not unwrap to the inner error")
	}
	if err.Error() == "" {
		t.Error("Error() is empty")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindQuota},
		{500, KindTransient},
		{502, KindTransient},
		{503, KindTransient},
		{400, KindTransient},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
