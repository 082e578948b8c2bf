package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/HingolSingh/airelay/internal/analytics"
	"github.com/HingolSingh/airelay/internal/history"
	"github.com/HingolSingh/airelay/internal/llm"
	"github.com/HingolSingh/airelay/internal/ratelimit"
	"github.com/HingolSingh/airelay/internal/router"
	"github.com/HingolSingh/airelay/internal/telemetry"
)

// MessageRequest is the inbound boundary contract: one user message with
// its requested capability and optional explicit provider override.
type MessageRequest struct {
	UserID           string
	Parts            []llm.Part
	Capability       llm.Capability
	ProviderOverride string
}

// Response is the normalized outcome returned to the transport layer.
type Response struct {
	Content   string         `json:"content,omitempty"`
	ImageData []byte         `json:"image_data,omitempty"`
	MimeType  string         `json:"mime_type,omitempty"`
	Provider  string         `json:"provider"`
	Usage     llm.TokenUsage `json:"usage"`
	RequestID string         `json:"request_id,omitempty"`
}

// EngineConfig holds the engine-level settings.
type EngineConfig struct {
	SystemPrompt  string
	MaxMessageLen int
	MaxTokens     int
	Temperature   *float64
	// MaxInFlight bounds concurrent provider calls across all users.
	// 0 means 64.
	MaxInFlight int64
}

// Engine implements handle_message: admission, context assembly, routed
// dispatch with fallback, and history update. Same-user requests are
// serialized; different users proceed in parallel.
type Engine struct {
	config     EngineConfig
	limiter    *ratelimit.Limiter
	store      history.Store
	router     *router.Router
	controller *Controller
	recorder   *analytics.Recorder
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	sem        *semaphore.Weighted

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithRecorder wires the analytics recorder.
func WithRecorder(r *analytics.Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithMetrics wires the metrics collector.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine assembles the engine from its collaborators.
func NewEngine(config EngineConfig, limiter *ratelimit.Limiter, store history.Store, rt *router.Router, controller *Controller, opts ...EngineOption) *Engine {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 64
	}
	e := &Engine{
		config:     config,
		limiter:    limiter,
		store:      store,
		router:     rt,
		controller: controller,
		logger:     slog.Default(),
		sem:        semaphore.NewWeighted(config.MaxInFlight),
		userLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// userLock returns the per-user mutex, creating it on first use. Locks are
// never removed; they are one word per known user, same lifetime as the
// session.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.userLocks[userID] = l
	}
	return l
}

// HandleMessage processes one inbound user message and returns the
// normalized response. Terminal failures: *RateLimitError,
// *router.NoCapableProviderError, *AllProvidersFailedError.
func (e *Engine) HandleMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("handle message: empty user id")
	}
	if len(req.Parts) == 0 {
		return nil, fmt.Errorf("handle message: empty message")
	}
	capability := req.Capability
	if capability == "" {
		capability = llm.CapabilityText
	}

	userText := partsText(req.Parts)
	if e.config.MaxMessageLen > 0 && len(userText) > e.config.MaxMessageLen {
		return nil, fmt.Errorf("handle message: message exceeds %d characters", e.config.MaxMessageLen)
	}

	ctx = telemetry.WithCorrelationID(ctx, "")
	logger := telemetry.RequestLogger(ctx, e.logger, req.UserID)
	start := time.Now()

	// Serialize same-user requests: history order must match admission
	// order, and two responses must never interleave.
	lock := e.userLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	if decision := e.limiter.Admit(req.UserID); !decision.Allowed {
		if e.metrics != nil {
			e.metrics.RecordRateLimited()
		}
		e.emit(req, "", capability, analytics.OutcomeRateLimited, time.Since(start), 0)
		logger.Info("request rate limited", "retry_after", decision.RetryAfter)
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	preference := req.ProviderOverride
	if preference == "" {
		preference = e.store.Preference(ctx, req.UserID)
	}

	candidates, err := e.router.Select(router.SelectInput{
		UserID:     req.UserID,
		Capability: capability,
		Preference: preference,
		Chars:      len(userText),
	})
	if err != nil {
		e.emit(req, "", capability, analytics.OutcomeNoProvider, time.Since(start), 0)
		logger.Warn("no capable provider", "capability", capability)
		return nil, err
	}

	chatReq := e.buildChatRequest(ctx, req, capability)

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("handle message: %w", err)
	}
	result, err := e.controller.Dispatch(ctx, candidates, chatReq)
	e.sem.Release(1)

	if err != nil {
		// No history write for a response that never arrived.
		e.emit(req, "", capability, analytics.OutcomeFailed, time.Since(start), 0)
		return nil, err
	}

	assistantText := result.Response.Content
	if assistantText == "" && len(result.Response.ImageData) > 0 {
		assistantText = "[generated image]"
	}
	e.store.Append(ctx, req.UserID,
		history.Turn{Role: llm.RoleUser, Content: userText, Timestamp: start},
		history.Turn{Role: llm.RoleAssistant, Content: assistantText, Timestamp: time.Now()},
	)
	e.store.AddUsage(ctx, req.UserID, history.Usage{
		Chars:  len(userText) + len(assistantText),
		Tokens: result.Response.Usage.Total(),
	})

	latency := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordRequest(result.Provider.Name, string(analytics.OutcomeSuccess),
			latency, result.Response.Usage.InputTokens, result.Response.Usage.OutputTokens)
	}
	e.emit(req, result.Provider.Name, capability, analytics.OutcomeSuccess,
		latency, result.Response.Usage.Total())
	logger.Info("request completed",
		"provider", result.Provider.Name, "attempts", result.Attempts,
		"latency_ms", latency.Milliseconds(), "tokens", result.Response.Usage.Total())

	return &Response{
		Content:   result.Response.Content,
		ImageData: result.Response.ImageData,
		MimeType:  result.Response.MimeType,
		Provider:  result.Provider.Name,
		Usage:     result.Response.Usage,
		RequestID: telemetry.CorrelationID(ctx),
	}, nil
}

// Reset clears a user's conversation history.
func (e *Engine) Reset(ctx context.Context, userID string) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	e.store.Reset(ctx, userID)
}

// SetPreference records a user's provider preference after validating the
// provider exists.
func (e *Engine) SetPreference(ctx context.Context, userID, provider string) error {
	if provider != "" && e.router.Registry().Get(provider) == nil {
		return fmt.Errorf("unknown provider %q", provider)
	}
	e.store.SetPreference(ctx, userID, provider)
	return nil
}

// Preference returns a user's provider preference.
func (e *Engine) Preference(ctx context.Context, userID string) string {
	return e.store.Preference(ctx, userID)
}

func (e *Engine) buildChatRequest(ctx context.Context, req MessageRequest, capability llm.Capability) llm.ChatRequest {
	past := e.store.History(ctx, req.UserID)
	messages := make([]llm.Message, 0, len(past)+1)
	for _, turn := range past {
		messages = append(messages, llm.Message{
			Role:      turn.Role,
			Parts:     []llm.Part{llm.TextPart(turn.Content)},
			Timestamp: turn.Timestamp,
		})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Parts: req.Parts})

	return llm.ChatRequest{
		System:      e.config.SystemPrompt,
		Messages:    messages,
		Capability:  capability,
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
	}
}

func (e *Engine) emit(req MessageRequest, provider string, capability llm.Capability, outcome analytics.Outcome, latency time.Duration, tokens int) {
	if e.recorder == nil {
		return
	}
	e.recorder.Emit(analytics.Record{
		UserID:     req.UserID,
		Provider:   provider,
		Capability: string(capability),
		Outcome:    outcome,
		Latency:    latency,
		Tokens:     tokens,
		Timestamp:  time.Now(),
	})
}

// partsText concatenates the text parts of a message, marking non-text
// parts so history stays readable.
func partsText(parts []llm.Part) string {
	var out string
	for _, p := range parts {
		switch p.Type {
		case llm.PartText:
			out += p.Text
		case llm.PartImage:
			out += "[image]"
		case llm.PartAudio:
			out += "[audio]"
		}
	}
	return out
}
