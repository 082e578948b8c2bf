package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/HingolSingh/airelay/internal/llm"
	"github.com/HingolSingh/airelay/internal/router"
	"github.com/HingolSingh/airelay/internal/telemetry"
)

// State tracks where a dispatch is in its lifecycle. Exposed for logging.
type State string

const (
	StatePending     State = "pending"
	StateAttempting  State = "attempting"
	StateRetrying    State = "retrying"
	StateFallingBack State = "falling_back"
	StateSuccess     State = "success"
	StateExhausted   State = "exhausted"
)

// ControllerConfig holds retry and fallback policy.
type ControllerConfig struct {
	AttemptTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
}

// DefaultControllerConfig returns the default policy.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		AttemptTimeout: 30 * time.Second,
		MaxRetries:     3,
		BackoffBase:    500 * time.Millisecond,
	}
}

// Controller walks an ordered candidate list, retrying retryable failures
// on the same provider with exponential backoff before falling back to the
// next. Provider health state is updated here and nowhere else.
type Controller struct {
	config  ControllerConfig
	logger  *slog.Logger
	metrics *telemetry.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// ControllerOption configures the Controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithControllerMetrics wires the metrics collector.
func WithControllerMetrics(m *telemetry.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithSleep injects the backoff sleep. Used in tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ControllerOption {
	return func(c *Controller) { c.sleep = sleep }
}

// NewController creates a fallback controller.
func NewController(config ControllerConfig, opts ...ControllerOption) *Controller {
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = DefaultControllerConfig().AttemptTimeout
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = DefaultControllerConfig().BackoffBase
	}
	c := &Controller{
		config: config,
		logger: slog.Default(),
		sleep:  sleepCtx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a successful dispatch.
type Result struct {
	Response *llm.ChatResponse
	Provider *router.Descriptor
	Attempts int
}

// Dispatch tries each candidate in order until one succeeds. On success the
// winning provider's consecutive-failure count is reset. When every
// candidate is exhausted it fails with AllProvidersFailedError carrying the
// last observed error.
func (c *Controller) Dispatch(ctx context.Context, candidates []*router.Descriptor, req llm.ChatRequest) (*Result, error) {
	state := StatePending
	attempts := 0
	var lastErr error

	for i, cand := range candidates {
		state = StateAttempting
		resp, err, n := c.attempt(ctx, cand, req)
		attempts += n
		if err == nil {
			cand.RecordSuccess()
			state = StateSuccess
			c.logger.Debug("dispatch succeeded",
				"provider", cand.Name, "attempts", attempts, "state", string(state))
			return &Result{Response: resp, Provider: cand, Attempts: attempts}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(candidates)-1 {
			state = StateFallingBack
			c.logger.Info("falling back to next provider",
				"provider", cand.Name, "error", err, "state", string(state))
		}
	}

	state = StateExhausted
	c.logger.Warn("all providers exhausted",
		"attempts", attempts, "last_error", lastErr, "state", string(state))
	return nil, &AllProvidersFailedError{Attempts: attempts, LastErr: lastErr}
}

// attempt runs one candidate through its retry budget. Returns the number
// of calls made. Health bookkeeping:
//   - auth failure disables the provider immediately, no retry, no backoff;
//   - unsupported capability skips the provider with no health penalty;
//   - transient/quota failures retry with exponential backoff, then count
//     one consecutive failure when the budget is spent.
func (c *Controller) attempt(ctx context.Context, cand *router.Descriptor, req llm.ChatRequest) (*llm.ChatResponse, error, int) {
	calls := 0
	for retry := 0; ; retry++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
		resp, err := cand.Client.Chat(attemptCtx, req)
		cancel()
		calls++

		if err == nil {
			return resp, nil, calls
		}

		switch kind := llm.KindOf(err); kind {
		case llm.KindAuth:
			cand.DisableAuth()
			c.logger.Error("provider disabled on auth failure", "provider", cand.Name, "error", err)
			return nil, err, calls
		case llm.KindUnsupported:
			return nil, err, calls
		default: // transient or quota
			if retry >= c.config.MaxRetries || ctx.Err() != nil {
				cand.RecordFailure(c.now())
				return nil, err, calls
			}
			if c.metrics != nil {
				c.metrics.RecordRetry(cand.Name, kind.String())
			}
			backoff := c.config.BackoffBase << uint(retry)
			c.logger.Debug("retrying provider",
				"provider", cand.Name, "retry", retry+1, "backoff", backoff,
				"error", err, "state", string(StateRetrying))
			if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
				// Canceled mid-backoff: surface the provider error,
				// no health penalty for the caller's cancellation.
				return nil, err, calls
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
