package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Recorder fans records out to sinks from a background worker so emission
// never blocks a request. Records are dropped, with a log line, when the
// buffer is full.
type Recorder struct {
	ch     chan Record
	sinks  []Sink
	logger *slog.Logger
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewRecorder creates a recorder over the given sinks and starts its
// worker. buffer defaults to 256 when <= 0.
func NewRecorder(logger *slog.Logger, buffer int, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		ch:     make(chan Record, buffer),
		sinks:  sinks,
		logger: logger,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for rec := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for _, sink := range r.sinks {
			if err := sink.Write(ctx, rec); err != nil {
				r.logger.Warn("analytics sink write failed", "error", err)
			}
		}
		cancel()
	}
}

// Emit queues a record without blocking.
func (r *Recorder) Emit(rec Record) {
	select {
	case r.ch <- rec:
	default:
		r.logger.Warn("analytics buffer full, dropping record", "user_id", rec.UserID)
	}
}

// Close drains queued records and closes the sinks.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.ch) })
	r.wg.Wait()

	var firstErr error
	for _, sink := range r.sinks {
		if err := sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
