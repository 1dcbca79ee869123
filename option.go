package tally

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ryhazerus/tally/store"
)

// Option configures the Recorder.
type Option func(*Recorder)

// WithStore sets the backing store for actor and counter records.
// If not provided, an in-memory store is used by default.
func WithStore(s store.Store) Option {
	return func(r *Recorder) {
		r.store = s
	}
}

// WithLogger sets the logger used to report failed and retried records.
// The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithTracerProvider sets the provider for RecordOnce spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Recorder) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// WithMaxAttempts bounds how many times a conflicting transaction is tried
// before RecordOnce gives up. Values below 1 mean a single attempt.
func WithMaxAttempts(n int) Option {
	return func(r *Recorder) {
		r.maxAttempts = n
	}
}

// WithBackoff sets the initial and maximum delay between conflict retries.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(r *Recorder) {
		r.initialBackoff = initial
		r.maxBackoff = maxDelay
	}
}

// WithOnRecorded sets a callback that fires once for every newly recorded
// (actor, key) pair. It is not called for duplicates or failures. A panic in
// fn is logged and does not reach the RecordOnce caller.
func WithOnRecorded(fn func(actorID, key string)) Option {
	return func(r *Recorder) {
		r.onRecorded = fn
	}
}
