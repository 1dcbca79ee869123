package tally

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ryhazerus/tally/store"
)

const tracerName = "github.com/ryhazerus/tally"

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 10 * time.Millisecond
	defaultMaxBackoff     = 250 * time.Millisecond
)

// ErrIdentityUnavailable is reported when no actor id could be resolved.
var ErrIdentityUnavailable = errors.New("tally: actor identity unavailable")

// Recorder counts events at most once per actor. Create one with New at
// startup and share it; it is safe for concurrent use.
type Recorder struct {
	store          store.Store
	logger         *zap.Logger
	tracer         trace.Tracer
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	onRecorded     func(actorID, key string)
}

// New creates a new Recorder with the given options.
// If no store is provided, an in-memory store is used.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, o := range opts {
		o(r)
	}
	if r.store == nil {
		r.store = store.NewMemoryStore()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.tracer == nil {
		r.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	return r
}

// RecordOnce records that actorID triggered key. The pair contributes to the
// key's counter at most once no matter how often, or how concurrently, it is
// recorded.
//
// RecordOnce never panics and never requires the caller to act on failure:
// store errors are logged and reported in the Result, which callers may
// ignore. An empty key is skipped silently.
func (r *Recorder) RecordOnce(ctx context.Context, actorID, key string) Result {
	if strings.TrimSpace(key) == "" {
		return Result{Outcome: Skipped}
	}
	if strings.TrimSpace(actorID) == "" {
		r.logger.Warn("skipping event without actor", zap.String("key", key))
		return Result{Outcome: Skipped, Err: ErrIdentityUnavailable}
	}

	ctx, span := r.tracer.Start(ctx, "tally.RecordOnce", trace.WithAttributes(
		attribute.String("tally.actor", actorID),
		attribute.String("tally.key", key),
	))
	defer span.End()

	attempts := 0
	op := func() (bool, error) {
		attempts++
		recorded, err := r.store.Record(ctx, actorID, key)
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return false, backoff.Permanent(err)
		}
		return recorded, err
	}

	recorded, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("retrying record after conflict",
				zap.String("actor", actorID),
				zap.String("key", key),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)

	res := Result{Attempts: attempts}
	switch {
	case err != nil:
		res.Outcome = Failed
		res.Err = fmt.Errorf("tally: record %q for %q: %w", key, actorID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
		r.logger.Error("record event failed",
			zap.String("actor", actorID),
			zap.String("key", key),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	case recorded:
		res.Outcome = Recorded
		r.logger.Debug("event recorded", zap.String("actor", actorID), zap.String("key", key))
		r.notifyRecorded(actorID, key)
	default:
		res.Outcome = AlreadyRecorded
	}

	span.SetAttributes(
		attribute.String("tally.outcome", res.Outcome.String()),
		attribute.Int("tally.attempts", attempts),
	)
	return res
}

// notifyRecorded runs the WithOnRecorded callback. A panic in the callback is
// logged and swallowed; the event is already stored.
func (r *Recorder) notifyRecorded(actorID, key string) {
	if r.onRecorded == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("on-recorded callback panicked",
				zap.String("actor", actorID),
				zap.String("key", key),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
	}()
	r.onRecorded(actorID, key)
}

func (r *Recorder) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialBackoff
	b.MaxInterval = r.maxBackoff
	return b
}

// Count returns the number of distinct actors that triggered key.
func (r *Recorder) Count(ctx context.Context, key string) (int64, error) {
	c, _, err := r.store.Counter(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("tally: count %q: %w", key, err)
	}
	return c.Count, nil
}

// Seen reports whether actorID has already triggered key.
func (r *Recorder) Seen(ctx context.Context, actorID, key string) (bool, error) {
	a, _, err := r.store.Actor(ctx, actorID)
	if err != nil {
		return false, fmt.Errorf("tally: seen %q: %w", actorID, err)
	}
	return a.Has(key), nil
}

// Actor returns the stored record for actorID. ok is false if the actor has
// never recorded an event.
func (r *Recorder) Actor(ctx context.Context, actorID string) (rec store.ActorRecord, ok bool, err error) {
	rec, ok, err = r.store.Actor(ctx, actorID)
	if err != nil {
		return store.ActorRecord{}, false, fmt.Errorf("tally: actor %q: %w", actorID, err)
	}
	return rec, ok, nil
}

// KeyCount holds a point-in-time counter for a single key.
type KeyCount struct {
	Key   string
	Count int64
}

// Snapshot returns the current counter for each of keys, in order.
func (r *Recorder) Snapshot(ctx context.Context, keys ...string) ([]KeyCount, error) {
	out := make([]KeyCount, 0, len(keys))
	for _, k := range keys {
		c, _, err := r.store.Counter(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("tally: snapshot %s: %w", k, err)
		}
		out = append(out, KeyCount{Key: k, Count: c.Count})
	}
	return out, nil
}

// Close releases resources held by the recorder's store.
func (r *Recorder) Close() error {
	return r.store.Close()
}
