package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"luckydraw/internal/metrics"
	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

const (
	defaultTxTimeout       = 5 * time.Second
	defaultMaxAttempts     = 5
	defaultAnnounceTimeout = 2 * time.Second
	retryBaseDelay         = 5 * time.Millisecond
)

var tracer = otel.Tracer("luckydraw/services")

// Announcer receives events after a state change has been committed.
// Failures are logged and never undo or fail the operation.
type Announcer interface {
	Announce(ctx context.Context, event models.Event) error
}

// Option configures an Allocator or a Drawer.
type Option func(*deps)

// deps is shared by every component so they agree on timeouts, retry budget,
// clock and random source.
type deps struct {
	store       store.Store
	announcer   Announcer
	metrics     *metrics.Metrics
	now         func() time.Time
	intn        func(n int) int
	newID       func() string
	txTimeout   time.Duration
	maxAttempts int

	announceTimeout time.Duration
}

func newDeps(st store.Store, opts []Option) *deps {
	d := &deps{
		store:       st,
		now:         func() time.Time { return time.Now().UTC() },
		intn:        rand.IntN,
		newID:       uuid.NewString,
		txTimeout:   defaultTxTimeout,
		maxAttempts: defaultMaxAttempts,

		announceTimeout: defaultAnnounceTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// WithAnnouncer publishes committed events to a.
func WithAnnouncer(a Announcer) Option {
	return func(d *deps) { d.announcer = a }
}

// WithAnnounceTimeout bounds how long a committed operation waits on its announcer.
func WithAnnounceTimeout(timeout time.Duration) Option {
	return func(d *deps) {
		if timeout > 0 {
			d.announceTimeout = timeout
		}
	}
}

// WithMetrics records operation counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

// WithRandom overrides the uniform index source; intn(n) must return a value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(d *deps) { d.intn = intn }
}

// WithTxTimeout bounds every store call that has no deadline of its own.
func WithTxTimeout(timeout time.Duration) Option {
	return func(d *deps) {
		if timeout > 0 {
			d.txTimeout = timeout
		}
	}
}

// WithMaxAttempts sets how many times a conflicting transaction is attempted.
func WithMaxAttempts(n int) Option {
	return func(d *deps) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// withTimeout applies the default timeout unless ctx already has a deadline.
func (d *deps) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.txTimeout)
}

// runInTx executes fn in a store transaction, retrying from scratch on
// store.ErrConflict. fn must recompute everything it needs on every attempt.
func (d *deps) runInTx(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	if d.metrics != nil {
		defer d.metrics.ObserveTx(op, time.Now())
	}

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err := d.store.RunInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return storeError(op, err)
		}
		if d.metrics != nil {
			d.metrics.IncConflict(op)
		}
		logger.Infof("%s: write conflict on attempt %d/%d: %v", op, attempt, d.maxAttempts, err)
		if attempt == d.maxAttempts {
			break
		}
		if err := sleep(ctx, backoff(attempt)); err != nil {
			return storeError(op, err)
		}
	}

	if d.metrics != nil {
		d.metrics.IncContentionExceeded(op)
	}
	return fmt.Errorf("%s: %w (%d attempts)", op, ErrContentionExceeded, d.maxAttempts)
}

// storeError passes domain errors through and marks timeouts as retriable.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, ErrPoolExhausted), errors.Is(err, ErrInconsistentState), IsValidation(err):
		return err
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// backoff grows linearly with jitter so retrying writers spread out.
func backoff(attempt int) time.Duration {
	base := retryBaseDelay * time.Duration(attempt)
	return base + rand.N(base)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *deps) announce(ctx context.Context, event models.Event) {
	if d.announcer == nil {
		return
	}
	event.At = d.now()
	// The change is already committed, so a cancelled request must not drop it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.announceTimeout)
	defer cancel()
	if err := d.announcer.Announce(ctx, event); err != nil {
		logger.Warningf("announce %s: %v", event.Kind, err)
	}
}

func startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, opts...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
