package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// Allocator hands out one unique ticket number per email.
type Allocator struct {
	*deps
	pool Pool
}

// NewAllocator creates an Allocator drawing numbers from pool.
func NewAllocator(st store.Store, pool Pool, opts ...Option) (*Allocator, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if err := pool.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{deps: newDeps(st, opts), pool: pool}, nil
}

// Pool returns the configured number range.
func (a *Allocator) Pool() Pool {
	return a.pool
}

// Register returns the participant for email, creating it with a random
// unused number if the email is new. Re-registering an email returns the
// original participant unchanged.
func (a *Allocator) Register(ctx context.Context, name, email string) (p models.Participant, err error) {
	ctx, span := startSpan(ctx, "Allocator.Register")
	defer func() { endSpan(span, err) }()

	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return models.Participant{}, invalid("name", "must not be empty")
	}
	if err := validateEmail(email); err != nil {
		return models.Participant{}, err
	}

	var created bool
	err = a.runInTx(ctx, "register", func(ctx context.Context, tx store.Tx) error {
		created = false
		participants, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		if existing, ok := findEmail(participants, email); ok {
			p = existing
			return nil
		}

		candidates := a.pool.Candidates(usedNumbers(participants))
		if len(candidates) == 0 {
			return ErrPoolExhausted
		}
		p = models.Participant{
			ID:        a.newID(),
			Name:      name,
			Email:     email,
			Number:    candidates[a.intn(len(candidates))],
			CreatedAt: a.now(),
		}
		if err := tx.InsertParticipant(ctx, p); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) && a.metrics != nil {
			a.metrics.PoolExhausted.Inc()
		}
		return models.Participant{}, err
	}

	span.SetAttributes(attribute.Int("luckydraw.number", p.Number), attribute.Bool("luckydraw.created", created))
	if !created {
		if a.metrics != nil {
			a.metrics.ReRegistrations.Inc()
		}
		return p, nil
	}
	if a.metrics != nil {
		a.metrics.Registrations.Inc()
	}
	logger.Infof("registered participant %s with number %d", p.ID, p.Number)
	a.announce(ctx, models.Event{Kind: models.EventParticipantRegistered, Participant: &p})
	return p, nil
}

// ListParticipants returns all participants, newest first.
func (a *Allocator) ListParticipants(ctx context.Context) (out []models.Participant, err error) {
	ctx, span := startSpan(ctx, "Allocator.ListParticipants")
	defer func() { endSpan(span, err) }()
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	out, err = a.store.ListParticipants(ctx)
	if err != nil {
		return nil, storeError("list participants", err)
	}
	return out, nil
}

// FindByNumber returns the participant holding number; ok is false when the
// number is not assigned.
func (a *Allocator) FindByNumber(ctx context.Context, number int) (p models.Participant, ok bool, err error) {
	ctx, span := startSpan(ctx, "Allocator.FindByNumber", trace.WithAttributes(attribute.Int("luckydraw.number", number)))
	defer func() { endSpan(span, err) }()
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	p, err = a.store.FindParticipantByNumber(ctx, number)
	if errors.Is(err, store.ErrNotFound) {
		return models.Participant{}, false, nil
	}
	if err != nil {
		return models.Participant{}, false, storeError(fmt.Sprintf("find participant %d", number), err)
	}
	return p, true, nil
}
