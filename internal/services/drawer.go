package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/logger"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// Drawer picks winners among registered numbers that have not won yet.
type Drawer struct {
	*deps
}

// NewDrawer creates a Drawer over st.
func NewDrawer(st store.Store, opts ...Option) (*Drawer, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	return &Drawer{deps: newDeps(st, opts)}, nil
}

// AvailableNumbers returns registered numbers that have not won, ascending.
// The result is derived on every call; a slightly stale view is acceptable
// because DrawWinner re-validates inside its transaction.
func (d *Drawer) AvailableNumbers(ctx context.Context) (out []int, err error) {
	ctx, span := startSpan(ctx, "Drawer.AvailableNumbers")
	defer func() { endSpan(span, err) }()

	participants, winners, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return availableNumbers(participants, winners), nil
}

// DrawWinner records a winner for prize, chosen uniformly among available
// numbers. It returns nil and no error when no number is available.
func (d *Drawer) DrawWinner(ctx context.Context, prize string) (w *models.Winner, err error) {
	ctx, span := startSpan(ctx, "Drawer.DrawWinner")
	defer func() { endSpan(span, err) }()

	prize = strings.TrimSpace(prize)
	err = d.runInTx(ctx, "draw", func(ctx context.Context, tx store.Tx) error {
		w = nil
		participants, err := tx.Participants(ctx)
		if err != nil {
			return err
		}
		winners, err := tx.Winners(ctx)
		if err != nil {
			return err
		}
		available := availableNumbers(participants, winners)
		if len(available) == 0 {
			return nil
		}

		number := available[d.intn(len(available))]
		owner, err := tx.FindParticipantByNumber(ctx, number)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("number %d has no participant: %w", number, ErrInconsistentState)
		}
		if err != nil {
			return err
		}

		drawn := models.Winner{
			ID:              d.newID(),
			Number:          number,
			ParticipantID:   owner.ID,
			ParticipantName: owner.Name,
			Prize:           prize,
			DrawnAt:         d.now(),
		}
		if err := tx.InsertWinner(ctx, drawn); err != nil {
			return err
		}
		w = &drawn
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInconsistentState) {
			logger.Errorf("draw: %v", err)
			if d.metrics != nil {
				d.metrics.InconsistentStates.Inc()
			}
		}
		return nil, err
	}

	if w == nil {
		if d.metrics != nil {
			d.metrics.EmptyDraws.Inc()
		}
		return nil, nil
	}
	span.SetAttributes(attribute.Int("luckydraw.number", w.Number))
	if d.metrics != nil {
		d.metrics.Draws.Inc()
	}
	logger.Infof("drew number %d for prize %q", w.Number, w.Prize)
	d.announce(ctx, models.Event{Kind: models.EventWinnerDrawn, Winner: w})
	return w, nil
}

// ListWinners returns every winner, most recent first.
func (d *Drawer) ListWinners(ctx context.Context) (out []models.Winner, err error) {
	ctx, span := startSpan(ctx, "Drawer.ListWinners")
	defer func() { endSpan(span, err) }()
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	out, err = d.store.ListWinners(ctx)
	if err != nil {
		return nil, storeError("list winners", err)
	}
	return out, nil
}

// DeleteWinner removes one winner record, returning its number to the
// available set. Deleting an unknown id is a no-op.
func (d *Drawer) DeleteWinner(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "Drawer.DeleteWinner")
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	if id == "" {
		return invalid("id", "must not be empty")
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	if err := d.store.DeleteWinner(ctx, id); err != nil {
		return storeError("delete winner", err)
	}
	logger.Infof("deleted winner %s", id)
	d.announce(ctx, models.Event{Kind: models.EventWinnerDeleted, Winner: &models.Winner{ID: id}})
	return nil
}

// DeleteAllWinners clears the draw history. It succeeds on an empty history.
func (d *Drawer) DeleteAllWinners(ctx context.Context) (err error) {
	ctx, span := startSpan(ctx, "Drawer.DeleteAllWinners")
	defer func() { endSpan(span, err) }()
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	n, err := d.store.DeleteAllWinners(ctx)
	if err != nil {
		return storeError("delete all winners", err)
	}
	logger.Infof("deleted %d winners", n)
	d.announce(ctx, models.Event{Kind: models.EventWinnersReset, Deleted: n})
	return nil
}

// DeleteAllParticipants clears the registrations. It succeeds on an empty set.
func (d *Drawer) DeleteAllParticipants(ctx context.Context) (err error) {
	ctx, span := startSpan(ctx, "Drawer.DeleteAllParticipants")
	defer func() { endSpan(span, err) }()
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	n, err := d.store.DeleteAllParticipants(ctx)
	if err != nil {
		return storeError("delete all participants", err)
	}
	logger.Infof("deleted %d participants", n)
	d.announce(ctx, models.Event{Kind: models.EventParticipantsReset, Deleted: n})
	return nil
}

// DeleteAllWinnersAndParticipants resets the event. It is best effort: on a
// partial failure the caller re-issues the whole reset.
func (d *Drawer) DeleteAllWinnersAndParticipants(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.DeleteAllWinners(ctx) })
	g.Go(func() error { return d.DeleteAllParticipants(ctx) })
	return g.Wait()
}

// snapshot reads both collections concurrently outside a transaction.
func (d *deps) snapshot(ctx context.Context) ([]models.Participant, []models.Winner, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var (
		participants []models.Participant
		winners      []models.Winner
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		participants, err = d.store.ListParticipants(gctx)
		if err != nil {
			return storeError("list participants", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		winners, err = d.store.ListWinners(gctx)
		if err != nil {
			return storeError("list winners", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return participants, winners, nil
}
