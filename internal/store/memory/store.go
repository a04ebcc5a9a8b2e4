// Package memory provides an in-process store. Transactions run one at a time
// behind a context-aware writer gate and hold the store lock for the whole
// unit of work, which gives serializable isolation for a single process. It is
// intended for tests and single-instance development runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// Store keeps both collections in insertion order.
type Store struct {
	writer       *semaphore.Weighted
	mu           sync.RWMutex
	participants []models.Participant
	winners      []models.Winner
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		writer:       semaphore.NewWeighted(1),
		participants: make([]models.Participant, 0),
		winners:      make([]models.Winner, 0),
	}
}

// RunInTx runs fn with exclusive access to the store. Waiting for a running
// transaction gives up when ctx is done. Inserts are staged and only become
// visible once fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w: %w", store.ErrUnavailable, err)
	}
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("begin tx: %w: %w", store.ErrUnavailable, err)
	}
	defer s.writer.Release(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		if ctx.Err() != nil && !errors.Is(err, store.ErrUnavailable) {
			return fmt.Errorf("run tx: %w: %w", store.ErrUnavailable, err)
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w: %w", store.ErrUnavailable, err)
	}
	s.participants = append(s.participants, tx.participants...)
	s.winners = append(s.winners, tx.winners...)
	return nil
}

func (s *Store) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.participants, func(p models.Participant) int64 { return p.CreatedAt.UnixNano() }), nil
}

func (s *Store) FindParticipantByNumber(ctx context.Context, number int) (models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return models.Participant{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByNumber(s.participants, number)
}

func (s *Store) ListWinners(ctx context.Context) ([]models.Winner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.winners, func(w models.Winner) int64 { return w.DrawnAt.UnixNano() }), nil
}

// DeleteWinner removes one winner. Deleting an absent winner is a no-op.
func (s *Store) DeleteWinner(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.winners = slices.DeleteFunc(s.winners, func(w models.Winner) bool { return w.ID == id })
	return nil
}

func (s *Store) DeleteAllWinners(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.winners)
	s.winners = make([]models.Winner, 0)
	return n, nil
}

func (s *Store) DeleteAllParticipants(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.participants)
	s.participants = make([]models.Participant, 0)
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

// memTx sees committed rows plus its own staged inserts.
type memTx struct {
	store        *Store
	participants []models.Participant
	winners      []models.Winner
}

func (t *memTx) Participants(ctx context.Context) ([]models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Concat(t.store.participants, t.participants), nil
}

func (t *memTx) Winners(ctx context.Context) ([]models.Winner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Concat(t.store.winners, t.winners), nil
}

func (t *memTx) FindParticipantByNumber(ctx context.Context, number int) (models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return models.Participant{}, err
	}
	return findByNumber(slices.Concat(t.store.participants, t.participants), number)
}

func (t *memTx) InsertParticipant(ctx context.Context, p models.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, existing := range slices.Concat(t.store.participants, t.participants) {
		if existing.Email == p.Email {
			return fmt.Errorf("participant email %q: %w", p.Email, store.ErrConflict)
		}
		if existing.Number == p.Number {
			return fmt.Errorf("participant number %d: %w", p.Number, store.ErrConflict)
		}
	}
	t.participants = append(t.participants, p)
	return nil
}

func (t *memTx) InsertWinner(ctx context.Context, w models.Winner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, existing := range slices.Concat(t.store.winners, t.winners) {
		if existing.Number == w.Number {
			return fmt.Errorf("winner number %d: %w", w.Number, store.ErrConflict)
		}
	}
	t.winners = append(t.winners, w)
	return nil
}

func findByNumber(participants []models.Participant, number int) (models.Participant, error) {
	for _, p := range participants {
		if p.Number == number {
			return p, nil
		}
	}
	return models.Participant{}, store.ErrNotFound
}

// newestFirst returns a copy ordered by descending timestamp; rows with equal
// timestamps keep reverse insertion order.
func newestFirst[T any](rows []T, ts func(T) int64) []T {
	out := slices.Clone(rows)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b T) int {
		ta, tb := ts(a), ts(b)
		switch {
		case ta > tb:
			return -1
		case ta < tb:
			return 1
		}
		return 0
	})
	return out
}

var _ store.Store = (*Store)(nil)
