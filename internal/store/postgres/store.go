// Package postgres provides a PostgreSQL-backed store. Units of work run at
// SERIALIZABLE isolation; serialization failures and unique violations are
// reported as store.ErrConflict so the caller can retry.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
	"luckydraw/internal/store/migrate"
	"luckydraw/internal/store/postgres/migrations"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// Store persists participants and winners in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection pool and applies migrations.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := migrate.Apply(ctx, db, migrations.FS, migrate.Dollar); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify("begin tx", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(ctx, &txStore{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit tx", err)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	return listParticipants(ctx, s.db)
}

func (s *Store) FindParticipantByNumber(ctx context.Context, number int) (models.Participant, error) {
	return findParticipantByNumber(ctx, s.db, number)
}

func (s *Store) ListWinners(ctx context.Context) ([]models.Winner, error) {
	return listWinners(ctx, s.db)
}

func (s *Store) DeleteWinner(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM winners WHERE id = $1`, id); err != nil {
		return classify("delete winner", err)
	}
	return nil
}

func (s *Store) DeleteAllWinners(ctx context.Context) (int, error) {
	return deleteAll(ctx, s.db, "winners")
}

func (s *Store) DeleteAllParticipants(ctx context.Context) (int, error) {
	return deleteAll(ctx, s.db, "participants")
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txStore struct {
	q querier
}

func (t *txStore) Participants(ctx context.Context) ([]models.Participant, error) {
	return listParticipants(ctx, t.q)
}

func (t *txStore) Winners(ctx context.Context) ([]models.Winner, error) {
	return listWinners(ctx, t.q)
}

func (t *txStore) FindParticipantByNumber(ctx context.Context, number int) (models.Participant, error) {
	return findParticipantByNumber(ctx, t.q, number)
}

func (t *txStore) InsertParticipant(ctx context.Context, p models.Participant) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO participants (id, name, email, number, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Email, p.Number, p.CreatedAt.UTC(),
	)
	if err != nil {
		return classify("insert participant", err)
	}
	return nil
}

func (t *txStore) InsertWinner(ctx context.Context, w models.Winner) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO winners (id, number, participant_id, participant_name, prize, drawn_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.Number, w.ParticipantID, w.ParticipantName, w.Prize, w.DrawnAt.UTC(),
	)
	if err != nil {
		return classify("insert winner", err)
	}
	return nil
}

func listParticipants(ctx context.Context, q querier) ([]models.Participant, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, email, number, created_at FROM participants ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, classify("list participants", err)
	}
	defer rows.Close()

	out := make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Number, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate participants", err)
	}
	return out, nil
}

func findParticipantByNumber(ctx context.Context, q querier, number int) (models.Participant, error) {
	var p models.Participant
	err := q.QueryRowContext(ctx,
		`SELECT id, name, email, number, created_at FROM participants WHERE number = $1`, number,
	).Scan(&p.ID, &p.Name, &p.Email, &p.Number, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, store.ErrNotFound
	}
	if err != nil {
		return models.Participant{}, classify("find participant by number", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func listWinners(ctx context.Context, q querier) ([]models.Winner, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, number, participant_id, participant_name, prize, drawn_at FROM winners ORDER BY drawn_at DESC, id DESC`)
	if err != nil {
		return nil, classify("list winners", err)
	}
	defer rows.Close()

	out := make([]models.Winner, 0)
	for rows.Next() {
		var w models.Winner
		if err := rows.Scan(&w.ID, &w.Number, &w.ParticipantID, &w.ParticipantName, &w.Prize, &w.DrawnAt); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		w.DrawnAt = w.DrawnAt.UTC()
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate winners", err)
	}
	return out, nil
}

func deleteAll(ctx context.Context, q querier, table string) (int, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, classify("delete all "+table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all %s: %w", table, err)
	}
	return int(n), nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, store.ErrConflict, err)
		}
		if pqErr.Code.Class() == "08" {
			return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ store.Store = (*Store)(nil)
