// Package sqlite provides a SQLite-backed store. Transactions are opened with
// BEGIN IMMEDIATE so that concurrent writers serialize on the database lock,
// and UNIQUE constraints back the email and number invariants.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
	"luckydraw/internal/store/migrate"
	"luckydraw/internal/store/sqlite/migrations"
)

// Store persists participants and winners in a SQLite database file.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate.Apply(ctx, sqlDB, migrations.FS, migrate.Question); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
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
	return listParticipants(ctx, s.sqlDB)
}

func (s *Store) FindParticipantByNumber(ctx context.Context, number int) (models.Participant, error) {
	return findParticipantByNumber(ctx, s.sqlDB, number)
}

func (s *Store) ListWinners(ctx context.Context) ([]models.Winner, error) {
	return listWinners(ctx, s.sqlDB)
}

func (s *Store) DeleteWinner(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM winners WHERE id = ?`, id); err != nil {
		return classify("delete winner", err)
	}
	return nil
}

func (s *Store) DeleteAllWinners(ctx context.Context) (int, error) {
	return deleteAll(ctx, s.sqlDB, "winners")
}

func (s *Store) DeleteAllParticipants(ctx context.Context) (int, error) {
	return deleteAll(ctx, s.sqlDB, "participants")
}

// querier is satisfied by both *sql.DB and *sql.Tx.
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
		`INSERT INTO participants (id, name, email, number, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, p.Number, toMillis(p.CreatedAt),
	)
	if err != nil {
		return classify("insert participant", err)
	}
	return nil
}

func (t *txStore) InsertWinner(ctx context.Context, w models.Winner) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO winners (id, number, participant_id, participant_name, prize, drawn_at) VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Number, w.ParticipantID, w.ParticipantName, w.Prize, toMillis(w.DrawnAt),
	)
	if err != nil {
		return classify("insert winner", err)
	}
	return nil
}

func listParticipants(ctx context.Context, q querier) ([]models.Participant, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, email, number, created_at FROM participants ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, classify("list participants", err)
	}
	defer rows.Close()

	out := make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Number, &createdAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.CreatedAt = fromMillis(createdAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate participants", err)
	}
	return out, nil
}

func findParticipantByNumber(ctx context.Context, q querier, number int) (models.Participant, error) {
	var p models.Participant
	var createdAt int64
	err := q.QueryRowContext(ctx,
		`SELECT id, name, email, number, created_at FROM participants WHERE number = ?`, number,
	).Scan(&p.ID, &p.Name, &p.Email, &p.Number, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, store.ErrNotFound
	}
	if err != nil {
		return models.Participant{}, classify("find participant by number", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func listWinners(ctx context.Context, q querier) ([]models.Winner, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, number, participant_id, participant_name, prize, drawn_at FROM winners ORDER BY drawn_at DESC, rowid DESC`)
	if err != nil {
		return nil, classify("list winners", err)
	}
	defer rows.Close()

	out := make([]models.Winner, 0)
	for rows.Next() {
		var w models.Winner
		var drawnAt int64
		if err := rows.Scan(&w.ID, &w.Number, &w.ParticipantID, &w.ParticipantName, &w.Prize, &drawnAt); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		w.DrawnAt = fromMillis(drawnAt)
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

// classify maps driver errors onto the store sentinels.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch {
		case code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w: %w", op, store.ErrConflict, err)
		case code&0xff == sqlite3lib.SQLITE_BUSY, code&0xff == sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w: %w", op, store.ErrConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ store.Store = (*Store)(nil)
