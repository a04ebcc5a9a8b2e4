package store

import (
	"context"
	"errors"

	"luckydraw/internal/models"
)

// Sentinel errors returned (optionally wrapped) by every store implementation
// so services can translate them into domain errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrConflict    = errors.New("write conflict")
	ErrUnavailable = errors.New("store unavailable")
)

// Tx is the view of the store available inside one isolated unit of work.
// Implementations must reject inserts that would duplicate a participant
// email, a participant number or a winner number with ErrConflict.
type Tx interface {
	Participants(ctx context.Context) ([]models.Participant, error)
	Winners(ctx context.Context) ([]models.Winner, error)
	FindParticipantByNumber(ctx context.Context, number int) (models.Participant, error)
	InsertParticipant(ctx context.Context, p models.Participant) error
	InsertWinner(ctx context.Context, w models.Winner) error
}

// Store is the durable home of the Participants and Winners collections.
// It is the only shared mutable state of the system.
type Store interface {
	// RunInTx executes fn inside one isolated transaction. fn receives the
	// transaction's context and must use it for every statement. A returned
	// error rolls the transaction back. Serialization failures surface as
	// ErrConflict; a transaction cut short by its context surfaces as
	// ErrUnavailable.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// ListParticipants returns participants newest first.
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	FindParticipantByNumber(ctx context.Context, number int) (models.Participant, error)
	// ListWinners returns winners most recently drawn first.
	ListWinners(ctx context.Context) ([]models.Winner, error)

	DeleteWinner(ctx context.Context, id string) error
	DeleteAllWinners(ctx context.Context) (int, error)
	DeleteAllParticipants(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
