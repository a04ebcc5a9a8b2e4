//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"luckydraw/internal/models"
	"luckydraw/internal/services"
	"luckydraw/internal/store"
	"luckydraw/internal/store/postgres"
)

var errAbort = errors.New("abort")

type PostgresSuite struct {
	suite.Suite
	ctx   context.Context
	store *postgres.Store
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("luckydraw"),
		tcpostgres.WithUsername("luckydraw"),
		tcpostgres.WithPassword("luckydraw"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(s.T(), container)
	s.Require().NoError(err)

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.store, err = postgres.Open(s.ctx, dsn)
	s.Require().NoError(err)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.store.DeleteAllWinners(s.ctx)
	s.Require().NoError(err)
	_, err = s.store.DeleteAllParticipants(s.ctx)
	s.Require().NoError(err)
}

func (s *PostgresSuite) TestDuplicateNumberIsConflict() {
	now := time.Now()
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertParticipant(ctx, models.Participant{ID: "p1", Name: "Ann", Email: "ann@example.com", Number: 7, CreatedAt: now})
	})
	s.Require().NoError(err)

	err = s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertParticipant(ctx, models.Participant{ID: "p2", Name: "Bob", Email: "bob@example.com", Number: 7, CreatedAt: now})
	})
	s.ErrorIs(err, store.ErrConflict)

	p, err := s.store.FindParticipantByNumber(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal("Ann", p.Name)

	_, err = s.store.FindParticipantByNumber(s.ctx, 8)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresSuite) TestRolledBackTxLeavesNothing() {
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertParticipant(ctx, models.Participant{ID: "p1", Name: "Ann", Email: "ann@example.com", Number: 3, CreatedAt: time.Now()}); err != nil {
			return err
		}
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	participants, err := s.store.ListParticipants(s.ctx)
	s.Require().NoError(err)
	s.Empty(participants)
}

func (s *PostgresSuite) TestConcurrentRegistrationsAndDraws() {
	svc, err := services.NewLotteryService(s.store, "Party", services.Pool{Min: 1, Max: 40}, services.WithMaxAttempts(50), services.WithTxTimeout(30*time.Second))
	s.Require().NoError(err)

	const n = 30
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(s.ctx, fmt.Sprintf("Guest %d", i), fmt.Sprintf("guest%d@example.com", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	participants, err := svc.ListParticipants(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(participants, n)
	seen := map[int]bool{}
	for _, p := range participants {
		s.False(seen[p.Number], "number %d assigned twice", p.Number)
		seen[p.Number] = true
	}

	var mu sync.Mutex
	drawn := map[int]int{}
	for i := 0; i < n+5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := svc.DrawWinner(s.ctx, "Prize")
			require.NoError(s.T(), err)
			if w == nil {
				return
			}
			mu.Lock()
			drawn[w.Number]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(drawn, n)
	for number, count := range drawn {
		s.Equal(1, count, "number %d drawn %d times", number, count)
	}
	available, err := svc.AvailableNumbers(s.ctx)
	s.Require().NoError(err)
	s.Empty(available)
}
