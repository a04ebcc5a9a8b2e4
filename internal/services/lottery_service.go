package services

import (
	"context"

	"luckydraw/internal/models"
	"luckydraw/internal/store"
)

// LotteryService bundles the registration and draw components of one event.
type LotteryService struct {
	*Allocator
	*Drawer
	eventName string
}

// NewLotteryService creates the Allocator and Drawer over a shared store.
func NewLotteryService(st store.Store, eventName string, pool Pool, opts ...Option) (*LotteryService, error) {
	allocator, err := NewAllocator(st, pool, opts...)
	if err != nil {
		return nil, err
	}
	drawer, err := NewDrawer(st, opts...)
	if err != nil {
		return nil, err
	}
	return &LotteryService{Allocator: allocator, Drawer: drawer, eventName: eventName}, nil
}

// Event describes the running event.
func (s *LotteryService) Event() models.EventInfo {
	pool := s.Allocator.Pool()
	return models.EventInfo{Name: s.eventName, MinNumber: pool.Min, MaxNumber: pool.Max}
}

// Stats summarizes registrations and draws for the operator dashboard.
func (s *LotteryService) Stats(ctx context.Context) (stats models.DrawStats, err error) {
	ctx, span := startSpan(ctx, "LotteryService.Stats")
	defer func() { endSpan(span, err) }()

	participants, winners, err := s.Drawer.snapshot(ctx)
	if err != nil {
		return models.DrawStats{}, err
	}
	pool := s.Allocator.Pool()
	unused := len(pool.Candidates(usedNumbers(participants)))
	return models.DrawStats{
		EventName:     s.eventName,
		MinNumber:     pool.Min,
		MaxNumber:     pool.Max,
		PoolSize:      pool.Size(),
		Participants:  len(participants),
		Winners:       len(winners),
		Available:     len(availableNumbers(participants, winners)),
		UnusedNumbers: unused,
	}, nil
}
