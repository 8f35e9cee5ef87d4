// Package memory is an in-process storage backend. It keeps the same
// atomicity contract as the Postgres store: per-tool mutexes stand in for row
// locks and an undo journal stands in for transaction rollback.
package memory

import (
	"context"
	"fmt"
	"sync"

	"instrument-rental-backend/internal/domain"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/repository"
)

type Store struct {
	// mu guards every map and sequence below.
	mu        sync.RWMutex
	tools     map[int32]domain.Tool
	bookings  map[int32]domain.Booking
	orders    map[int32]domain.Order
	changes   map[int32]domain.OrderStatusChange
	movements map[int32]domain.StockMovement
	seq       sequences

	locksMu   sync.Mutex
	toolLocks map[int32]*sync.Mutex
}

type sequences struct {
	tool, booking, order, item, change, movement int32
}

func NewStore() *Store {
	return &Store{
		tools:     make(map[int32]domain.Tool),
		bookings:  make(map[int32]domain.Booking),
		orders:    make(map[int32]domain.Order),
		changes:   make(map[int32]domain.OrderStatusChange),
		movements: make(map[int32]domain.StockMovement),
		toolLocks: make(map[int32]*sync.Mutex),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Repos() repository.Repositories {
	return s.repos(nil)
}

func (s *Store) repos(j *journal) repository.Repositories {
	return repository.Repositories{
		Tools:    &toolRepository{s: s, j: j},
		Bookings: &bookingRepository{s: s, j: j},
		Orders:   &orderRepository{s: s, j: j},
		Stock:    &stockRepository{s: s, j: j},
	}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) toolLock(id int32) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.toolLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.toolLocks[id] = l
	}
	return l
}

func (s *Store) WithinToolLocks(ctx context.Context, toolIDs []int32, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ids := repository.LockOrder(toolIDs)
	for _, id := range ids {
		l := s.toolLock(id)
		l.Lock()
		defer l.Unlock()
	}

	s.mu.RLock()
	for _, id := range ids {
		if _, ok := s.tools[id]; !ok {
			s.mu.RUnlock()
			return fmt.Errorf("%w: tool %d", domain.ErrNotFound, id)
		}
	}
	s.mu.RUnlock()

	j := &journal{}
	if err := fn(ctx, s.repos(j)); err != nil {
		s.rollback(j)
		return err
	}
	return nil
}

func (s *Store) rollback(j *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	logger.Debug("Rolled back in-memory transaction", "writes", len(j.undo))
}

// journal records how to reverse each write of one transaction. Undo
// functions run with Store.mu held.
type journal struct {
	undo []func()
}

func (j *journal) add(f func()) {
	if j != nil {
		j.undo = append(j.undo, f)
	}
}

func notFound(kind string, id int32) error {
	return fmt.Errorf("%w: %s %d", domain.ErrNotFound, kind, id)
}
