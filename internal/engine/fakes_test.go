package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory engine.Store.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*model.RecurringOrder
	execs   map[uuid.UUID]*model.OrderExecution
	intents map[string]model.NotificationIntent
}

func newFakeStore(orders ...*model.RecurringOrder) *fakeStore {
	s := &fakeStore{
		orders:  make(map[uuid.UUID]*model.RecurringOrder),
		execs:   make(map[uuid.UUID]*model.OrderExecution),
		intents: make(map[string]model.NotificationIntent),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) LoadRecurringOrder(_ context.Context, id uuid.UUID) (*model.RecurringOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, errors.New("recurring order not found")
	}
	clone := *order
	return &clone, nil
}

func (s *fakeStore) FindOpenExecution(_ context.Context, recurringOrderID uuid.UUID) (*model.OrderExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.OrderExecution
	for _, e := range s.execs {
		if e.RecurringOrderID != recurringOrderID || e.IsTerminal() {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (s *fakeStore) SaveExecution(_ context.Context, exec *model.OrderExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
		exec.CreatedAt = time.Now()
	}
	clone := *exec
	s.execs[exec.ID] = &clone
	return nil
}

func (s *fakeStore) CompleteExecution(_ context.Context, exec *model.OrderExecution, next *time.Time) error {
	if err := s.SaveExecution(context.Background(), exec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if next != nil {
		if order, ok := s.orders[exec.RecurringOrderID]; ok {
			order.NextExecutionDate = *next
		}
	}
	return nil
}

func (s *fakeStore) SaveIntents(_ context.Context, intents []model.NotificationIntent) ([]model.NotificationIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var created []model.NotificationIntent
	for _, it := range intents {
		if _, exists := s.intents[it.DedupeKey]; exists {
			continue
		}
		s.intents[it.DedupeKey] = it
		created = append(created, it)
	}
	return created, nil
}

func (s *fakeStore) order(id uuid.UUID) *model.RecurringOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *fakeStore) intentCount(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.intents {
		if it.EventType == eventType {
			n++
		}
	}
	return n
}

type fakePricing struct {
	prices map[uuid.UUID]decimal.Decimal
	err    error
}

func (f *fakePricing) ResolvePrice(_ context.Context, productID uuid.UUID, _ string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	price, ok := f.prices[productID]
	if !ok {
		return decimal.Zero, errors.New("no price for product")
	}
	return price, nil
}

type fakeInventory struct {
	avail map[uuid.UUID]Availability
	err   error
}

func (f *fakeInventory) CheckInventory(_ context.Context, productID uuid.UUID, _ string, _ int) (Availability, error) {
	if f.err != nil {
		return Availability{}, f.err
	}
	if a, ok := f.avail[productID]; ok {
		return a, nil
	}
	return Availability{Available: true}, nil
}

type fakePlacer struct {
	orderID   uuid.UUID
	err       error
	calls     int
	lastDraft *DraftOrder
}

func (f *fakePlacer) PlaceOrder(_ context.Context, draft *DraftOrder) (uuid.UUID, error) {
	f.calls++
	f.lastDraft = draft
	if f.err != nil {
		return uuid.Nil, f.err
	}
	if f.orderID == uuid.Nil {
		f.orderID = uuid.New()
	}
	return f.orderID, nil
}

type fakeSink struct {
	mu   sync.Mutex
	sent []model.NotificationIntent
}

func (f *fakeSink) Send(_ context.Context, intent model.NotificationIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, intent)
	return nil
}

func (f *fakeSink) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, it := range f.sent {
		out = append(out, it.EventType)
	}
	return out
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrExecutionInProgress
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}
