package repository

import (
	"context"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
)

// EngineStore adapts the gorm repositories to the execution pipeline's
// persistence boundary. CompleteExecution is the one place where an
// execution outcome and the schedule advance must commit together.
type EngineStore struct {
	orders RecurringOrderRepository
	execs  ExecutionRepository
	tx     TransactionManager
}

func NewEngineStore(orders RecurringOrderRepository, execs ExecutionRepository, tx TransactionManager) *EngineStore {
	return &EngineStore{orders: orders, execs: execs, tx: tx}
}

func (s *EngineStore) LoadRecurringOrder(ctx context.Context, id uuid.UUID) (*model.RecurringOrder, error) {
	return s.orders.FindByID(ctx, id)
}

func (s *EngineStore) FindOpenExecution(ctx context.Context, recurringOrderID uuid.UUID) (*model.OrderExecution, error) {
	return s.execs.FindOpenByOrder(ctx, recurringOrderID)
}

func (s *EngineStore) SaveExecution(ctx context.Context, exec *model.OrderExecution) error {
	if exec.ID == uuid.Nil {
		return s.execs.Create(ctx, exec)
	}
	return s.execs.Save(ctx, exec)
}

func (s *EngineStore) CompleteExecution(ctx context.Context, exec *model.OrderExecution, next *time.Time) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.execs.Save(txCtx, exec); err != nil {
			return err
		}
		if next != nil {
			return s.orders.UpdateNextExecution(txCtx, exec.RecurringOrderID, *next)
		}
		return nil
	})
}

func (s *EngineStore) SaveIntents(ctx context.Context, intents []model.NotificationIntent) ([]model.NotificationIntent, error) {
	return s.execs.CreateIntents(ctx, intents)
}
