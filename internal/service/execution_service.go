package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reorder/internal/engine"
	"reorder/internal/model"
	"reorder/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// EventBroadcaster pushes live execution updates to connected clients.
type EventBroadcaster interface {
	BroadcastJSON(v interface{})
}

// ExecutionEvent is the websocket payload for a finished or suspended attempt.
type ExecutionEvent struct {
	Type      string                `json:"type"`
	Execution *model.OrderExecution `json:"execution"`
}

type ExecutionService interface {
	// Execute runs one pipeline attempt for the recurring order and, on a
	// retryable failure, schedules the next attempt.
	Execute(ctx context.Context, recurringOrderID uuid.UUID) (*model.OrderExecution, error)
	Approve(ctx context.Context, executionID, supplierID uuid.UUID) (*model.OrderExecution, error)
	Reject(ctx context.Context, executionID, supplierID uuid.UUID, reason string) (*model.OrderExecution, error)
	List(ctx context.Context, recurringOrderID, supplierID uuid.UUID, page, limit int) ([]model.OrderExecution, int64, error)

	// RunDue fires due schedules and due retries. Called by the cron poller.
	RunDue(ctx context.Context) error
	// SendReminders emits upcoming-execution reminders per lead-day settings.
	SendReminders(ctx context.Context) error
}

type executionService struct {
	orders     repository.RecurringOrderRepository
	execs      repository.ExecutionRepository
	tx         repository.TransactionManager
	pipeline   *engine.Pipeline
	retries    *engine.RetryManager
	dispatcher *engine.Dispatcher
	sink       engine.NotificationSink
	hub        EventBroadcaster
	now        func() time.Time
	log        zerolog.Logger
}

func NewExecutionService(
	orders repository.RecurringOrderRepository,
	execs repository.ExecutionRepository,
	tx repository.TransactionManager,
	pipeline *engine.Pipeline,
	retries *engine.RetryManager,
	dispatcher *engine.Dispatcher,
	sink engine.NotificationSink,
	hub EventBroadcaster,
	log zerolog.Logger,
) ExecutionService {
	return &executionService{
		orders:     orders,
		execs:      execs,
		tx:         tx,
		pipeline:   pipeline,
		retries:    retries,
		dispatcher: dispatcher,
		sink:       sink,
		hub:        hub,
		now:        time.Now,
		log:        log,
	}
}

func (s *executionService) Execute(ctx context.Context, recurringOrderID uuid.UUID) (*model.OrderExecution, error) {
	exec, err := s.pipeline.Execute(ctx, recurringOrderID)
	if err != nil {
		return nil, err
	}

	if exec.Status == model.ExecutionFailed && exec.Retryable {
		if _, err := s.retries.Schedule(ctx, exec); err != nil {
			s.log.Error().Err(err).Str("execution_id", exec.ID.String()).Msg("failed to schedule retry")
		}
	}

	s.broadcast(exec)
	return exec, nil
}

func (s *executionService) Approve(ctx context.Context, executionID, supplierID uuid.UUID) (*model.OrderExecution, error) {
	exec, order, err := s.findOwnedExecution(ctx, executionID, supplierID)
	if err != nil {
		return nil, err
	}
	if !exec.AwaitingApproval() {
		return nil, fmt.Errorf("execution is not awaiting approval (status %s)", exec.Status)
	}

	now := s.now()
	exec.ApprovalState = model.ApprovalGranted
	exec.ApprovedAt = &now
	if err := s.execs.Save(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to record approval: %w", err)
	}

	s.log.Info().
		Str("execution_id", exec.ID.String()).
		Str("recurring_order_id", order.ID.String()).
		Msg("execution approved, resuming")
	return s.Execute(ctx, order.ID)
}

// Reject terminally fails a suspended execution and consumes the cycle:
// the schedule advances so the next cycle fires normally.
func (s *executionService) Reject(ctx context.Context, executionID, supplierID uuid.UUID, reason string) (*model.OrderExecution, error) {
	exec, order, err := s.findOwnedExecution(ctx, executionID, supplierID)
	if err != nil {
		return nil, err
	}
	if !exec.AwaitingApproval() {
		return nil, fmt.Errorf("execution is not awaiting approval (status %s)", exec.Status)
	}

	if reason == "" {
		reason = "rejected by supplier"
	}
	now := s.now()
	exec.Status = model.ExecutionFailed
	exec.Retryable = false
	exec.AddIssue(model.IssueApproval, model.SeverityHigh, "approval rejected: "+reason)

	next := engine.NextExecution(engine.ScheduleOf(order), now, now)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.execs.Save(txCtx, exec); err != nil {
			return err
		}
		return s.orders.UpdateNextExecution(txCtx, order.ID, next)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reject execution: %w", err)
	}

	s.deliver(ctx, s.dispatcher.Intents(order, exec, model.EventOrderFailure))
	s.broadcast(exec)
	return exec, nil
}

func (s *executionService) List(ctx context.Context, recurringOrderID, supplierID uuid.UUID, page, limit int) ([]model.OrderExecution, int64, error) {
	order, err := s.orders.FindByID(ctx, recurringOrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	if order.SupplierID != supplierID {
		return nil, 0, ErrForbidden
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return s.execs.ListByOrder(ctx, recurringOrderID, page, limit)
}

const dueBatchSize = 100

func (s *executionService) RunDue(ctx context.Context) error {
	now := s.now()
	fired := make(map[uuid.UUID]bool)

	due, err := s.orders.FindDue(ctx, now, dueBatchSize)
	if err != nil {
		return fmt.Errorf("scanning due orders: %w", err)
	}
	for _, order := range due {
		open, err := s.execs.FindOpenByOrder(ctx, order.ID)
		if err != nil {
			s.log.Error().Err(err).Str("recurring_order_id", order.ID.String()).Msg("open execution lookup failed")
			continue
		}
		if open != nil {
			// Waiting for approval, or backing off: not ours to fire here.
			continue
		}
		s.fire(ctx, order.ID, fired)
	}

	retries, err := s.execs.FindDueRetries(ctx, now, dueBatchSize)
	if err != nil {
		return fmt.Errorf("scanning due retries: %w", err)
	}
	for _, exec := range retries {
		s.fire(ctx, exec.RecurringOrderID, fired)
	}

	return nil
}

func (s *executionService) fire(ctx context.Context, recurringOrderID uuid.UUID, fired map[uuid.UUID]bool) {
	if fired[recurringOrderID] {
		return
	}
	fired[recurringOrderID] = true

	if _, err := s.Execute(ctx, recurringOrderID); err != nil {
		if errors.Is(err, engine.ErrExecutionInProgress) {
			return // another instance holds the lease
		}
		s.log.Error().Err(err).Str("recurring_order_id", recurringOrderID.String()).Msg("execution trigger failed")
	}
}

func (s *executionService) SendReminders(ctx context.Context) error {
	now := s.now()
	const maxLeadDays = 30
	upcoming, err := s.orders.FindUpcoming(ctx, now, now.AddDate(0, 0, maxLeadDays))
	if err != nil {
		return fmt.Errorf("scanning upcoming orders: %w", err)
	}

	for i := range upcoming {
		order := &upcoming[i]
		daysUntil := int(order.NextExecutionDate.Sub(now).Hours() / 24)
		for _, lead := range order.Notifications.ReminderLeadDays {
			if daysUntil == lead {
				s.deliver(ctx, s.dispatcher.ReminderIntents(order, order.NextExecutionDate))
				break
			}
		}
	}
	return nil
}

// deliver persists intents (skipping already-sent dedupe keys) and forwards
// new ones to the sink.
func (s *executionService) deliver(ctx context.Context, intents []model.NotificationIntent) {
	if len(intents) == 0 {
		return
	}
	created, err := s.execs.CreateIntents(ctx, intents)
	if err != nil {
		s.log.Error().Err(err).Msg("persisting notification intents failed")
		return
	}
	for _, intent := range created {
		if err := s.sink.Send(ctx, intent); err != nil {
			s.log.Warn().Err(err).Str("event", intent.EventType).Msg("notification send failed")
		}
	}
}

func (s *executionService) broadcast(exec *model.OrderExecution) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastJSON(ExecutionEvent{Type: "execution_update", Execution: exec})
}

func (s *executionService) findOwnedExecution(ctx context.Context, executionID, supplierID uuid.UUID) (*model.OrderExecution, *model.RecurringOrder, error) {
	exec, err := s.execs.FindByID(ctx, executionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	order, err := s.orders.FindByID(ctx, exec.RecurringOrderID)
	if err != nil {
		return nil, nil, err
	}
	if order.SupplierID != supplierID {
		return nil, nil, ErrForbidden
	}
	return exec, order, nil
}
