package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultLockTTL = 2 * time.Minute

// Pipeline orchestrates one execution attempt: load and validate the order,
// resolve the template, gate on approval, place the order, advance the
// schedule and dispatch notifications. All business failures are captured as
// issues on the execution record; only infrastructure errors (store, lock)
// propagate to the caller.
type Pipeline struct {
	store      Store
	resolver   *Resolver
	placer     OrderPlacer
	dispatcher *Dispatcher
	sink       NotificationSink
	locks      Locker
	now        func() time.Time
	lockTTL    time.Duration
	log        zerolog.Logger
}

func NewPipeline(store Store, resolver *Resolver, placer OrderPlacer, dispatcher *Dispatcher, sink NotificationSink, locks Locker, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		resolver:   resolver,
		placer:     placer,
		dispatcher: dispatcher,
		sink:       sink,
		locks:      locks,
		now:        time.Now,
		lockTTL:    defaultLockTTL,
		log:        log,
	}
}

// WithClock overrides the pipeline clock. Test hook.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Execute runs one attempt for the given recurring order. It either creates
// a fresh execution for the due cycle or picks up the open one (a retryable
// failure or an approval that has since been granted). Concurrent triggers
// for the same order are rejected with ErrExecutionInProgress.
func (p *Pipeline) Execute(ctx context.Context, recurringOrderID uuid.UUID) (*model.OrderExecution, error) {
	release, err := p.locks.Acquire(ctx, "execlock:"+recurringOrderID.String(), p.lockTTL)
	if err != nil {
		if errors.Is(err, ErrExecutionInProgress) {
			return nil, err
		}
		return nil, fmt.Errorf("acquiring execution lease: %w", err)
	}
	defer release()

	order, err := p.store.LoadRecurringOrder(ctx, recurringOrderID)
	if err != nil {
		return nil, fmt.Errorf("loading recurring order: %w", err)
	}

	exec, err := p.store.FindOpenExecution(ctx, recurringOrderID)
	if err != nil {
		return nil, fmt.Errorf("looking up open execution: %w", err)
	}

	if exec != nil && exec.AwaitingApproval() {
		// Still suspended at the gate; a second trigger is a no-op.
		return exec, nil
	}

	if exec == nil {
		exec = &model.OrderExecution{
			RecurringOrderID: order.ID,
			Status:           model.ExecutionPending,
			ScheduledDate:    order.NextExecutionDate,
			MaxRetries:       order.MaxRetries,
			ApprovalState:    model.ApprovalNone,
		}
		if err := p.store.SaveExecution(ctx, exec); err != nil {
			return nil, fmt.Errorf("creating execution record: %w", err)
		}
	}

	if err := p.runAttempt(ctx, order, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// runAttempt executes steps 1-8 for a single attempt, persisting the outcome.
func (p *Pipeline) runAttempt(ctx context.Context, order *model.RecurringOrder, exec *model.OrderExecution) error {
	log := p.log.With().
		Str("recurring_order_id", order.ID.String()).
		Str("execution_id", exec.ID.String()).
		Int("retry_count", exec.RetryCount).
		Logger()

	exec.Status = model.ExecutionPending
	exec.Retryable = false
	exec.NextRetryAt = nil

	// Step 1: the order must be active, on retries too (cancellation between
	// attempts is expressed through status).
	if order.Status != model.RecurringStatusActive {
		exec.AddIssue(model.IssueValidation, model.SeverityHigh,
			fmt.Sprintf("recurring order is %s, not ACTIVE", order.Status))
		// No cycle was consumed: an inactive order keeps its schedule.
		return p.failKeepSchedule(ctx, order, exec)
	}

	// Step 2: resolve the template into a concrete draft.
	res, err := p.resolver.Resolve(ctx, order)
	exec.Adjustments = res.Adjustments
	exec.Issues = append(exec.Issues, res.Issues...)
	if err != nil {
		log.Warn().Err(err).Msg("template resolution failed")
		// Inventory and pricing conditions may clear up by the next attempt.
		return p.fail(ctx, order, exec, true)
	}

	// Step 3: total value.
	total := decimal.Zero
	for _, line := range res.Items {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if order.IncludeShipping {
		total = total.Add(order.ShippingEstimate)
	}
	exec.TotalValue = total
	exec.ItemCount = len(res.Items)

	// Step 4: hard ceiling. Exceeding an absolute ceiling is not transient,
	// so there is no retry; the supplier has to intervene.
	if order.MaxOrderValue.Valid && total.GreaterThan(order.MaxOrderValue.Decimal) {
		exec.AddIssue(model.IssueValidation, model.SeverityCritical,
			fmt.Sprintf("computed total %s exceeds max order value %s", total, order.MaxOrderValue.Decimal))
		return p.fail(ctx, order, exec, false)
	}

	// Step 5: approval gate. Suspends, not fails: the cycle is not consumed
	// and the retry budget is untouched.
	if RequiresApproval(order, total) && exec.ApprovalState != model.ApprovalGranted {
		exec.ApprovalState = model.ApprovalRequired
		exec.AddIssue(model.IssueApproval, model.SeverityLow,
			fmt.Sprintf("manual approval required for total %s", total))
		if err := p.store.SaveExecution(ctx, exec); err != nil {
			return fmt.Errorf("saving execution pending approval: %w", err)
		}
		log.Info().Str("total", total.String()).Msg("execution suspended awaiting approval")
		p.dispatch(ctx, order, exec, model.EventApprovalRequired)
		return nil
	}

	// Step 6: placement.
	draft := buildDraft(order, res, total)
	orderID, err := p.placer.PlaceOrder(ctx, draft)
	if err != nil {
		if IsPermanentPlacement(err) {
			log.Error().Err(err).Msg("order placement rejected permanently")
			exec.AddIssue(model.IssueValidation, model.SeverityHigh, err.Error())
			return p.fail(ctx, order, exec, false)
		}
		log.Warn().Err(err).Msg("order placement failed, retryable")
		// Not an inventory condition: a timeout or 5xx from the order service
		// must not surface as an inventory-issue notification.
		exec.AddIssue(model.IssueValidation, model.SeverityMedium,
			fmt.Sprintf("order placement failed: %v", err))
		return p.fail(ctx, order, exec, true)
	}

	now := p.now()
	exec.Status = model.ExecutionSuccess
	exec.OrderID = &orderID
	exec.ExecutedDate = &now

	// Step 7: reschedule, anchored at the execution date, atomically with the
	// execution record.
	next := NextExecution(ScheduleOf(order), now, now)
	if err := p.store.CompleteExecution(ctx, exec, &next); err != nil {
		return fmt.Errorf("completing execution: %w", err)
	}
	order.NextExecutionDate = next
	log.Info().
		Str("order_id", orderID.String()).
		Str("total", total.String()).
		Time("next_execution", next).
		Msg("execution succeeded")

	// Step 8: notifications for the final status.
	events := []string{model.EventOrderCreated, model.EventOrderSuccess}
	if res.HasAdjustmentType(model.AdjustmentPrice) {
		events = append(events, model.EventPriceChange)
	}
	if res.HasIssueType(model.IssueInventory) {
		events = append(events, model.EventInventoryIssue)
	}
	p.dispatch(ctx, order, exec, events...)
	return nil
}

// failKeepSchedule terminally fails the execution without touching the
// parent's next execution date.
func (p *Pipeline) failKeepSchedule(ctx context.Context, order *model.RecurringOrder, exec *model.OrderExecution) error {
	exec.Status = model.ExecutionFailed
	exec.Retryable = false
	if err := p.store.CompleteExecution(ctx, exec, nil); err != nil {
		return fmt.Errorf("completing failed execution: %w", err)
	}
	p.dispatch(ctx, order, exec, model.EventOrderFailure)
	return nil
}

// fail marks the execution FAILED. Terminal failures (non-retryable, or the
// retry budget is spent) consume the cycle: the next execution date advances
// so the scheduler moves on to the next cycle instead of re-firing forever.
func (p *Pipeline) fail(ctx context.Context, order *model.RecurringOrder, exec *model.OrderExecution, retryable bool) error {
	exec.Status = model.ExecutionFailed
	exec.Retryable = retryable

	if !exec.IsTerminal() {
		if err := p.store.SaveExecution(ctx, exec); err != nil {
			return fmt.Errorf("saving failed execution: %w", err)
		}
		return nil
	}

	now := p.now()
	next := NextExecution(ScheduleOf(order), now, now)
	if err := p.store.CompleteExecution(ctx, exec, &next); err != nil {
		return fmt.Errorf("completing failed execution: %w", err)
	}
	order.NextExecutionDate = next

	events := []string{model.EventOrderFailure}
	if hasIssueType(exec.Issues, model.IssueInventory) {
		events = append(events, model.EventInventoryIssue)
	}
	p.dispatch(ctx, order, exec, events...)
	return nil
}

// dispatch persists intents (deduplicated by key) and forwards newly created
// ones to the sink. Sink failures are logged and swallowed: notification
// transport never affects execution status.
func (p *Pipeline) dispatch(ctx context.Context, order *model.RecurringOrder, exec *model.OrderExecution, events ...string) {
	intents := p.dispatcher.Intents(order, exec, events...)
	if len(intents) == 0 {
		return
	}
	created, err := p.store.SaveIntents(ctx, intents)
	if err != nil {
		p.log.Error().Err(err).Str("execution_id", exec.ID.String()).Msg("persisting notification intents failed")
		return
	}
	for _, intent := range created {
		if err := p.sink.Send(ctx, intent); err != nil {
			p.log.Warn().Err(err).
				Str("event", intent.EventType).
				Str("channel", intent.Channel).
				Msg("notification send failed")
		}
	}
}

func buildDraft(order *model.RecurringOrder, res *Resolution, total decimal.Decimal) *DraftOrder {
	return &DraftOrder{
		RecurringOrderID: order.ID,
		SupplierID:       order.SupplierID,
		Warehouse:        order.Warehouse,
		Items:            res.Items,
		ShippingMethod:   order.ShippingMethod,
		PaymentMethod:    order.PaymentMethod,
		DeliveryAddress:  order.DeliveryAddress,
		Instructions:     order.Instructions,
		TotalValue:       total,
	}
}

func hasIssueType(issues model.Issues, issueType string) bool {
	for _, is := range issues {
		if is.Type == issueType {
			return true
		}
	}
	return false
}
