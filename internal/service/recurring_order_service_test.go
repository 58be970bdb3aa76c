package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"reorder/internal/model"
	"reorder/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeOrderRepo struct {
	orders map[uuid.UUID]*model.RecurringOrder
}

func newFakeOrderRepo(orders ...*model.RecurringOrder) *fakeOrderRepo {
	r := &fakeOrderRepo{orders: make(map[uuid.UUID]*model.RecurringOrder)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeOrderRepo) Create(_ context.Context, order *model.RecurringOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*model.RecurringOrder, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *order
	return &clone, nil
}

func (r *fakeOrderRepo) Save(_ context.Context, order *model.RecurringOrder) error {
	clone := *order
	r.orders[order.ID] = &clone
	return nil
}

func (r *fakeOrderRepo) UpdateNextExecution(_ context.Context, id uuid.UUID, next time.Time) error {
	if order, ok := r.orders[id]; ok {
		order.NextExecutionDate = next
	}
	return nil
}

func (r *fakeOrderRepo) List(_ context.Context, supplierID uuid.UUID, _ repository.ListFilter, _, _ int) ([]model.RecurringOrder, int64, error) {
	var out []model.RecurringOrder
	for _, o := range r.orders {
		if o.SupplierID == supplierID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeOrderRepo) FindDue(_ context.Context, now time.Time, _ int) ([]model.RecurringOrder, error) {
	var out []model.RecurringOrder
	for _, o := range r.orders {
		if o.Status == model.RecurringStatusActive && !o.NextExecutionDate.After(now) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) FindUpcoming(_ context.Context, from, to time.Time) ([]model.RecurringOrder, error) {
	var out []model.RecurringOrder
	for _, o := range r.orders {
		if o.Status == model.RecurringStatusActive &&
			o.NextExecutionDate.After(from) && !o.NextExecutionDate.After(to) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func testService(now time.Time, orders ...*model.RecurringOrder) (*recurringOrderService, *fakeOrderRepo) {
	repo := newFakeOrderRepo(orders...)
	return &recurringOrderService{orders: repo, now: func() time.Time { return now }}, repo
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 8, 0, 0, 0, time.UTC)
}

func validCreateDTO(start time.Time) CreateRecurringOrderDTO {
	return CreateRecurringOrderDTO{
		Name:      "weekly restock",
		Warehouse: "WH-EAST",
		Frequency: model.FrequencyWeekly,
		StartDate: start,
		Items: []TemplateItemDTO{{
			ProductID: uuid.NewString(),
			Quantity:  10,
		}},
	}
}

func TestCreateSetsScheduleDefaults(t *testing.T) {
	now := day(2025, time.June, 1)
	svc, _ := testService(now)
	supplierID := uuid.New()
	start := day(2025, time.June, 9)

	order, err := svc.Create(context.Background(), supplierID, validCreateDTO(start))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.Status != model.RecurringStatusActive {
		t.Fatalf("status = %s, want ACTIVE", order.Status)
	}
	if order.Interval != 1 || order.MaxRetries != 3 || !order.AutoPriceAdjust {
		t.Fatalf("defaults not applied: interval=%d maxRetries=%d autoPriceAdjust=%v",
			order.Interval, order.MaxRetries, order.AutoPriceAdjust)
	}
	if order.AnchorDay != 9 {
		t.Fatalf("anchor day = %d, want 9", order.AnchorDay)
	}
	// A future start date is itself the first execution.
	if !order.NextExecutionDate.Equal(start) {
		t.Fatalf("next execution = %v, want %v", order.NextExecutionDate, start)
	}
	if order.Items[0].BackorderBehavior != model.BackorderAllow {
		t.Fatalf("backorder behavior = %s, want ALLOW default", order.Items[0].BackorderBehavior)
	}
}

func TestCreateWithPastStartCatchesUp(t *testing.T) {
	now := day(2025, time.June, 20)
	svc, _ := testService(now)

	order, err := svc.Create(context.Background(), uuid.New(), validCreateDTO(day(2025, time.June, 2)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.NextExecutionDate.Before(now) {
		t.Fatalf("next execution = %v, want at or after %v", order.NextExecutionDate, now)
	}
	// Weekly from June 2: the first cycle at or after June 20 is June 23.
	if want := day(2025, time.June, 23); !order.NextExecutionDate.Equal(want) {
		t.Fatalf("next execution = %v, want %v", order.NextExecutionDate, want)
	}
}

func TestCreateRejectsInvalidItems(t *testing.T) {
	svc, _ := testService(day(2025, time.June, 1))

	dto := validCreateDTO(day(2025, time.June, 9))
	dto.Items = []TemplateItemDTO{{ProductID: "not-a-uuid", Quantity: 1}}
	if _, err := svc.Create(context.Background(), uuid.New(), dto); err == nil {
		t.Fatal("expected an error for a malformed product id")
	}

	dto = validCreateDTO(day(2025, time.June, 9))
	dto.Items = []TemplateItemDTO{{ProductID: uuid.NewString(), Quantity: 10, MinQuantity: 9, MaxQuantity: 5}}
	if _, err := svc.Create(context.Background(), uuid.New(), dto); err == nil {
		t.Fatal("expected an error when min quantity exceeds max")
	}
}

func TestUpdateScheduleRecomputesNextExecution(t *testing.T) {
	now := day(2025, time.June, 1)
	svc, _ := testService(now)
	supplierID := uuid.New()

	order, err := svc.Create(context.Background(), supplierID, validCreateDTO(day(2025, time.June, 9)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	daily := model.FrequencyDaily
	updated, err := svc.Update(context.Background(), order.ID, supplierID, UpdateRecurringOrderDTO{Frequency: &daily})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Frequency != model.FrequencyDaily {
		t.Fatalf("frequency = %s, want DAILY", updated.Frequency)
	}
	if want := day(2025, time.June, 9); !updated.NextExecutionDate.Equal(want) {
		t.Fatalf("next execution = %v, want %v", updated.NextExecutionDate, want)
	}

	// A template-only patch leaves the schedule alone.
	name := "renamed"
	before := updated.NextExecutionDate
	renamed, err := svc.Update(context.Background(), order.ID, supplierID, UpdateRecurringOrderDTO{Name: &name})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !renamed.NextExecutionDate.Equal(before) {
		t.Fatalf("next execution moved to %v on a non-schedule patch", renamed.NextExecutionDate)
	}
}

func TestUpdateClearsNullableCeilings(t *testing.T) {
	now := day(2025, time.June, 1)
	svc, _ := testService(now)
	supplierID := uuid.New()

	threshold := decimal.NewFromInt(5000)
	ceiling := decimal.NewFromInt(20000)
	dto := validCreateDTO(day(2025, time.June, 9))
	dto.ApprovalThresh = &threshold
	dto.MaxOrderValue = &ceiling

	order, err := svc.Create(context.Background(), supplierID, dto)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !order.ApprovalThreshold.Valid || !order.MaxOrderValue.Valid {
		t.Fatal("ceilings not set on create")
	}

	// A nil pointer leaves them untouched.
	name := "renamed"
	updated, err := svc.Update(context.Background(), order.ID, supplierID, UpdateRecurringOrderDTO{Name: &name})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.ApprovalThreshold.Valid || !updated.MaxOrderValue.Valid {
		t.Fatal("ceilings dropped by an unrelated patch")
	}

	updated, err = svc.Update(context.Background(), order.ID, supplierID, UpdateRecurringOrderDTO{
		ClearApprovalThresh: true,
		ClearMaxOrderValue:  true,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ApprovalThreshold.Valid {
		t.Fatal("approval threshold still set after clearing")
	}
	if updated.MaxOrderValue.Valid {
		t.Fatal("max order value still set after clearing")
	}
}

func TestOwnershipIsEnforced(t *testing.T) {
	now := day(2025, time.June, 1)
	svc, _ := testService(now)
	owner := uuid.New()

	order, err := svc.Create(context.Background(), owner, validCreateDTO(day(2025, time.June, 9)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Get(context.Background(), order.ID, uuid.New()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Get() by another supplier error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Get(context.Background(), uuid.New(), owner); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() unknown id error = %v, want ErrNotFound", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	now := day(2025, time.June, 1)
	svc, _ := testService(now)
	supplierID := uuid.New()

	order, err := svc.Create(context.Background(), supplierID, validCreateDTO(day(2025, time.June, 9)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Resume only applies to a paused order.
	if _, err := svc.Resume(context.Background(), order.ID, supplierID); err == nil {
		t.Fatal("expected an error resuming an active order")
	}

	paused, err := svc.Pause(context.Background(), order.ID, supplierID)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if paused.Status != model.RecurringStatusPaused {
		t.Fatalf("status = %s, want PAUSED", paused.Status)
	}

	resumed, err := svc.Resume(context.Background(), order.ID, supplierID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != model.RecurringStatusActive {
		t.Fatalf("status = %s, want ACTIVE", resumed.Status)
	}

	cancelled, err := svc.Cancel(context.Background(), order.ID, supplierID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != model.RecurringStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", cancelled.Status)
	}

	// Cancel is idempotent and terminal.
	if _, err := svc.Cancel(context.Background(), order.ID, supplierID); err != nil {
		t.Fatalf("second Cancel() error = %v", err)
	}
	if _, err := svc.Pause(context.Background(), order.ID, supplierID); err == nil {
		t.Fatal("expected an error pausing a cancelled order")
	}
	name := "renamed"
	if _, err := svc.Update(context.Background(), order.ID, supplierID, UpdateRecurringOrderDTO{Name: &name}); err == nil {
		t.Fatal("expected an error updating a cancelled order")
	}
}
