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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("recurring order not found")
	ErrForbidden = errors.New("recurring order belongs to a different supplier")
)

// --- DTOs ---

type TemplateItemDTO struct {
	ProductID               string          `json:"product_id" binding:"required,uuid"`
	Quantity                int             `json:"quantity" binding:"required,gt=0"`
	MinQuantity             int             `json:"min_quantity" binding:"omitempty,gte=0"`
	MaxQuantity             int             `json:"max_quantity" binding:"omitempty,gte=0"`
	LastKnownPrice          decimal.Decimal `json:"last_known_price"`
	UseDynamicPricing       bool            `json:"use_dynamic_pricing"`
	AllowQuantityAdjustment bool            `json:"allow_quantity_adjustment"`
	BackorderBehavior       string          `json:"backorder_behavior" binding:"omitempty,oneof=ALLOW PARTIAL REJECT"`
}

type CreateRecurringOrderDTO struct {
	Name             string                     `json:"name" binding:"required"`
	Warehouse        string                     `json:"warehouse" binding:"required"`
	Frequency        string                     `json:"frequency" binding:"required,oneof=DAILY WEEKLY BIWEEKLY MONTHLY QUARTERLY"`
	Interval         int                        `json:"interval" binding:"omitempty,gt=0"`
	StartDate        time.Time                  `json:"start_date" binding:"required"`
	Items            []TemplateItemDTO          `json:"items" binding:"required,min=1,dive"`
	ShippingMethod   string                     `json:"shipping_method"`
	ShippingEstimate decimal.Decimal            `json:"shipping_estimate"`
	IncludeShipping  bool                       `json:"include_shipping"`
	PaymentMethod    string                     `json:"payment_method"`
	DeliveryAddress  model.DeliveryAddress      `json:"delivery_address"`
	Instructions     string                     `json:"instructions"`
	AutoApprove      bool                       `json:"auto_approve"`
	AutoPriceAdjust  *bool                      `json:"auto_price_adjust"`
	ApprovalThresh   *decimal.Decimal           `json:"approval_threshold"`
	MaxOrderValue    *decimal.Decimal           `json:"max_order_value"`
	MaxRetries       int                        `json:"max_retries" binding:"omitempty,gte=0,lte=10"`
	Notifications    model.NotificationSettings `json:"notifications"`
	Tags             []string                   `json:"tags"`
	Custom           map[string]string          `json:"custom"`
}

// UpdateRecurringOrderDTO is a partial patch; nil fields are left untouched.
// The nullable ceilings cannot be distinguished from "absent" through a nil
// pointer, so clearing them goes through the explicit clear_* flags.
type UpdateRecurringOrderDTO struct {
	Name                *string                     `json:"name"`
	Frequency           *string                     `json:"frequency" binding:"omitempty,oneof=DAILY WEEKLY BIWEEKLY MONTHLY QUARTERLY"`
	Interval            *int                        `json:"interval" binding:"omitempty,gt=0"`
	StartDate           *time.Time                  `json:"start_date"`
	Items               []TemplateItemDTO           `json:"items" binding:"omitempty,min=1,dive"`
	ShippingMethod      *string                     `json:"shipping_method"`
	ShippingEstimate    *decimal.Decimal            `json:"shipping_estimate"`
	IncludeShipping     *bool                       `json:"include_shipping"`
	PaymentMethod       *string                     `json:"payment_method"`
	DeliveryAddress     *model.DeliveryAddress      `json:"delivery_address"`
	Instructions        *string                     `json:"instructions"`
	AutoApprove         *bool                       `json:"auto_approve"`
	AutoPriceAdjust     *bool                       `json:"auto_price_adjust"`
	ApprovalThresh      *decimal.Decimal            `json:"approval_threshold"`
	ClearApprovalThresh bool                        `json:"clear_approval_threshold"`
	MaxOrderValue       *decimal.Decimal            `json:"max_order_value"`
	ClearMaxOrderValue  bool                        `json:"clear_max_order_value"`
	MaxRetries          *int                        `json:"max_retries" binding:"omitempty,gte=0,lte=10"`
	Notifications       *model.NotificationSettings `json:"notifications"`
	Tags                []string                    `json:"tags"`
	Custom              map[string]string           `json:"custom"`
}

type ListRecurringOrdersFilter struct {
	Warehouse string
	Frequency string
	Tag       string
	Page      int
	Limit     int
}

// --- Interface ---

type RecurringOrderService interface {
	Create(ctx context.Context, supplierID uuid.UUID, dto CreateRecurringOrderDTO) (*model.RecurringOrder, error)
	Update(ctx context.Context, id, supplierID uuid.UUID, dto UpdateRecurringOrderDTO) (*model.RecurringOrder, error)
	Get(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error)
	List(ctx context.Context, supplierID uuid.UUID, filter ListRecurringOrdersFilter) ([]model.RecurringOrder, int64, error)
	Pause(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error)
	Resume(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error)
	Cancel(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error)
}

type recurringOrderService struct {
	orders repository.RecurringOrderRepository
	now    func() time.Time
}

func NewRecurringOrderService(orders repository.RecurringOrderRepository) RecurringOrderService {
	return &recurringOrderService{orders: orders, now: time.Now}
}

// --- Implementation ---

func (s *recurringOrderService) Create(ctx context.Context, supplierID uuid.UUID, dto CreateRecurringOrderDTO) (*model.RecurringOrder, error) {
	items, err := toTemplateItems(dto.Items)
	if err != nil {
		return nil, err
	}

	interval := dto.Interval
	if interval < 1 {
		interval = 1
	}
	maxRetries := dto.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	autoPriceAdjust := true
	if dto.AutoPriceAdjust != nil {
		autoPriceAdjust = *dto.AutoPriceAdjust
	}

	order := &model.RecurringOrder{
		SupplierID:        supplierID,
		Name:              dto.Name,
		Warehouse:         dto.Warehouse,
		Frequency:         dto.Frequency,
		Interval:          interval,
		StartDate:         dto.StartDate,
		AnchorDay:         dto.StartDate.Day(),
		Status:            model.RecurringStatusActive,
		Items:             items,
		ShippingMethod:    dto.ShippingMethod,
		ShippingEstimate:  dto.ShippingEstimate,
		IncludeShipping:   dto.IncludeShipping,
		PaymentMethod:     dto.PaymentMethod,
		DeliveryAddress:   dto.DeliveryAddress,
		Instructions:      dto.Instructions,
		AutoApprove:       dto.AutoApprove,
		AutoPriceAdjust:   autoPriceAdjust,
		ApprovalThreshold: toNullDecimal(dto.ApprovalThresh),
		MaxOrderValue:     toNullDecimal(dto.MaxOrderValue),
		MaxRetries:        maxRetries,
		Notifications:     dto.Notifications,
		Tags:              dto.Tags,
		Custom:            dto.Custom,
	}
	order.NextExecutionDate = firstExecutionDate(order, s.now())

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create recurring order: %w", err)
	}
	return order, nil
}

func (s *recurringOrderService) Update(ctx context.Context, id, supplierID uuid.UUID, dto UpdateRecurringOrderDTO) (*model.RecurringOrder, error) {
	order, err := s.findOwned(ctx, id, supplierID)
	if err != nil {
		return nil, err
	}
	if order.Status == model.RecurringStatusCancelled {
		return nil, errors.New("cannot update a cancelled recurring order")
	}

	scheduleChanged := false
	if dto.Frequency != nil {
		order.Frequency = *dto.Frequency
		scheduleChanged = true
	}
	if dto.Interval != nil {
		order.Interval = *dto.Interval
		scheduleChanged = true
	}
	if dto.StartDate != nil {
		order.StartDate = *dto.StartDate
		order.AnchorDay = dto.StartDate.Day()
		scheduleChanged = true
	}
	if dto.Name != nil {
		order.Name = *dto.Name
	}
	if dto.Items != nil {
		items, err := toTemplateItems(dto.Items)
		if err != nil {
			return nil, err
		}
		order.Items = items
	}
	if dto.ShippingMethod != nil {
		order.ShippingMethod = *dto.ShippingMethod
	}
	if dto.ShippingEstimate != nil {
		order.ShippingEstimate = *dto.ShippingEstimate
	}
	if dto.IncludeShipping != nil {
		order.IncludeShipping = *dto.IncludeShipping
	}
	if dto.PaymentMethod != nil {
		order.PaymentMethod = *dto.PaymentMethod
	}
	if dto.DeliveryAddress != nil {
		order.DeliveryAddress = *dto.DeliveryAddress
	}
	if dto.Instructions != nil {
		order.Instructions = *dto.Instructions
	}
	if dto.AutoApprove != nil {
		order.AutoApprove = *dto.AutoApprove
	}
	if dto.AutoPriceAdjust != nil {
		order.AutoPriceAdjust = *dto.AutoPriceAdjust
	}
	if dto.ClearApprovalThresh {
		order.ApprovalThreshold = decimal.NullDecimal{}
	} else if dto.ApprovalThresh != nil {
		order.ApprovalThreshold = toNullDecimal(dto.ApprovalThresh)
	}
	if dto.ClearMaxOrderValue {
		order.MaxOrderValue = decimal.NullDecimal{}
	} else if dto.MaxOrderValue != nil {
		order.MaxOrderValue = toNullDecimal(dto.MaxOrderValue)
	}
	if dto.MaxRetries != nil {
		order.MaxRetries = *dto.MaxRetries
	}
	if dto.Notifications != nil {
		order.Notifications = *dto.Notifications
	}
	if dto.Tags != nil {
		order.Tags = dto.Tags
	}
	if dto.Custom != nil {
		order.Custom = dto.Custom
	}

	if scheduleChanged {
		order.NextExecutionDate = firstExecutionDate(order, s.now())
	}

	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update recurring order: %w", err)
	}
	return order, nil
}

func (s *recurringOrderService) Get(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error) {
	return s.findOwned(ctx, id, supplierID)
}

func (s *recurringOrderService) List(ctx context.Context, supplierID uuid.UUID, filter ListRecurringOrdersFilter) ([]model.RecurringOrder, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	return s.orders.List(ctx, supplierID, repository.ListFilter{
		Warehouse: filter.Warehouse,
		Frequency: filter.Frequency,
		Tag:       filter.Tag,
	}, filter.Page, filter.Limit)
}

func (s *recurringOrderService) Pause(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error) {
	return s.transition(ctx, id, supplierID, model.RecurringStatusActive, model.RecurringStatusPaused)
}

func (s *recurringOrderService) Resume(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error) {
	return s.transition(ctx, id, supplierID, model.RecurringStatusPaused, model.RecurringStatusActive)
}

// Cancel is terminal; the order is never physically deleted so execution
// history stays intact.
func (s *recurringOrderService) Cancel(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error) {
	order, err := s.findOwned(ctx, id, supplierID)
	if err != nil {
		return nil, err
	}
	if order.Status == model.RecurringStatusCancelled {
		return order, nil
	}
	order.Status = model.RecurringStatusCancelled
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to cancel recurring order: %w", err)
	}
	return order, nil
}

func (s *recurringOrderService) transition(ctx context.Context, id, supplierID uuid.UUID, from, to string) (*model.RecurringOrder, error) {
	order, err := s.findOwned(ctx, id, supplierID)
	if err != nil {
		return nil, err
	}
	if order.Status != from {
		return nil, fmt.Errorf("recurring order is %s, expected %s", order.Status, from)
	}
	order.Status = to
	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update recurring order status: %w", err)
	}
	return order, nil
}

func (s *recurringOrderService) findOwned(ctx context.Context, id, supplierID uuid.UUID) (*model.RecurringOrder, error) {
	order, err := s.orders.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.SupplierID != supplierID {
		return nil, ErrForbidden
	}
	return order, nil
}

// --- Helpers ---

// firstExecutionDate is the start date itself when it lies ahead, otherwise
// the first calculator step at or after now.
func firstExecutionDate(order *model.RecurringOrder, now time.Time) time.Time {
	if !order.StartDate.Before(now) {
		return order.StartDate
	}
	return engine.NextExecution(engine.ScheduleOf(order), order.StartDate, now)
}

func toTemplateItems(dtos []TemplateItemDTO) (model.TemplateItems, error) {
	items := make(model.TemplateItems, 0, len(dtos))
	for _, d := range dtos {
		productID, err := uuid.Parse(d.ProductID)
		if err != nil {
			return nil, fmt.Errorf("invalid product_id %q: %w", d.ProductID, err)
		}
		if d.MaxQuantity > 0 && d.MinQuantity > d.MaxQuantity {
			return nil, fmt.Errorf("product %s: min_quantity exceeds max_quantity", d.ProductID)
		}
		behavior := d.BackorderBehavior
		if behavior == "" {
			behavior = model.BackorderAllow
		}
		items = append(items, model.TemplateItem{
			ProductID:               productID,
			Quantity:                d.Quantity,
			MinQuantity:             d.MinQuantity,
			MaxQuantity:             d.MaxQuantity,
			LastKnownPrice:          d.LastKnownPrice,
			UseDynamicPricing:       d.UseDynamicPricing,
			AllowQuantityAdjustment: d.AllowQuantityAdjustment,
			BackorderBehavior:       behavior,
		})
	}
	return items, nil
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
