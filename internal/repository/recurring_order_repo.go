package repository

import (
	"context"
	"encoding/json"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListFilter narrows a supplier's recurring-order listing.
type ListFilter struct {
	Warehouse string
	Frequency string
	Tag       string
}

type RecurringOrderRepository interface {
	Create(ctx context.Context, order *model.RecurringOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.RecurringOrder, error)
	Save(ctx context.Context, order *model.RecurringOrder) error
	UpdateNextExecution(ctx context.Context, id uuid.UUID, next time.Time) error
	List(ctx context.Context, supplierID uuid.UUID, filter ListFilter, page, limit int) ([]model.RecurringOrder, int64, error)
	// FindDue returns active orders whose next execution date has arrived.
	FindDue(ctx context.Context, now time.Time, limit int) ([]model.RecurringOrder, error)
	// FindUpcoming returns active orders executing within the given window.
	FindUpcoming(ctx context.Context, from, to time.Time) ([]model.RecurringOrder, error)
}

type recurringOrderRepository struct {
	db *gorm.DB
}

func NewRecurringOrderRepository(db *gorm.DB) RecurringOrderRepository {
	return &recurringOrderRepository{db: db}
}

func (r *recurringOrderRepository) Create(ctx context.Context, order *model.RecurringOrder) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *recurringOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.RecurringOrder, error) {
	var order model.RecurringOrder
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *recurringOrderRepository) Save(ctx context.Context, order *model.RecurringOrder) error {
	return GetDB(ctx, r.db).Save(order).Error
}

func (r *recurringOrderRepository) UpdateNextExecution(ctx context.Context, id uuid.UUID, next time.Time) error {
	return GetDB(ctx, r.db).Model(&model.RecurringOrder{}).
		Where("id = ?", id).
		Update("next_execution_date", next).Error
}

func (r *recurringOrderRepository) List(ctx context.Context, supplierID uuid.UUID, filter ListFilter, page, limit int) ([]model.RecurringOrder, int64, error) {
	db := GetDB(ctx, r.db)

	query := db.Model(&model.RecurringOrder{}).Where("supplier_id = ?", supplierID)
	if filter.Warehouse != "" {
		query = query.Where("warehouse = ?", filter.Warehouse)
	}
	if filter.Frequency != "" {
		query = query.Where("frequency = ?", filter.Frequency)
	}
	if filter.Tag != "" {
		tagJSON, _ := json.Marshal([]string{filter.Tag})
		query = query.Where("tags @> ?", string(tagJSON))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []model.RecurringOrder
	offset := (page - 1) * limit
	if err := query.
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *recurringOrderRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]model.RecurringOrder, error) {
	var orders []model.RecurringOrder
	if err := GetDB(ctx, r.db).
		Where("status = ? AND next_execution_date <= ?", model.RecurringStatusActive, now).
		Order("next_execution_date ASC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *recurringOrderRepository) FindUpcoming(ctx context.Context, from, to time.Time) ([]model.RecurringOrder, error) {
	var orders []model.RecurringOrder
	if err := GetDB(ctx, r.db).
		Where("status = ? AND next_execution_date > ? AND next_execution_date <= ?",
			model.RecurringStatusActive, from, to).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
