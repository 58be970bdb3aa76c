package repository

import (
	"context"
	"errors"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExecutionRepository interface {
	Create(ctx context.Context, exec *model.OrderExecution) error
	Save(ctx context.Context, exec *model.OrderExecution) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.OrderExecution, error)
	// FindOpenByOrder returns the latest non-terminal execution for the
	// order, or nil when every execution has settled.
	FindOpenByOrder(ctx context.Context, recurringOrderID uuid.UUID) (*model.OrderExecution, error)
	// FindDueRetries returns retryable failed executions whose backoff has elapsed.
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]model.OrderExecution, error)
	ListByOrder(ctx context.Context, recurringOrderID uuid.UUID, page, limit int) ([]model.OrderExecution, int64, error)
	// CreateIntents inserts intents, skipping duplicates by dedupe key, and
	// returns only the rows actually created.
	CreateIntents(ctx context.Context, intents []model.NotificationIntent) ([]model.NotificationIntent, error)
}

type executionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

func (r *executionRepository) Create(ctx context.Context, exec *model.OrderExecution) error {
	return GetDB(ctx, r.db).Create(exec).Error
}

func (r *executionRepository) Save(ctx context.Context, exec *model.OrderExecution) error {
	return GetDB(ctx, r.db).Save(exec).Error
}

func (r *executionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.OrderExecution, error) {
	var exec model.OrderExecution
	if err := GetDB(ctx, r.db).First(&exec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &exec, nil
}

func (r *executionRepository) FindOpenByOrder(ctx context.Context, recurringOrderID uuid.UUID) (*model.OrderExecution, error) {
	var exec model.OrderExecution
	err := GetDB(ctx, r.db).
		Where("recurring_order_id = ?", recurringOrderID).
		Where("status = ? OR (status = ? AND retryable AND (next_retry_at IS NOT NULL OR retry_count < max_retries))",
			model.ExecutionPending, model.ExecutionFailed).
		Order("created_at DESC").
		First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (r *executionRepository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]model.OrderExecution, error) {
	var execs []model.OrderExecution
	if err := GetDB(ctx, r.db).
		Where("status = ? AND retryable AND retry_count <= max_retries AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			model.ExecutionFailed, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&execs).Error; err != nil {
		return nil, err
	}
	return execs, nil
}

func (r *executionRepository) ListByOrder(ctx context.Context, recurringOrderID uuid.UUID, page, limit int) ([]model.OrderExecution, int64, error) {
	db := GetDB(ctx, r.db)
	query := db.Model(&model.OrderExecution{}).Where("recurring_order_id = ?", recurringOrderID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var execs []model.OrderExecution
	offset := (page - 1) * limit
	if err := query.
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&execs).Error; err != nil {
		return nil, 0, err
	}

	return execs, total, nil
}

func (r *executionRepository) CreateIntents(ctx context.Context, intents []model.NotificationIntent) ([]model.NotificationIntent, error) {
	db := GetDB(ctx, r.db)
	created := make([]model.NotificationIntent, 0, len(intents))
	for i := range intents {
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).Create(&intents[i])
		if result.Error != nil {
			return created, result.Error
		}
		if result.RowsAffected == 1 {
			created = append(created, intents[i])
		}
	}
	return created, nil
}
