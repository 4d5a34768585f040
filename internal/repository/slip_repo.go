package repository

import (
	"context"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SlipRepository interface {
	Create(ctx context.Context, slip *model.Slip) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Slip, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Slip, error)
	Update(ctx context.Context, slip *model.Slip) error
	CountPendingRequisitions(ctx context.Context, requestID uuid.UUID) (int64, error)
	CountToday(ctx context.Context, kind string) (int64, error)
}

type slipRepository struct {
	db *gorm.DB
}

func NewSlipRepository(db *gorm.DB) SlipRepository {
	return &slipRepository{db: db}
}

func (r *slipRepository) Create(ctx context.Context, slip *model.Slip) error {
	return GetDB(ctx, r.db).Create(slip).Error
}

func (r *slipRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Slip, error) {
	var slip model.Slip
	if err := GetDB(ctx, r.db).
		Preload("Request").
		Preload("PreparedBy").
		Preload("Approver").
		First(&slip, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &slip, nil
}

func (r *slipRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Slip, error) {
	var slips []model.Slip
	if err := GetDB(ctx, r.db).
		Preload("PreparedBy").
		Preload("Approver").
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&slips).Error; err != nil {
		return nil, err
	}
	return slips, nil
}

func (r *slipRepository) Update(ctx context.Context, slip *model.Slip) error {
	return GetDB(ctx, r.db).Save(slip).Error
}

// CountPendingRequisitions tells the slip service whether approving one more
// requisition slip clears the request for final approval.
func (r *slipRepository) CountPendingRequisitions(ctx context.Context, requestID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Slip{}).
		Where("request_id = ? AND kind = ? AND approval = ?", requestID, model.SlipKindRequisition, model.SlipPending).
		Count(&count).Error
	return count, err
}

func (r *slipRepository) CountToday(ctx context.Context, kind string) (int64, error) {
	var count int64
	start := startOfDay(time.Now())
	err := GetDB(ctx, r.db).Model(&model.Slip{}).
		Where("kind = ? AND created_at >= ?", kind, start).
		Count(&count).Error
	return count, err
}
