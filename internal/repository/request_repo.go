package repository

import (
	"context"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestFilter narrows request listings.
type RequestFilter struct {
	Status     string
	Kind       string
	Department string
	Page       int
	Limit      int
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]model.Request, int64, error)
	Update(ctx context.Context, req *model.Request) error
	AppendApproval(ctx context.Context, rec *model.ApprovalRecord) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListExpiredClosures(ctx context.Context, before time.Time) ([]model.Request, error)
	CountToday(ctx context.Context, kind string) (int64, error)
	CreateAttachment(ctx context.Context, att *model.Attachment) error
	ListAttachments(ctx context.Context, requestID uuid.UUID) ([]model.Attachment, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).
		Preload("Requester").
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Approvals.Approver").
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]model.Request, int64, error) {
	var requests []model.Request
	var total int64

	db := GetDB(ctx, r.db)
	apply := func(q *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Kind != "" {
			q = q.Where("kind = ?", filter.Kind)
		}
		if filter.Department != "" {
			q = q.Where("department = ?", filter.Department)
		}
		return q
	}

	if err := apply(db.Model(&model.Request{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := apply(db.Preload("Requester")).
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *requestRepository) Update(ctx context.Context, req *model.Request) error {
	return GetDB(ctx, r.db).Save(req).Error
}

// AppendApproval writes one decision record. Records are insert-only; there
// is no update path on this table.
func (r *requestRepository) AppendApproval(ctx context.Context, rec *model.ApprovalRecord) error {
	return GetDB(ctx, r.db).Create(rec).Error
}

func (r *requestRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Request{}).Error
}

func (r *requestRepository) ListExpiredClosures(ctx context.Context, before time.Time) ([]model.Request, error) {
	var requests []model.Request
	if err := GetDB(ctx, r.db).
		Where("status = ? AND pending_closure_date <= ?", model.StatusPendingClosure, before).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// startOfDay returns midnight of t's calendar day in t's location, so the
// daily counter window agrees with the date stamped into document numbers.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// CountToday supports request-number generation (PR-20260830-00001 style).
func (r *requestRepository) CountToday(ctx context.Context, kind string) (int64, error) {
	var count int64
	start := startOfDay(time.Now())
	err := GetDB(ctx, r.db).Model(&model.Request{}).Unscoped().
		Where("kind = ? AND created_at >= ?", kind, start).
		Count(&count).Error
	return count, err
}

func (r *requestRepository) CreateAttachment(ctx context.Context, att *model.Attachment) error {
	return GetDB(ctx, r.db).Create(att).Error
}

func (r *requestRepository) ListAttachments(ctx context.Context, requestID uuid.UUID) ([]model.Attachment, error) {
	var atts []model.Attachment
	if err := GetDB(ctx, r.db).
		Preload("UploadedBy").
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&atts).Error; err != nil {
		return nil, err
	}
	return atts, nil
}
