package repository

import (
	"context"
	"time"

	"porevise/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RevisionRepository interface {
	Create(ctx context.Context, revision *model.OrderRevision) error
	CreateItems(ctx context.Context, items []model.OrderRevisionItem) error
	CreateTerms(ctx context.Context, terms []model.RevisionPaymentTerm) error
	CreateAdjustments(ctx context.Context, adjustments []model.RevisionAdjustment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.OrderRevision, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.OrderRevision, error)
	List(ctx context.Context, page, limit int) ([]model.OrderRevision, int64, error)
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	LatestLock(ctx context.Context, orderID uuid.UUID) (time.Time, error)
}

type revisionRepository struct {
	db *gorm.DB
}

func NewRevisionRepository(db *gorm.DB) RevisionRepository {
	return &revisionRepository{db: db}
}

func (r *revisionRepository) Create(ctx context.Context, revision *model.OrderRevision) error {
	return GetDB(ctx, r.db).Create(revision).Error
}

func (r *revisionRepository) CreateItems(ctx context.Context, items []model.OrderRevisionItem) error {
	if len(items) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&items).Error
}

func (r *revisionRepository) CreateTerms(ctx context.Context, terms []model.RevisionPaymentTerm) error {
	if len(terms) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&terms).Error
}

func (r *revisionRepository) CreateAdjustments(ctx context.Context, adjustments []model.RevisionAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&adjustments).Error
}

func (r *revisionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.OrderRevision, error) {
	var revision model.OrderRevision
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Terms").
		Preload("Adjustments").
		Preload("Order").
		First(&revision, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &revision, nil
}

func (r *revisionRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.OrderRevision, error) {
	var revisions []model.OrderRevision
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Terms").
		Preload("Adjustments").
		Where("order_id = ?", orderID).
		Order("revision_no asc").
		Find(&revisions).Error; err != nil {
		return nil, err
	}
	return revisions, nil
}

func (r *revisionRepository) List(ctx context.Context, page, limit int) ([]model.OrderRevision, int64, error) {
	var revisions []model.OrderRevision
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.OrderRevision{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Order").Order("created_at desc").Offset(offset).Limit(limit).Find(&revisions).Error; err != nil {
		return nil, 0, err
	}

	return revisions, total, nil
}

func (r *revisionRepository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.OrderRevision{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// LatestLock returns the most recent locked_until for an order, or the zero
// time when the order was never revised.
func (r *revisionRepository) LatestLock(ctx context.Context, orderID uuid.UUID) (time.Time, error) {
	var revision model.OrderRevision
	err := GetDB(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("revision_no desc").
		First(&revision).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return revision.LockedUntil, nil
}
