package repository

import (
	"context"

	"porevise/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderListFilter struct {
	VendorID string
	Status   string
	Search   string // partial match on order_code
	Page     int
	Limit    int
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.PurchaseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	List(ctx context.Context, filter OrderListFilter) ([]model.PurchaseOrder, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	AddPaid(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	CreatePayment(ctx context.Context, payment *model.PurchaseOrderPayment) error
	ListPayableByVendor(ctx context.Context, vendorID, excludeOrderID uuid.UUID) ([]model.PurchaseOrder, error)
	CountByPrefix(ctx context.Context, prefix string) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.PurchaseOrder) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Vendor").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderListFilter) ([]model.PurchaseOrder, int64, error) {
	var orders []model.PurchaseOrder
	var total int64

	db := GetDB(ctx, r.db)
	apply := func(q *gorm.DB) *gorm.DB {
		if filter.VendorID != "" {
			q = q.Where("vendor_id = ?", filter.VendorID)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Search != "" {
			q = q.Where("order_code ILIKE ?", "%"+filter.Search+"%")
		}
		return q
	}

	if err := apply(db.Model(&model.PurchaseOrder{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := apply(db.Preload("Items").Preload("Vendor")).
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).Where("id = ?", id).Update("status", status).Error
}

// AddPaid atomically bumps amount_paid, e.g. when a revision credit is
// applied against the order.
func (r *orderRepository) AddPaid(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).Where("id = ?", id).
		Update("amount_paid", gorm.Expr("amount_paid + ?", amount)).Error
}

func (r *orderRepository) CreatePayment(ctx context.Context, payment *model.PurchaseOrderPayment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

// ListPayableByVendor returns the cross-PO credit candidates: approved
// orders of the same vendor, excluding the order under revision. Headroom
// filtering is left to the caller since a fully paid order is still worth
// showing as disabled.
func (r *orderRepository) ListPayableByVendor(ctx context.Context, vendorID, excludeOrderID uuid.UUID) ([]model.PurchaseOrder, error) {
	var orders []model.PurchaseOrder
	if err := GetDB(ctx, r.db).
		Where("vendor_id = ? AND status = ? AND id <> ?", vendorID, model.OrderStatusApproved, excludeOrderID).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) CountByPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).Where("order_code LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
