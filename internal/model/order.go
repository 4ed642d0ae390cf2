package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrderStatus enum constants
const (
	OrderStatusDraft     = "DRAFT"
	OrderStatusApproved  = "APPROVED"
	OrderStatusClosed    = "CLOSED"
	OrderStatusCancelled = "CANCELLED"
)

// PurchaseOrder represents an issued order against a vendor. TotalAmount is
// the incl.-GST sum of its items; AmountPaid accumulates payments and
// cross-PO credits applied by submitted revisions.
type PurchaseOrder struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderCode   string              `gorm:"type:varchar(100);uniqueIndex;not null" json:"order_code"`
	VendorID    uuid.UUID           `gorm:"type:uuid;not null;index" json:"vendor_id"`
	Vendor      *Vendor             `gorm:"foreignKey:VendorID" json:"vendor,omitempty"`
	Status      string              `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	TotalAmount decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	AmountPaid  decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0" json:"amount_paid"`
	Note        string              `gorm:"type:text" json:"note"`
	Items       []PurchaseOrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// PurchaseOrderItem is a line item on a purchase order. Free-form fields
// rather than a product FK: revision sessions need to edit name/make/unit
// without touching a catalog.
type PurchaseOrderItem struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	Make       string          `gorm:"type:varchar(255)" json:"make"`
	Unit       string          `gorm:"type:varchar(50)" json:"unit"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Rate       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"rate"`
	TaxPercent decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"tax_percent"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PaymentSource enum constants
const (
	PaymentSourceDirect         = "DIRECT"
	PaymentSourceRevisionCredit = "REVISION_CREDIT"
)

// PurchaseOrderPayment records money applied against an order, either a
// direct payment or a credit allocated by a submitted revision.
type PurchaseOrderPayment struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Source     string          `gorm:"type:varchar(30);not null;default:'DIRECT'" json:"source"`
	RevisionID *uuid.UUID      `gorm:"type:uuid;index" json:"revision_id"` // set for REVISION_CREDIT
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Note       string          `gorm:"type:text" json:"note"`
	CreatedAt  time.Time       `json:"created_at"`
}
