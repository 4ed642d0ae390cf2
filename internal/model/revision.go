package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemType enum constants mirrored from the revision core
const (
	RevisionItemOriginal = "ORIGINAL"
	RevisionItemNew      = "NEW"
	RevisionItemRevised  = "REVISED"
	RevisionItemReplace  = "REPLACE" // reserved, never produced
	RevisionItemDeleted  = "DELETED"
)

// Reconciliation plan kind constants
const (
	PlanKindPaymentTerms = "Payment Terms"
	PlanKindRefund       = "Refund Adjustment"
)

// RevisionLockDays is how long a submitted revision stays final before the
// order can be revised again.
const RevisionLockDays = 7

// OrderRevision is the persisted header of a submitted revision: the
// monetary delta, the justification, and the 7-day edit lock.
type OrderRevision struct {
	ID            uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID       uuid.UUID             `gorm:"type:uuid;not null;index" json:"order_id"`
	Order         *PurchaseOrder        `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	RevisionNo    int                   `gorm:"not null" json:"revision_no"`
	Justification string                `gorm:"type:text;not null" json:"justification"`
	DiffExclGST   decimal.Decimal       `gorm:"type:decimal(18,4);not null" json:"diff_excl_gst"`
	DiffInclGST   decimal.Decimal       `gorm:"type:decimal(18,4);not null" json:"diff_incl_gst"`
	PlanKind      string                `gorm:"type:varchar(30)" json:"plan_kind"` // empty on a zero-delta revision
	SubmittedBy   *uuid.UUID            `gorm:"type:uuid" json:"submitted_by"`
	Submitter     *User                 `gorm:"foreignKey:SubmittedBy" json:"submitter,omitempty"`
	LockedUntil   time.Time             `gorm:"not null;index" json:"locked_until"`
	Items         []OrderRevisionItem   `gorm:"foreignKey:RevisionID;constraint:OnDelete:CASCADE" json:"items"`
	Terms         []RevisionPaymentTerm `gorm:"foreignKey:RevisionID;constraint:OnDelete:CASCADE" json:"terms,omitempty"`
	Adjustments   []RevisionAdjustment  `gorm:"foreignKey:RevisionID;constraint:OnDelete:CASCADE" json:"adjustments,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

// OrderRevisionItem stores one item diff row: the revised fields plus the
// matching original fields side by side for the audit trail.
type OrderRevisionItem struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RevisionID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"revision_id"`
	ItemType      string     `gorm:"type:varchar(20);not null" json:"item_type"`
	OriginalRowID *uuid.UUID `gorm:"type:uuid" json:"original_row_id"`

	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	Make       string          `gorm:"type:varchar(255)" json:"make"`
	Unit       string          `gorm:"type:varchar(50)" json:"unit"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Rate       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"rate"`
	TaxPercent decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"tax_percent"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`

	OrigName       *string          `gorm:"type:varchar(255)" json:"orig_name"`
	OrigMake       *string          `gorm:"type:varchar(255)" json:"orig_make"`
	OrigUnit       *string          `gorm:"type:varchar(50)" json:"orig_unit"`
	OrigQuantity   *decimal.Decimal `gorm:"type:decimal(18,4)" json:"orig_quantity"`
	OrigRate       *decimal.Decimal `gorm:"type:decimal(18,4)" json:"orig_rate"`
	OrigTaxPercent *decimal.Decimal `gorm:"type:decimal(10,4)" json:"orig_tax_percent"`
	OrigAmount     *decimal.Decimal `gorm:"type:decimal(18,4)" json:"orig_amount"`

	CreatedAt time.Time `json:"created_at"`
}

// RevisionPaymentTerm stores one positive-flow allocation.
type RevisionPaymentTerm struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RevisionID uuid.UUID       `gorm:"type:uuid;not null;index" json:"revision_id"`
	Label      string          `gorm:"type:varchar(255)" json:"label"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AdjustmentKind enum constants mirrored from the revision core
const (
	AdjustAgainstPO = "AGAINST_PO"
	AdjustAdhoc     = "ADHOC"
	AdjustRefunded  = "REFUNDED"
)

// RevisionAdjustment stores one negative-flow allocation. Only the columns
// of its kind are populated.
type RevisionAdjustment struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RevisionID uuid.UUID `gorm:"type:uuid;not null;index" json:"revision_id"`
	Kind       string    `gorm:"type:varchar(20);not null" json:"kind"`

	TargetOrderID *uuid.UUID `gorm:"type:uuid;index" json:"target_order_id"` // AGAINST_PO

	Category    string `gorm:"type:varchar(100)" json:"category"` // ADHOC
	Description string `gorm:"type:text" json:"description"`
	Comment     string `gorm:"type:text" json:"comment"`

	RefundDate     *time.Time `gorm:"type:date" json:"refund_date"` // REFUNDED
	ProofReference string     `gorm:"type:text" json:"proof_reference"`

	Amount    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
