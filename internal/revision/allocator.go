package revision

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentKind enum constants for the negative-flow methods.
const (
	AdjustAgainstPO = "AGAINST_PO"
	AdjustAdhoc     = "ADHOC"
	AdjustRefunded  = "REFUNDED"
)

// conservationTolerance is the one-currency-unit rounding slack allowed
// between the net impact and the allocated total.
var conservationTolerance = decimal.NewFromInt(1)

// PaymentTerm is one positive-flow allocation unit.
type PaymentTerm struct {
	ID     uuid.UUID       `json:"id"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// TermPatch carries partial edits for a payment term.
type TermPatch struct {
	Label  *string
	Amount *decimal.Decimal
}

// Adjustment is one negative-flow allocation unit, a tagged variant over
// Kind. Only the fields of the active kind are meaningful.
type Adjustment struct {
	ID   uuid.UUID `json:"id"`
	Kind string    `json:"kind"`

	// AGAINST_PO
	TargetOrderID *uuid.UUID `json:"target_order_id,omitempty"`

	// ADHOC
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Comment     string `json:"comment,omitempty"`

	// REFUNDED
	RefundDate     *time.Time `json:"refund_date,omitempty"`
	ProofName      string     `json:"proof_name,omitempty"`
	ProofContent   []byte     `json:"-"`
	ProofReference string     `json:"proof_reference,omitempty"`

	Amount decimal.Decimal `json:"amount"`
}

// AdjustmentPatch carries partial edits for an adjustment record.
type AdjustmentPatch struct {
	Category    *string
	Description *string
	Comment     *string
	RefundDate  *time.Time
	Amount      *decimal.Decimal
}

// CandidateOrder is a cross-PO credit target supplied by the surrounding
// system: same vendor, approved/payable, never the order under revision.
type CandidateOrder struct {
	ID          uuid.UUID       `json:"id"`
	OrderCode   string          `json:"order_code"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
}

// Headroom is the outstanding payable the candidate can absorb.
func (c CandidateOrder) Headroom() decimal.Decimal {
	h := c.TotalAmount.Sub(c.AmountPaid)
	if h.IsNegative() {
		return decimal.Zero
	}
	return h
}

// Allocator owns the payment-term and refund-adjustment collections for one
// session and enforces the method-combination policy and the conservation
// check. Which side is active follows the sign of the difference; the
// allocator itself is told the net impact on every query so it never holds a
// stale copy.
type Allocator struct {
	terms       []PaymentTerm
	adjustments []Adjustment
	primary     string // "", AdjustAgainstPO, AdjustAdhoc or AdjustRefunded
}

// NewAllocator returns an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Reset drops all terms and adjustments, e.g. when the ledger edits flip the
// difference sign.
func (a *Allocator) Reset() {
	a.terms = nil
	a.adjustments = nil
	a.primary = ""
}

// --- Positive flow: payment terms ---

// Terms returns a copy of the payment-term list.
func (a *Allocator) Terms() []PaymentTerm {
	return append([]PaymentTerm(nil), a.terms...)
}

// AddTerm appends an empty payment term and returns it.
func (a *Allocator) AddTerm() PaymentTerm {
	term := PaymentTerm{ID: uuid.New(), Amount: decimal.Zero}
	a.terms = append(a.terms, term)
	return term
}

// UpdateTerm merges the patch into the identified term.
func (a *Allocator) UpdateTerm(id uuid.UUID, patch TermPatch) error {
	for i := range a.terms {
		if a.terms[i].ID != id {
			continue
		}
		if patch.Label != nil {
			a.terms[i].Label = *patch.Label
		}
		if patch.Amount != nil {
			a.terms[i].Amount = *patch.Amount
		}
		return nil
	}
	return ErrTermNotFound
}

// RemoveTerm deletes a term. The last remaining term cannot be removed.
func (a *Allocator) RemoveTerm(id uuid.UUID) error {
	for i := range a.terms {
		if a.terms[i].ID != id {
			continue
		}
		if len(a.terms) == 1 {
			return ErrLastPaymentTerm
		}
		a.terms = append(a.terms[:i], a.terms[i+1:]...)
		return nil
	}
	return ErrTermNotFound
}

// TotalAllocated sums the payment-term amounts.
func (a *Allocator) TotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, t := range a.terms {
		total = total.Add(t.Amount)
	}
	return total
}

// RemainingToAllocate is the net impact not yet covered by payment terms.
func (a *Allocator) RemainingToAllocate(netImpact decimal.Decimal) decimal.Decimal {
	return netImpact.Sub(a.TotalAllocated())
}

// TermsConserved checks the positive-flow conservation invariant within the
// one-unit rounding tolerance.
func (a *Allocator) TermsConserved(netImpact decimal.Decimal) bool {
	return a.TotalAllocated().Sub(netImpact).Abs().LessThanOrEqual(conservationTolerance)
}

// --- Negative flow: refund adjustments ---

// Adjustments returns a copy of the adjustment list.
func (a *Allocator) Adjustments() []Adjustment {
	return append([]Adjustment(nil), a.adjustments...)
}

// PrimaryKind returns the active primary refund method, or "" when none has
// been chosen yet.
func (a *Allocator) PrimaryKind() string {
	return a.primary
}

// HasAgainstPO reports whether any cross-PO credit record exists.
func (a *Allocator) HasAgainstPO() bool {
	for _, adj := range a.adjustments {
		if adj.Kind == AdjustAgainstPO {
			return true
		}
	}
	return false
}

// ChoosePrimary switches the primary refund method. Any choice clears the
// existing adjustments. The policy is asymmetric: AGAINST_PO can later
// absorb one ADHOC and one REFUNDED secondary, but while any AGAINST_PO
// record is present the ADHOC/REFUNDED primary modes are blocked.
func (a *Allocator) ChoosePrimary(kind string) (*Adjustment, error) {
	switch kind {
	case AdjustAgainstPO:
		a.adjustments = nil
		a.primary = AdjustAgainstPO
		return nil, nil
	case AdjustAdhoc, AdjustRefunded:
		if a.HasAgainstPO() {
			return nil, ErrAgainstPOActive
		}
		a.adjustments = []Adjustment{{ID: uuid.New(), Kind: kind, Amount: decimal.Zero}}
		a.primary = kind
		return &a.adjustments[0], nil
	default:
		return nil, ErrAdjustmentNotFound
	}
}

// AddSecondary appends one ADHOC or REFUNDED record for the leftover amount.
// Only available while AGAINST_PO is the primary mode, and at most one
// secondary of each kind may exist.
func (a *Allocator) AddSecondary(kind string, netImpact decimal.Decimal) (*Adjustment, error) {
	if a.primary != AdjustAgainstPO {
		return nil, ErrNotAgainstPOMode
	}
	if kind != AdjustAdhoc && kind != AdjustRefunded {
		return nil, ErrAdjustmentNotFound
	}
	for _, adj := range a.adjustments {
		if adj.Kind == kind {
			return nil, ErrSecondaryExists
		}
	}
	leftover := a.RemainingToAdjust(netImpact)
	if leftover.IsNegative() {
		leftover = decimal.Zero
	}
	a.adjustments = append(a.adjustments, Adjustment{ID: uuid.New(), Kind: kind, Amount: leftover})
	return &a.adjustments[len(a.adjustments)-1], nil
}

// SelectCandidate adds one AGAINST_PO record for a candidate order. A
// candidate can only be picked while something remains to adjust, and the
// amount is capped by the candidate's payable headroom. Over-allocation is
// prevented here by construction, not just validated at submit.
func (a *Allocator) SelectCandidate(c CandidateOrder, amount, netImpact decimal.Decimal) (*Adjustment, error) {
	if a.primary != AdjustAgainstPO {
		return nil, ErrNotAgainstPOMode
	}
	for _, adj := range a.adjustments {
		if adj.Kind == AdjustAgainstPO && adj.TargetOrderID != nil && *adj.TargetOrderID == c.ID {
			return nil, ErrCandidateSelected
		}
	}
	if !a.RemainingToAdjust(netImpact).IsPositive() {
		return nil, ErrNothingToAdjust
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(c.Headroom()) {
		return nil, ErrExceedsHeadroom
	}
	target := c.ID
	a.adjustments = append(a.adjustments, Adjustment{
		ID:            uuid.New(),
		Kind:          AdjustAgainstPO,
		TargetOrderID: &target,
		Amount:        amount,
	})
	return &a.adjustments[len(a.adjustments)-1], nil
}

// DeselectCandidate removes the AGAINST_PO record for a target order. An
// already-selected candidate can always be deselected.
func (a *Allocator) DeselectCandidate(targetOrderID uuid.UUID) error {
	for i, adj := range a.adjustments {
		if adj.Kind == AdjustAgainstPO && adj.TargetOrderID != nil && *adj.TargetOrderID == targetOrderID {
			a.adjustments = append(a.adjustments[:i], a.adjustments[i+1:]...)
			return nil
		}
	}
	return ErrAdjustmentNotFound
}

// UpdateAdjustment merges field edits into the identified record.
func (a *Allocator) UpdateAdjustment(id uuid.UUID, patch AdjustmentPatch) error {
	for i := range a.adjustments {
		if a.adjustments[i].ID != id {
			continue
		}
		adj := &a.adjustments[i]
		if patch.Category != nil {
			adj.Category = *patch.Category
		}
		if patch.Description != nil {
			adj.Description = *patch.Description
		}
		if patch.Comment != nil {
			adj.Comment = *patch.Comment
		}
		if patch.RefundDate != nil {
			adj.RefundDate = patch.RefundDate
		}
		if patch.Amount != nil {
			adj.Amount = *patch.Amount
		}
		return nil
	}
	return ErrAdjustmentNotFound
}

// AttachProof stages a refund-proof file on a REFUNDED record; it is
// uploaded when the revision is assembled.
func (a *Allocator) AttachProof(id uuid.UUID, name string, content []byte) error {
	for i := range a.adjustments {
		if a.adjustments[i].ID != id {
			continue
		}
		if a.adjustments[i].Kind != AdjustRefunded {
			return ErrAdjustmentNotFound
		}
		a.adjustments[i].ProofName = name
		a.adjustments[i].ProofContent = content
		return nil
	}
	return ErrAdjustmentNotFound
}

// RemoveAdjustment deletes a record. Removing the sole record of an
// ADHOC/REFUNDED primary mode resets the method choice.
func (a *Allocator) RemoveAdjustment(id uuid.UUID) error {
	for i := range a.adjustments {
		if a.adjustments[i].ID != id {
			continue
		}
		a.adjustments = append(a.adjustments[:i], a.adjustments[i+1:]...)
		if len(a.adjustments) == 0 && a.primary != AdjustAgainstPO {
			a.primary = ""
		}
		return nil
	}
	return ErrAdjustmentNotFound
}

// TotalAdjusted sums the adjustment amounts.
func (a *Allocator) TotalAdjusted() decimal.Decimal {
	total := decimal.Zero
	for _, adj := range a.adjustments {
		total = total.Add(adj.Amount)
	}
	return total
}

// RemainingToAdjust is the net impact not yet covered by adjustments.
func (a *Allocator) RemainingToAdjust(netImpact decimal.Decimal) decimal.Decimal {
	return netImpact.Sub(a.TotalAdjusted())
}

// AdjustmentsConserved checks the negative-flow conservation invariant
// within the one-unit rounding tolerance.
func (a *Allocator) AdjustmentsConserved(netImpact decimal.Decimal) bool {
	return netImpact.Sub(a.TotalAdjusted()).Abs().LessThanOrEqual(conservationTolerance)
}

// ValidateAdjustments checks kind-specific required fields before
// submission. A missing refund proof is tolerated here; the external
// workflow chases it up.
func (a *Allocator) ValidateAdjustments() error {
	for _, adj := range a.adjustments {
		switch adj.Kind {
		case AdjustAdhoc:
			if adj.Category == "" {
				return ErrMissingCategory
			}
			if adj.Description == "" {
				return ErrMissingDescription
			}
		case AdjustRefunded:
			if adj.RefundDate == nil {
				return ErrMissingRefundDate
			}
		}
	}
	return nil
}
