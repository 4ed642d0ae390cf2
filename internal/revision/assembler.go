package revision

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan kind labels in the emitted payload.
const (
	PlanKindPaymentTerms = "Payment Terms"
	PlanKindRefund       = "Refund Adjustment"
)

// Uploader stores a refund-proof attachment and returns an opaque
// reference.
type Uploader interface {
	Upload(ctx context.Context, name string, content []byte) (string, error)
}

// ItemFields is one side of an item diff row.
type ItemFields struct {
	Name       string          `json:"name"`
	Make       string          `json:"make"`
	Unit       string          `json:"unit"`
	Quantity   decimal.Decimal `json:"qty"`
	Rate       decimal.Decimal `json:"rate"`
	TaxPercent decimal.Decimal `json:"tax"`
	Amount     decimal.Decimal `json:"amount"`
}

// ItemDiff pairs an item's revised fields with the matching original fields
// when an original reference exists, for the audit trail.
type ItemDiff struct {
	ItemType      string      `json:"item_type"`
	OriginalRowID *uuid.UUID  `json:"original_row_id,omitempty"`
	Revised       ItemFields  `json:"revised"`
	Original      *ItemFields `json:"original,omitempty"`
}

// PlanAdjustment is one emitted refund adjustment with any pending proof
// upload resolved to its reference.
type PlanAdjustment struct {
	Kind           string          `json:"kind"`
	TargetOrderID  *uuid.UUID      `json:"target_order_id,omitempty"`
	Category       string          `json:"category,omitempty"`
	Description    string          `json:"description,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	RefundDate     *time.Time      `json:"refund_date,omitempty"`
	ProofReference string          `json:"proof_reference,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
}

// Plan is the reconciliation half of the submission payload. Nil when the
// difference is exactly zero.
type Plan struct {
	Kind    string           `json:"kind"`
	Terms   []PaymentTerm    `json:"terms,omitempty"`
	Details []PlanAdjustment `json:"details,omitempty"`
}

// Payload is the finalized submission handed to the persistence layer.
type Payload struct {
	OrderID         uuid.UUID       `json:"order_id"`
	Justification   string          `json:"justification"`
	Items           []ItemDiff      `json:"items"`
	TotalDifference decimal.Decimal `json:"total_difference"`
	Plan            *Plan           `json:"reconciliation_plan"`
}

func itemFields(name, itemMake, unit string, qty, rate, tax decimal.Decimal) ItemFields {
	return ItemFields{
		Name:       name,
		Make:       itemMake,
		Unit:       unit,
		Quantity:   qty,
		Rate:       rate,
		TaxPercent: tax,
		Amount:     lineInclGST(qty, rate, tax),
	}
}

// Assemble produces the submittable payload for a session. Pending proof
// attachments are uploaded concurrently and joined before the plan is
// built; an upload failure leaves the proof reference empty and is logged
// for operator follow-up rather than aborting the submission. The session
// itself is not mutated, so a failed persistence call can simply retry.
func Assemble(ctx context.Context, s *Session, uploader Uploader) Payload {
	items := s.Ledger().Items()
	diffs := make([]ItemDiff, 0, len(items))
	for _, it := range items {
		diff := ItemDiff{
			ItemType:      it.Type,
			OriginalRowID: it.OriginalRowID,
			Revised:       itemFields(it.Name, it.Make, it.Unit, it.Quantity, it.Rate, it.TaxPercent),
		}
		if it.OriginalRowID != nil {
			if o, ok := s.Ledger().Original(*it.OriginalRowID); ok {
				fields := itemFields(o.Name, o.Make, o.Unit, o.Quantity, o.Rate, o.TaxPercent)
				diff.Original = &fields
			}
		}
		diffs = append(diffs, diff)
	}

	d := s.Difference()
	payload := Payload{
		OrderID:         s.Snapshot.OrderID,
		Justification:   s.Justification,
		Items:           diffs,
		TotalDifference: d.InclGST,
	}

	switch {
	case d.IsPositive():
		payload.Plan = &Plan{Kind: PlanKindPaymentTerms, Terms: s.Allocator().Terms()}
	case d.IsNegative():
		payload.Plan = &Plan{
			Kind:    PlanKindRefund,
			Details: resolveAdjustments(ctx, s.Allocator().Adjustments(), uploader),
		}
	}
	return payload
}

// resolveAdjustments uploads pending proofs concurrently, joins the
// results, and flattens the adjustment records for emission.
func resolveAdjustments(ctx context.Context, adjustments []Adjustment, uploader Uploader) []PlanAdjustment {
	refs := make([]string, len(adjustments))
	var wg sync.WaitGroup
	for i, adj := range adjustments {
		if adj.ProofReference != "" {
			refs[i] = adj.ProofReference
			continue
		}
		if adj.Kind != AdjustRefunded || len(adj.ProofContent) == 0 || uploader == nil {
			continue
		}
		wg.Add(1)
		go func(i int, adj Adjustment) {
			defer wg.Done()
			ref, err := uploader.Upload(ctx, adj.ProofName, adj.ProofContent)
			if err != nil {
				log.Printf("refund proof upload failed for adjustment %s: %v", adj.ID, err)
				return
			}
			refs[i] = ref
		}(i, adj)
	}
	wg.Wait()

	details := make([]PlanAdjustment, 0, len(adjustments))
	for i, adj := range adjustments {
		details = append(details, PlanAdjustment{
			Kind:           adj.Kind,
			TargetOrderID:  adj.TargetOrderID,
			Category:       adj.Category,
			Description:    adj.Description,
			Comment:        adj.Comment,
			RefundDate:     adj.RefundDate,
			ProofReference: refs[i],
			Amount:         adj.Amount,
		})
	}
	return details
}
