package revision

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// snapshot10k builds an order totalling 10,000 incl. GST: a single line of
// 100 * 100 with 0% tax keeps the arithmetic readable.
func snapshot10k() OrderSnapshot {
	return OrderSnapshot{
		OrderID:   uuid.New(),
		OrderCode: "PO-0001",
		VendorID:  uuid.New(),
		Items: []OriginalItem{
			{ID: uuid.New(), Name: "Shuttering Ply", Make: "Green", Unit: "sheet", Quantity: dec(100), Rate: dec(88), TaxPercent: decimal.Zero},
			{ID: uuid.New(), Name: "MS Angle", Make: "Jindal", Unit: "kg", Quantity: dec(60), Rate: dec(20), TaxPercent: decimal.Zero},
		},
	}
}

func TestSession_PositiveFlowPaymentTerm(t *testing.T) {
	s := NewSession(snapshot10k())
	require.True(t, s.BeforeSummary().TotalInclGST.Equal(dec(10000)))

	// raise one item's rate so the after-total becomes 10,800
	require.NoError(t, s.UpdateItem(0, ItemPatch{Rate: decPtr(96)}))
	require.True(t, s.Difference().InclGST.Equal(dec(800)))
	require.Equal(t, FlowPositive, s.Flow())

	term, err := s.AddTerm()
	require.NoError(t, err)
	require.NoError(t, s.Allocator().UpdateTerm(term.ID, TermPatch{Label: strPtr("Balance with next bill"), Amount: decPtr(800)}))

	s.Justification = "vendor rate escalation"
	require.NoError(t, s.ReadyToSubmit())
}

func TestSession_NegativeFlowAgainstPO(t *testing.T) {
	s := NewSession(snapshot10k())

	// delete the 1,200 line: after-total 8,800, difference -1,200
	require.NoError(t, s.RemoveItem(1))
	require.True(t, s.Difference().InclGST.Equal(dec(-1200)))
	require.Equal(t, FlowNegative, s.Flow())

	_, err := s.ChoosePrimary(AdjustAgainstPO)
	require.NoError(t, err)

	candidate := CandidateOrder{ID: uuid.New(), OrderCode: "PO-0002", TotalAmount: dec(3000), AmountPaid: dec(1800)}
	_, err = s.SelectCandidate(candidate, dec(1200))
	require.NoError(t, err)

	s.Justification = "item descoped"
	require.NoError(t, s.ReadyToSubmit())
}

func TestSession_NegativeFlowLeftoverViaAdhoc(t *testing.T) {
	s := NewSession(snapshot10k())
	require.NoError(t, s.RemoveItem(1))

	_, err := s.ChoosePrimary(AdjustAgainstPO)
	require.NoError(t, err)

	// candidate headroom only 500, leaving 700 to adjust
	tight := CandidateOrder{ID: uuid.New(), OrderCode: "PO-0003", TotalAmount: dec(2000), AmountPaid: dec(1500)}
	_, err = s.SelectCandidate(tight, dec(500))
	require.NoError(t, err)
	require.True(t, s.Allocator().RemainingToAdjust(s.NetImpact()).Equal(dec(700)))

	adhoc, err := s.AddSecondary(AdjustAdhoc)
	require.NoError(t, err)
	require.True(t, adhoc.Amount.Equal(dec(700)))
	require.NoError(t, s.Allocator().UpdateAdjustment(adhoc.ID, AdjustmentPatch{
		Category:    strPtr("Credit note"),
		Description: strPtr("Residual credit for descoped line"),
	}))

	s.Justification = "item descoped"
	require.NoError(t, s.ReadyToSubmit())
}

func TestSession_CandidateCannotBeRevisedOrder(t *testing.T) {
	s := NewSession(snapshot10k())
	require.NoError(t, s.RemoveItem(1))
	_, err := s.ChoosePrimary(AdjustAgainstPO)
	require.NoError(t, err)

	self := CandidateOrder{ID: s.Snapshot.OrderID, TotalAmount: dec(10000), AmountPaid: dec(0)}
	_, err = s.SelectCandidate(self, dec(100))
	require.ErrorIs(t, err, ErrSelfCandidate)
}

func TestSession_FlowGuards(t *testing.T) {
	s := NewSession(snapshot10k())

	// no difference yet: neither side is active
	_, err := s.AddTerm()
	require.ErrorIs(t, err, ErrWrongFlow)
	_, err = s.ChoosePrimary(AdjustAdhoc)
	require.ErrorIs(t, err, ErrWrongFlow)
}

func TestSession_FlowFlipDropsStaleAllocations(t *testing.T) {
	s := NewSession(snapshot10k())

	require.NoError(t, s.UpdateItem(0, ItemPatch{Rate: decPtr(96)}))
	term, err := s.AddTerm()
	require.NoError(t, err)
	require.NoError(t, s.Allocator().UpdateTerm(term.ID, TermPatch{Amount: decPtr(800)}))

	// a further edit turns the delta negative; payment terms are stale now
	require.NoError(t, s.UpdateItem(0, ItemPatch{Rate: decPtr(70)}))
	require.Equal(t, FlowNegative, s.Flow())
	require.Empty(t, s.Allocator().Terms())
}

func TestSession_SubmitValidations(t *testing.T) {
	s := NewSession(snapshot10k())
	require.ErrorIs(t, s.ReadyToSubmit(), ErrNoJustification)

	s.Justification = "paperwork fix"
	require.NoError(t, s.ReadyToSubmit()) // zero delta: no plan required

	require.NoError(t, s.RemoveItem(0))
	require.NoError(t, s.RemoveItem(1))
	require.ErrorIs(t, s.ReadyToSubmit(), ErrNoItems)

	require.NoError(t, s.RemoveItem(0)) // undo one deletion
	require.ErrorIs(t, s.ReadyToSubmit(), ErrNotConserved)
}

// --- assembler ---

type fakeUploader struct {
	ref  string
	err  error
	seen []string
}

func (f *fakeUploader) Upload(_ context.Context, name string, _ []byte) (string, error) {
	f.seen = append(f.seen, name)
	if f.err != nil {
		return "", f.err
	}
	return f.ref + name, nil
}

func TestAssemble_ItemDiffSideBySide(t *testing.T) {
	snap := snapshot10k()
	s := NewSession(snap)
	require.NoError(t, s.UpdateItem(0, ItemPatch{Rate: decPtr(96)}))
	idx := s.AddItem()
	require.NoError(t, s.UpdateItem(idx, ItemPatch{Name: strPtr("Nails"), Quantity: decPtr(10), Rate: decPtr(2)}))

	payload := Assemble(context.Background(), s, nil)
	require.Len(t, payload.Items, 3)

	revised := payload.Items[0]
	require.Equal(t, ItemTypeRevised, revised.ItemType)
	require.NotNil(t, revised.Original)
	require.True(t, revised.Original.Rate.Equal(dec(88)))
	require.True(t, revised.Revised.Rate.Equal(dec(96)))
	require.True(t, revised.Revised.Amount.Equal(dec(9600)))

	added := payload.Items[2]
	require.Equal(t, ItemTypeNew, added.ItemType)
	require.Nil(t, added.Original)
	require.Nil(t, added.OriginalRowID)
}

func TestAssemble_ZeroDifferenceEmitsNoPlan(t *testing.T) {
	s := NewSession(snapshot10k())
	s.Justification = "typo fix"
	require.NoError(t, s.UpdateItem(0, ItemPatch{Name: strPtr("Shuttering Plywood")}))

	payload := Assemble(context.Background(), s, nil)
	require.Nil(t, payload.Plan)
	require.True(t, payload.TotalDifference.IsZero())
}

func TestAssemble_RefundPlanResolvesProofUploads(t *testing.T) {
	s := NewSession(snapshot10k())
	require.NoError(t, s.RemoveItem(1))
	refund, err := s.ChoosePrimary(AdjustRefunded)
	require.NoError(t, err)
	require.NoError(t, s.Allocator().UpdateAdjustment(refund.ID, AdjustmentPatch{Amount: decPtr(1200)}))
	require.NoError(t, s.Allocator().AttachProof(refund.ID, "neft-slip.pdf", []byte("proof")))

	up := &fakeUploader{ref: "uploads/"}
	payload := Assemble(context.Background(), s, up)

	require.NotNil(t, payload.Plan)
	require.Equal(t, PlanKindRefund, payload.Plan.Kind)
	require.Len(t, payload.Plan.Details, 1)
	require.Equal(t, "uploads/neft-slip.pdf", payload.Plan.Details[0].ProofReference)
	require.Equal(t, []string{"neft-slip.pdf"}, up.seen)
}

func TestAssemble_UploadFailureLeavesEmptyReference(t *testing.T) {
	s := NewSession(snapshot10k())
	require.NoError(t, s.RemoveItem(1))
	refund, err := s.ChoosePrimary(AdjustRefunded)
	require.NoError(t, err)
	require.NoError(t, s.Allocator().AttachProof(refund.ID, "slip.pdf", []byte("proof")))

	up := &fakeUploader{err: errors.New("bucket down")}
	payload := Assemble(context.Background(), s, up)

	// tolerated soft-fail: the adjustment is still emitted
	require.Len(t, payload.Plan.Details, 1)
	require.Empty(t, payload.Plan.Details[0].ProofReference)
}

func TestAssemble_PaymentPlan(t *testing.T) {
	s := NewSession(snapshot10k())
	require.NoError(t, s.UpdateItem(0, ItemPatch{Rate: decPtr(96)}))
	term, err := s.AddTerm()
	require.NoError(t, err)
	require.NoError(t, s.Allocator().UpdateTerm(term.ID, TermPatch{Label: strPtr("Immediate"), Amount: decPtr(800)}))

	payload := Assemble(context.Background(), s, nil)
	require.Equal(t, PlanKindPaymentTerms, payload.Plan.Kind)
	require.Len(t, payload.Plan.Terms, 1)
	require.True(t, payload.TotalDifference.Equal(dec(800)))
}
