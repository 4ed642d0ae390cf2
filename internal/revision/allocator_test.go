package revision

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAllocator_PaymentTermConservation(t *testing.T) {
	a := NewAllocator()
	net := dec(800)

	term := a.AddTerm()
	require.False(t, a.TermsConserved(net))
	require.True(t, a.RemainingToAllocate(net).Equal(dec(800)))

	require.NoError(t, a.UpdateTerm(term.ID, TermPatch{Label: strPtr("On delivery"), Amount: decPtr(800)}))
	require.True(t, a.TermsConserved(net))
	require.True(t, a.RemainingToAllocate(net).IsZero())
}

func TestAllocator_ConservationTolerance(t *testing.T) {
	a := NewAllocator()
	term := a.AddTerm()

	// one currency unit of rounding slack is allowed, no more
	require.NoError(t, a.UpdateTerm(term.ID, TermPatch{Amount: decPtr(799)}))
	require.True(t, a.TermsConserved(dec(800)))

	require.NoError(t, a.UpdateTerm(term.ID, TermPatch{Amount: decPtr(798)}))
	require.False(t, a.TermsConserved(dec(800)))
}

func TestAllocator_LastTermCannotBeRemoved(t *testing.T) {
	a := NewAllocator()
	first := a.AddTerm()
	second := a.AddTerm()

	require.NoError(t, a.RemoveTerm(second.ID))
	require.ErrorIs(t, a.RemoveTerm(first.ID), ErrLastPaymentTerm)
	require.ErrorIs(t, a.RemoveTerm(uuid.New()), ErrTermNotFound)
}

func TestAllocator_SelectCandidateCapsAtHeadroom(t *testing.T) {
	a := NewAllocator()
	_, err := a.ChoosePrimary(AdjustAgainstPO)
	require.NoError(t, err)

	candidate := CandidateOrder{ID: uuid.New(), OrderCode: "PO-0007", TotalAmount: dec(5000), AmountPaid: dec(4500)}
	require.True(t, candidate.Headroom().Equal(dec(500)))

	_, err = a.SelectCandidate(candidate, dec(600), dec(1200))
	require.ErrorIs(t, err, ErrExceedsHeadroom)

	_, err = a.SelectCandidate(candidate, dec(500), dec(1200))
	require.NoError(t, err)
	require.True(t, a.TotalAdjusted().Equal(dec(500)))
}

func TestAllocator_HeadroomNeverNegative(t *testing.T) {
	overpaid := CandidateOrder{ID: uuid.New(), TotalAmount: dec(1000), AmountPaid: dec(1100)}
	require.True(t, overpaid.Headroom().IsZero())
}

func TestAllocator_SelectionGatedOnRemaining(t *testing.T) {
	a := NewAllocator()
	_, err := a.ChoosePrimary(AdjustAgainstPO)
	require.NoError(t, err)

	net := dec(1000)
	first := CandidateOrder{ID: uuid.New(), TotalAmount: dec(2000), AmountPaid: dec(0)}
	_, err = a.SelectCandidate(first, dec(1000), net)
	require.NoError(t, err)

	// fully allocated: a further candidate cannot be selected...
	second := CandidateOrder{ID: uuid.New(), TotalAmount: dec(2000), AmountPaid: dec(0)}
	_, err = a.SelectCandidate(second, dec(100), net)
	require.ErrorIs(t, err, ErrNothingToAdjust)

	// ...but an already-selected one can still be deselected
	require.NoError(t, a.DeselectCandidate(first.ID))
	require.True(t, a.TotalAdjusted().IsZero())
}

func TestAllocator_DuplicateCandidateRejected(t *testing.T) {
	a := NewAllocator()
	_, err := a.ChoosePrimary(AdjustAgainstPO)
	require.NoError(t, err)

	candidate := CandidateOrder{ID: uuid.New(), TotalAmount: dec(2000), AmountPaid: dec(0)}
	_, err = a.SelectCandidate(candidate, dec(300), dec(1200))
	require.NoError(t, err)
	_, err = a.SelectCandidate(candidate, dec(300), dec(1200))
	require.ErrorIs(t, err, ErrCandidateSelected)
}

func TestAllocator_PrimarySwitchClearsAdjustments(t *testing.T) {
	a := NewAllocator()
	adj, err := a.ChoosePrimary(AdjustAdhoc)
	require.NoError(t, err)
	require.Equal(t, AdjustAdhoc, adj.Kind)
	require.Len(t, a.Adjustments(), 1)

	_, err = a.ChoosePrimary(AdjustRefunded)
	require.NoError(t, err)
	require.Len(t, a.Adjustments(), 1)
	require.Equal(t, AdjustRefunded, a.Adjustments()[0].Kind)

	_, err = a.ChoosePrimary(AdjustAgainstPO)
	require.NoError(t, err)
	require.Empty(t, a.Adjustments())
	require.Equal(t, AdjustAgainstPO, a.PrimaryKind())
}

func TestAllocator_AsymmetricCombinationPolicy(t *testing.T) {
	a := NewAllocator()

	// secondary methods need AGAINST_PO mode
	_, err := a.AddSecondary(AdjustAdhoc, dec(1200))
	require.ErrorIs(t, err, ErrNotAgainstPOMode)

	_, err = a.ChoosePrimary(AdjustAgainstPO)
	require.NoError(t, err)
	candidate := CandidateOrder{ID: uuid.New(), TotalAmount: dec(1000), AmountPaid: dec(500)}
	_, err = a.SelectCandidate(candidate, dec(500), dec(1200))
	require.NoError(t, err)

	// with an AGAINST_PO record present, ADHOC/REFUNDED primaries are blocked
	_, err = a.ChoosePrimary(AdjustAdhoc)
	require.ErrorIs(t, err, ErrAgainstPOActive)
	_, err = a.ChoosePrimary(AdjustRefunded)
	require.ErrorIs(t, err, ErrAgainstPOActive)

	// the secondary picks up the leftover, at most one of each kind
	adhoc, err := a.AddSecondary(AdjustAdhoc, dec(1200))
	require.NoError(t, err)
	require.True(t, adhoc.Amount.Equal(dec(700)))
	_, err = a.AddSecondary(AdjustAdhoc, dec(1200))
	require.ErrorIs(t, err, ErrSecondaryExists)

	refunded, err := a.AddSecondary(AdjustRefunded, dec(1200))
	require.NoError(t, err)
	require.True(t, refunded.Amount.IsZero())
}

func TestAllocator_RemoveSolePrimaryResetsChoice(t *testing.T) {
	a := NewAllocator()
	adj, err := a.ChoosePrimary(AdjustAdhoc)
	require.NoError(t, err)

	require.NoError(t, a.RemoveAdjustment(adj.ID))
	require.Empty(t, a.PrimaryKind())
	require.ErrorIs(t, a.RemoveAdjustment(adj.ID), ErrAdjustmentNotFound)
}

func TestAllocator_ValidateAdjustments(t *testing.T) {
	a := NewAllocator()
	adj, err := a.ChoosePrimary(AdjustAdhoc)
	require.NoError(t, err)

	require.ErrorIs(t, a.ValidateAdjustments(), ErrMissingCategory)
	require.NoError(t, a.UpdateAdjustment(adj.ID, AdjustmentPatch{Category: strPtr("Pricing error")}))
	require.ErrorIs(t, a.ValidateAdjustments(), ErrMissingDescription)
	require.NoError(t, a.UpdateAdjustment(adj.ID, AdjustmentPatch{Description: strPtr("Vendor quoted the wrong rate")}))
	require.NoError(t, a.ValidateAdjustments())

	refund, err := a.ChoosePrimary(AdjustRefunded)
	require.NoError(t, err)
	require.ErrorIs(t, a.ValidateAdjustments(), ErrMissingRefundDate)
	day := time.Now()
	require.NoError(t, a.UpdateAdjustment(refund.ID, AdjustmentPatch{RefundDate: &day}))
	require.NoError(t, a.ValidateAdjustments())
}

func TestAllocator_AttachProofOnlyOnRefunded(t *testing.T) {
	a := NewAllocator()
	adhoc, err := a.ChoosePrimary(AdjustAdhoc)
	require.NoError(t, err)
	require.ErrorIs(t, a.AttachProof(adhoc.ID, "slip.pdf", []byte("x")), ErrAdjustmentNotFound)

	refund, err := a.ChoosePrimary(AdjustRefunded)
	require.NoError(t, err)
	require.NoError(t, a.AttachProof(refund.ID, "slip.pdf", []byte("x")))
	require.Equal(t, "slip.pdf", a.Adjustments()[0].ProofName)
}
