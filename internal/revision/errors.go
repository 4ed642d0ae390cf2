package revision

import "errors"

var (
	ErrIndexOutOfRange    = errors.New("item index out of range")
	ErrItemDeleted        = errors.New("cannot edit a deleted item")
	ErrWrongFlow          = errors.New("operation not valid for the current difference sign")
	ErrLastPaymentTerm    = errors.New("at least one payment term must remain")
	ErrTermNotFound       = errors.New("payment term not found")
	ErrAdjustmentNotFound = errors.New("adjustment not found")
	ErrAgainstPOActive    = errors.New("cross-PO credits are selected; remove them before switching method")
	ErrNotAgainstPOMode   = errors.New("secondary methods are only available in cross-PO credit mode")
	ErrSecondaryExists    = errors.New("that secondary method is already added")
	ErrCandidateSelected  = errors.New("candidate order is already selected")
	ErrNothingToAdjust    = errors.New("nothing left to adjust")
	ErrExceedsHeadroom    = errors.New("amount exceeds the candidate order's payable headroom")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrSelfCandidate      = errors.New("cannot allocate credit against the order under revision")
	ErrNoJustification    = errors.New("justification is required")
	ErrNoItems            = errors.New("revision must keep at least one line item")
	ErrNotConserved       = errors.New("allocated amounts do not cover the revision difference")
	ErrMissingCategory    = errors.New("ad-hoc adjustment requires a category")
	ErrMissingDescription = errors.New("ad-hoc adjustment requires a description")
	ErrMissingRefundDate  = errors.New("vendor refund requires a refund date")
)
