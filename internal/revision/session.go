package revision

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSnapshot is the immutable view of the order a revision session is
// opened against.
type OrderSnapshot struct {
	OrderID   uuid.UUID
	OrderCode string
	VendorID  uuid.UUID
	Items     []OriginalItem
}

// Flow constants describing which reconciliation side is active.
const (
	FlowNone     = "NONE"
	FlowPositive = "POSITIVE"
	FlowNegative = "NEGATIVE"
)

// Session is the pure state container for one revision editing session:
// a ledger and an allocator over one order snapshot. All mutations are
// synchronous; a session is driven by a single request at a time and is
// discarded on close. Nothing here touches the database or the network.
type Session struct {
	ID            uuid.UUID
	Snapshot      OrderSnapshot
	Justification string
	CreatedAt     time.Time

	ledger   *Ledger
	alloc    *Allocator
	lastFlow string
}

// NewSession opens a session over an order snapshot.
func NewSession(snapshot OrderSnapshot) *Session {
	return &Session{
		ID:        uuid.New(),
		Snapshot:  snapshot,
		CreatedAt: time.Now(),
		ledger:    NewLedger(snapshot.Items),
		alloc:     NewAllocator(),
		lastFlow:  FlowNone,
	}
}

// Ledger exposes the session's ledger.
func (s *Session) Ledger() *Ledger {
	return s.ledger
}

// Allocator exposes the session's allocator.
func (s *Session) Allocator() *Allocator {
	return s.alloc
}

// BeforeSummary totals the original snapshot.
func (s *Session) BeforeSummary() Summary {
	return SummarizeOriginals(s.ledger.Originals())
}

// AfterSummary totals the current ledger.
func (s *Session) AfterSummary() Summary {
	return Summarize(s.ledger.Items())
}

// Difference is the after-summary minus the before-summary.
func (s *Session) Difference() Difference {
	return Diff(s.AfterSummary(), s.BeforeSummary())
}

// NetImpact is the absolute incl.-GST delta to reconcile.
func (s *Session) NetImpact() decimal.Decimal {
	return s.Difference().NetImpact()
}

// Flow reports which reconciliation side the current difference activates.
func (s *Session) Flow() string {
	d := s.Difference()
	switch {
	case d.IsPositive():
		return FlowPositive
	case d.IsNegative():
		return FlowNegative
	default:
		return FlowNone
	}
}

// syncFlow drops stale allocations after a ledger edit flips the sign of
// the difference. Allocations made under the previous sign belong to the
// other reconciliation mode and can never conserve the new delta.
func (s *Session) syncFlow() {
	flow := s.Flow()
	if flow != s.lastFlow {
		s.alloc.Reset()
		s.lastFlow = flow
	}
}

// AddItem appends a blank NEW item and returns its index.
func (s *Session) AddItem() int {
	idx := s.ledger.AddItem()
	s.syncFlow()
	return idx
}

// UpdateItem merges field edits into the item at index.
func (s *Session) UpdateItem(index int, patch ItemPatch) error {
	if err := s.ledger.UpdateItem(index, patch); err != nil {
		return err
	}
	s.syncFlow()
	return nil
}

// RemoveItem applies the removal/undo transition at index.
func (s *Session) RemoveItem(index int) error {
	if err := s.ledger.RemoveItem(index); err != nil {
		return err
	}
	s.syncFlow()
	return nil
}

// AddTerm appends a payment term. Positive flow only.
func (s *Session) AddTerm() (PaymentTerm, error) {
	if s.Flow() != FlowPositive {
		return PaymentTerm{}, ErrWrongFlow
	}
	return s.alloc.AddTerm(), nil
}

// ChoosePrimary switches the refund method. Negative flow only.
func (s *Session) ChoosePrimary(kind string) (*Adjustment, error) {
	if s.Flow() != FlowNegative {
		return nil, ErrWrongFlow
	}
	return s.alloc.ChoosePrimary(kind)
}

// AddSecondary appends a secondary refund method for the leftover amount.
func (s *Session) AddSecondary(kind string) (*Adjustment, error) {
	if s.Flow() != FlowNegative {
		return nil, ErrWrongFlow
	}
	return s.alloc.AddSecondary(kind, s.NetImpact())
}

// SelectCandidate adds a cross-PO credit against a candidate order.
func (s *Session) SelectCandidate(c CandidateOrder, amount decimal.Decimal) (*Adjustment, error) {
	if s.Flow() != FlowNegative {
		return nil, ErrWrongFlow
	}
	if c.ID == s.Snapshot.OrderID {
		return nil, ErrSelfCandidate
	}
	return s.alloc.SelectCandidate(c, amount, s.NetImpact())
}

// ReadyToSubmit runs every local validation gate: justification present, at
// least one live line item, and the conservation check for whichever flow is
// active. Kind-specific required fields are checked on the negative side.
func (s *Session) ReadyToSubmit() error {
	if s.Justification == "" {
		return ErrNoJustification
	}
	if s.ledger.ActiveCount() == 0 {
		return ErrNoItems
	}
	net := s.NetImpact()
	switch s.Flow() {
	case FlowPositive:
		if !s.alloc.TermsConserved(net) {
			return ErrNotConserved
		}
	case FlowNegative:
		if !s.alloc.AdjustmentsConserved(net) {
			return ErrNotConserved
		}
		if err := s.alloc.ValidateAdjustments(); err != nil {
			return err
		}
	}
	return nil
}
