package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"porevise/internal/model"
	"porevise/internal/repository"
	"porevise/internal/revision"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrSessionNotFound = errors.New("revision session not found")

// --- DTOs ---

type SessionItemResponse struct {
	Index         int     `json:"index"`
	ItemType      string  `json:"item_type"`
	OriginalRowID *string `json:"original_row_id,omitempty"`
	Name          string  `json:"name"`
	Make          string  `json:"make"`
	Unit          string  `json:"unit"`
	Quantity      string  `json:"quantity"`
	Rate          string  `json:"rate"`
	TaxPercent    string  `json:"tax_percent"`
	LineExclGst   string  `json:"line_excl_gst"`
	LineInclGst   string  `json:"line_incl_gst"`
}

type SessionSummaryResponse struct {
	TotalExclGst string `json:"total_excl_gst"`
	TotalInclGst string `json:"total_incl_gst"`
}

type SessionTermResponse struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

type SessionAdjustmentResponse struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	TargetOrderID *string `json:"target_order_id,omitempty"`
	Category      string  `json:"category,omitempty"`
	Description   string  `json:"description,omitempty"`
	Comment       string  `json:"comment,omitempty"`
	RefundDate    *string `json:"refund_date,omitempty"`
	ProofName     string  `json:"proof_name,omitempty"`
	Amount        string  `json:"amount"`
}

type SessionResponse struct {
	ID            string                      `json:"id"`
	OrderID       string                      `json:"order_id"`
	OrderCode     string                      `json:"order_code"`
	VendorID      string                      `json:"vendor_id"`
	Justification string                      `json:"justification"`
	Items         []SessionItemResponse       `json:"items"`
	Before        SessionSummaryResponse      `json:"before_summary"`
	After         SessionSummaryResponse      `json:"after_summary"`
	DiffExclGst   string                      `json:"diff_excl_gst"`
	DiffInclGst   string                      `json:"diff_incl_gst"`
	NetImpact     string                      `json:"net_impact"`
	Flow          string                      `json:"flow"`
	PrimaryKind   string                      `json:"primary_kind,omitempty"`
	Terms         []SessionTermResponse       `json:"terms"`
	Adjustments   []SessionAdjustmentResponse `json:"adjustments"`
	Remaining     string                      `json:"remaining_to_allocate"`
	ReadyToSubmit bool                        `json:"ready_to_submit"`
	CreatedAt     string                      `json:"created_at"`
}

// ItemRequest carries partial item edits; empty strings mean "unchanged".
type ItemRequest struct {
	Name       *string `json:"name"`
	Make       *string `json:"make"`
	Unit       *string `json:"unit"`
	Quantity   *string `json:"quantity"`
	Rate       *string `json:"rate"`
	TaxPercent *string `json:"tax_percent"`
}

type TermRequest struct {
	Label  *string `json:"label"`
	Amount *string `json:"amount"`
}

type AdjustmentRequest struct {
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Comment     *string `json:"comment"`
	RefundDate  *string `json:"refund_date"` // YYYY-MM-DD
	Amount      *string `json:"amount"`
}

type SelectCandidateRequest struct {
	TargetOrderID string `json:"target_order_id" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
}

type CandidateResponse struct {
	ID          string `json:"id"`
	OrderCode   string `json:"order_code"`
	TotalAmount string `json:"total_amount"`
	AmountPaid  string `json:"amount_paid"`
	Headroom    string `json:"headroom"`
	Selected    bool   `json:"selected"`
	Selectable  bool   `json:"selectable"`
}

// --- Interface ---

// SessionService drives the in-memory revision sessions. All mutations are
// serialized per session; nothing is persisted until submission.
type SessionService interface {
	StartSession(ctx context.Context, orderID string) (SessionResponse, error)
	GetSession(id string) (SessionResponse, error)
	DiscardSession(id string) error
	SetJustification(id, justification string) (SessionResponse, error)

	AddItem(id string) (SessionResponse, error)
	UpdateItem(id string, index int, req ItemRequest) (SessionResponse, error)
	RemoveItem(id string, index int) (SessionResponse, error)

	AddTerm(id string) (SessionResponse, error)
	UpdateTerm(id, termID string, req TermRequest) (SessionResponse, error)
	RemoveTerm(id, termID string) (SessionResponse, error)

	ListCandidates(ctx context.Context, id string) ([]CandidateResponse, error)
	ChoosePrimary(id, kind string) (SessionResponse, error)
	AddSecondary(id, kind string) (SessionResponse, error)
	SelectCandidate(ctx context.Context, id string, req SelectCandidateRequest) (SessionResponse, error)
	DeselectCandidate(id, targetOrderID string) (SessionResponse, error)
	UpdateAdjustment(id, adjustmentID string, req AdjustmentRequest) (SessionResponse, error)
	RemoveAdjustment(id, adjustmentID string) (SessionResponse, error)
	AttachProof(id, adjustmentID, filename string, content []byte) (SessionResponse, error)

	// Consume runs fn against the raw session under the registry lock and
	// removes the session once fn succeeds. Used by submission.
	Consume(id string, fn func(*revision.Session) error) error
}

type sessionService struct {
	orderRepo    repository.OrderRepository
	revisionRepo repository.RevisionRepository

	mu       sync.Mutex
	sessions map[uuid.UUID]*revision.Session
}

func NewSessionService(orderRepo repository.OrderRepository, revisionRepo repository.RevisionRepository) SessionService {
	return &sessionService{
		orderRepo:    orderRepo,
		revisionRepo: revisionRepo,
		sessions:     make(map[uuid.UUID]*revision.Session),
	}
}

// --- Implementation ---

func (s *sessionService) StartSession(ctx context.Context, orderID string) (SessionResponse, error) {
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid order id: %w", err)
	}

	order, err := s.orderRepo.FindByIDWithItems(ctx, oid)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("order not found: %w", err)
	}
	if order.Status != model.OrderStatusApproved {
		return SessionResponse{}, fmt.Errorf("only approved orders can be revised (status is %s)", order.Status)
	}

	// the previous revision stays final for a lock window
	lock, err := s.revisionRepo.LatestLock(ctx, oid)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("failed to check revision lock: %w", err)
	}
	if time.Now().Before(lock) {
		return SessionResponse{}, fmt.Errorf("order is locked for revision until %s", lock.Format("2006-01-02"))
	}

	originals := make([]revision.OriginalItem, 0, len(order.Items))
	for _, it := range order.Items {
		originals = append(originals, revision.OriginalItem{
			ID:         it.ID,
			Name:       it.Name,
			Make:       it.Make,
			Unit:       it.Unit,
			Quantity:   it.Quantity,
			Rate:       it.Rate,
			TaxPercent: it.TaxPercent,
		})
	}

	sess := revision.NewSession(revision.OrderSnapshot{
		OrderID:   order.ID,
		OrderCode: order.OrderCode,
		VendorID:  order.VendorID,
		Items:     originals,
	})

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return toSessionResponse(sess), nil
}

// withSession looks up a session and runs fn under the registry lock, so
// concurrent requests against one session stay ordered.
func (s *sessionService) withSession(id string, fn func(*revision.Session) error) (SessionResponse, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sid]
	if !ok {
		return SessionResponse{}, ErrSessionNotFound
	}
	if err := fn(sess); err != nil {
		return SessionResponse{}, err
	}
	return toSessionResponse(sess), nil
}

func (s *sessionService) GetSession(id string) (SessionResponse, error) {
	return s.withSession(id, func(*revision.Session) error { return nil })
}

func (s *sessionService) DiscardSession(id string) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sid]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sid)
	return nil
}

func (s *sessionService) SetJustification(id, justification string) (SessionResponse, error) {
	return s.withSession(id, func(sess *revision.Session) error {
		sess.Justification = justification
		return nil
	})
}

func (s *sessionService) AddItem(id string) (SessionResponse, error) {
	return s.withSession(id, func(sess *revision.Session) error {
		sess.AddItem()
		return nil
	})
}

func (s *sessionService) UpdateItem(id string, index int, req ItemRequest) (SessionResponse, error) {
	patch, err := toItemPatch(req)
	if err != nil {
		return SessionResponse{}, err
	}
	return s.withSession(id, func(sess *revision.Session) error {
		return sess.UpdateItem(index, patch)
	})
}

func (s *sessionService) RemoveItem(id string, index int) (SessionResponse, error) {
	return s.withSession(id, func(sess *revision.Session) error {
		return sess.RemoveItem(index)
	})
}

func (s *sessionService) AddTerm(id string) (SessionResponse, error) {
	return s.withSession(id, func(sess *revision.Session) error {
		_, err := sess.AddTerm()
		return err
	})
}

func (s *sessionService) UpdateTerm(id, termID string, req TermRequest) (SessionResponse, error) {
	tid, err := uuid.Parse(termID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid term id: %w", err)
	}
	patch := revision.TermPatch{Label: req.Label}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return SessionResponse{}, fmt.Errorf("invalid amount: %w", err)
		}
		patch.Amount = &amount
	}
	return s.withSession(id, func(sess *revision.Session) error {
		return sess.Allocator().UpdateTerm(tid, patch)
	})
}

func (s *sessionService) RemoveTerm(id, termID string) (SessionResponse, error) {
	tid, err := uuid.Parse(termID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid term id: %w", err)
	}
	return s.withSession(id, func(sess *revision.Session) error {
		return sess.Allocator().RemoveTerm(tid)
	})
}

func (s *sessionService) ListCandidates(ctx context.Context, id string) ([]CandidateResponse, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}

	s.mu.Lock()
	sess, ok := s.sessions[sid]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	vendorID := sess.Snapshot.VendorID
	orderID := sess.Snapshot.OrderID
	selected := make(map[uuid.UUID]bool)
	for _, adj := range sess.Allocator().Adjustments() {
		if adj.Kind == revision.AdjustAgainstPO && adj.TargetOrderID != nil {
			selected[*adj.TargetOrderID] = true
		}
	}
	remaining := sess.Allocator().RemainingToAdjust(sess.NetImpact())
	s.mu.Unlock()

	orders, err := s.orderRepo.ListPayableByVendor(ctx, vendorID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate orders: %w", err)
	}

	result := make([]CandidateResponse, 0, len(orders))
	for _, o := range orders {
		c := revision.CandidateOrder{ID: o.ID, OrderCode: o.OrderCode, TotalAmount: o.TotalAmount, AmountPaid: o.AmountPaid}
		isSelected := selected[o.ID]
		result = append(result, CandidateResponse{
			ID:          o.ID.String(),
			OrderCode:   o.OrderCode,
			TotalAmount: o.TotalAmount.StringFixed(4),
			AmountPaid:  o.AmountPaid.StringFixed(4),
			Headroom:    c.Headroom().StringFixed(4),
			Selected:    isSelected,
			Selectable:  isSelected || (remaining.IsPositive() && c.Headroom().IsPositive()),
		})
	}
	return result, nil
}

func (s *sessionService) ChoosePrimary(id, kind string) (SessionResponse, error) {
	return s.withSession(id, func(sess *revision.Session) error {
		_, err := sess.ChoosePrimary(kind)
		return err
	})
}

func (s *sessionService) AddSecondary(id, kind string) (SessionResponse, error) {
	return s.withSession(id, func(sess *revision.Session) error {
		_, err := sess.AddSecondary(kind)
		return err
	})
}

func (s *sessionService) SelectCandidate(ctx context.Context, id string, req SelectCandidateRequest) (SessionResponse, error) {
	targetID, err := uuid.Parse(req.TargetOrderID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid target order id: %w", err)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid amount: %w", err)
	}

	target, err := s.orderRepo.FindByID(ctx, targetID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("target order not found: %w", err)
	}
	if target.Status != model.OrderStatusApproved {
		return SessionResponse{}, fmt.Errorf("target order is not payable (status is %s)", target.Status)
	}

	candidate := revision.CandidateOrder{
		ID:          target.ID,
		OrderCode:   target.OrderCode,
		TotalAmount: target.TotalAmount,
		AmountPaid:  target.AmountPaid,
	}
	return s.withSession(id, func(sess *revision.Session) error {
		if target.VendorID != sess.Snapshot.VendorID {
			return fmt.Errorf("target order belongs to a different vendor")
		}
		_, err := sess.SelectCandidate(candidate, amount)
		return err
	})
}

func (s *sessionService) DeselectCandidate(id, targetOrderID string) (SessionResponse, error) {
	targetID, err := uuid.Parse(targetOrderID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid target order id: %w", err)
	}
	return s.withSession(id, func(sess *revision.Session) error {
		return sess.Allocator().DeselectCandidate(targetID)
	})
}

func (s *sessionService) UpdateAdjustment(id, adjustmentID string, req AdjustmentRequest) (SessionResponse, error) {
	aid, err := uuid.Parse(adjustmentID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid adjustment id: %w", err)
	}
	patch := revision.AdjustmentPatch{
		Category:    req.Category,
		Description: req.Description,
		Comment:     req.Comment,
	}
	if req.RefundDate != nil {
		day, err := time.Parse("2006-01-02", *req.RefundDate)
		if err != nil {
			return SessionResponse{}, fmt.Errorf("invalid refund_date: %w", err)
		}
		patch.RefundDate = &day
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return SessionResponse{}, fmt.Errorf("invalid amount: %w", err)
		}
		patch.Amount = &amount
	}
	return s.withSession(id, func(sess *revision.Session) error {
		return sess.Allocator().UpdateAdjustment(aid, patch)
	})
}

func (s *sessionService) RemoveAdjustment(id, adjustmentID string) (SessionResponse, error) {
	aid, err := uuid.Parse(adjustmentID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid adjustment id: %w", err)
	}
	return s.withSession(id, func(sess *revision.Session) error {
		return sess.Allocator().RemoveAdjustment(aid)
	})
}

func (s *sessionService) AttachProof(id, adjustmentID, filename string, content []byte) (SessionResponse, error) {
	aid, err := uuid.Parse(adjustmentID)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("invalid adjustment id: %w", err)
	}
	return s.withSession(id, func(sess *revision.Session) error {
		return sess.Allocator().AttachProof(aid, filename, content)
	})
}

func (s *sessionService) Consume(id string, fn func(*revision.Session) error) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sid]
	if !ok {
		return ErrSessionNotFound
	}
	if err := fn(sess); err != nil {
		return err
	}
	// submission succeeded: the session is spent
	delete(s.sessions, sid)
	return nil
}

// --- Helpers ---

func toItemPatch(req ItemRequest) (revision.ItemPatch, error) {
	patch := revision.ItemPatch{
		Name: req.Name,
		Make: req.Make,
		Unit: req.Unit,
	}
	parse := func(field string, raw *string) (*decimal.Decimal, error) {
		if raw == nil {
			return nil, nil
		}
		d, err := decimal.NewFromString(*raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("%s cannot be negative", field)
		}
		return &d, nil
	}

	var err error
	if patch.Quantity, err = parse("quantity", req.Quantity); err != nil {
		return revision.ItemPatch{}, err
	}
	if patch.Rate, err = parse("rate", req.Rate); err != nil {
		return revision.ItemPatch{}, err
	}
	if patch.TaxPercent, err = parse("tax_percent", req.TaxPercent); err != nil {
		return revision.ItemPatch{}, err
	}
	return patch, nil
}

func toSummaryResponse(sum revision.Summary) SessionSummaryResponse {
	return SessionSummaryResponse{
		TotalExclGst: sum.TotalExclGST.StringFixed(4),
		TotalInclGst: sum.TotalInclGST.StringFixed(4),
	}
}

func toSessionResponse(sess *revision.Session) SessionResponse {
	items := sess.Ledger().Items()
	itemResponses := make([]SessionItemResponse, 0, len(items))
	for i, it := range items {
		resp := SessionItemResponse{
			Index:       i,
			ItemType:    it.Type,
			Name:        it.Name,
			Make:        it.Make,
			Unit:        it.Unit,
			Quantity:    it.Quantity.String(),
			Rate:        it.Rate.StringFixed(4),
			TaxPercent:  it.TaxPercent.String(),
			LineExclGst: it.LineExclGST().StringFixed(4),
			LineInclGst: it.LineInclGST().StringFixed(4),
		}
		if it.OriginalRowID != nil {
			rid := it.OriginalRowID.String()
			resp.OriginalRowID = &rid
		}
		itemResponses = append(itemResponses, resp)
	}

	alloc := sess.Allocator()
	terms := alloc.Terms()
	termResponses := make([]SessionTermResponse, 0, len(terms))
	for _, t := range terms {
		termResponses = append(termResponses, SessionTermResponse{
			ID:     t.ID.String(),
			Label:  t.Label,
			Amount: t.Amount.StringFixed(4),
		})
	}

	adjustments := alloc.Adjustments()
	adjResponses := make([]SessionAdjustmentResponse, 0, len(adjustments))
	for _, adj := range adjustments {
		resp := SessionAdjustmentResponse{
			ID:          adj.ID.String(),
			Kind:        adj.Kind,
			Category:    adj.Category,
			Description: adj.Description,
			Comment:     adj.Comment,
			ProofName:   adj.ProofName,
			Amount:      adj.Amount.StringFixed(4),
		}
		if adj.TargetOrderID != nil {
			tid := adj.TargetOrderID.String()
			resp.TargetOrderID = &tid
		}
		if adj.RefundDate != nil {
			day := adj.RefundDate.Format("2006-01-02")
			resp.RefundDate = &day
		}
		adjResponses = append(adjResponses, resp)
	}

	diff := sess.Difference()
	net := sess.NetImpact()
	flow := sess.Flow()

	remaining := decimal.Zero
	switch flow {
	case revision.FlowPositive:
		remaining = alloc.RemainingToAllocate(net)
	case revision.FlowNegative:
		remaining = alloc.RemainingToAdjust(net)
	}

	return SessionResponse{
		ID:            sess.ID.String(),
		OrderID:       sess.Snapshot.OrderID.String(),
		OrderCode:     sess.Snapshot.OrderCode,
		VendorID:      sess.Snapshot.VendorID.String(),
		Justification: sess.Justification,
		Items:         itemResponses,
		Before:        toSummaryResponse(sess.BeforeSummary()),
		After:         toSummaryResponse(sess.AfterSummary()),
		DiffExclGst:   diff.ExclGST.StringFixed(4),
		DiffInclGst:   diff.InclGST.StringFixed(4),
		NetImpact:     net.StringFixed(4),
		Flow:          flow,
		PrimaryKind:   alloc.PrimaryKind(),
		Terms:         termResponses,
		Adjustments:   adjResponses,
		Remaining:     remaining.StringFixed(4),
		ReadyToSubmit: sess.ReadyToSubmit() == nil,
		CreatedAt:     sess.CreatedAt.Format(time.RFC3339),
	}
}
