package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"porevise/internal/model"
	"porevise/internal/repository"
	"porevise/internal/revision"
	ws "porevise/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type SubmitRevisionRequest struct {
	Justification string `json:"justification"`
}

type RevisionItemResponse struct {
	ID            string  `json:"id"`
	ItemType      string  `json:"item_type"`
	OriginalRowID *string `json:"original_row_id,omitempty"`

	Name       string `json:"name"`
	Make       string `json:"make"`
	Unit       string `json:"unit"`
	Quantity   string `json:"quantity"`
	Rate       string `json:"rate"`
	TaxPercent string `json:"tax_percent"`
	Amount     string `json:"amount"`

	OrigName       *string `json:"orig_name,omitempty"`
	OrigMake       *string `json:"orig_make,omitempty"`
	OrigUnit       *string `json:"orig_unit,omitempty"`
	OrigQuantity   *string `json:"orig_quantity,omitempty"`
	OrigRate       *string `json:"orig_rate,omitempty"`
	OrigTaxPercent *string `json:"orig_tax_percent,omitempty"`
	OrigAmount     *string `json:"orig_amount,omitempty"`
}

type RevisionTermResponse struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

type RevisionAdjustmentResponse struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	TargetOrderID  *string `json:"target_order_id,omitempty"`
	Category       string  `json:"category,omitempty"`
	Description    string  `json:"description,omitempty"`
	Comment        string  `json:"comment,omitempty"`
	RefundDate     *string `json:"refund_date,omitempty"`
	ProofReference string  `json:"proof_reference,omitempty"`
	Amount         string  `json:"amount"`
}

type RevisionResponse struct {
	ID            string                       `json:"id"`
	OrderID       string                       `json:"order_id"`
	OrderCode     string                       `json:"order_code,omitempty"`
	RevisionNo    int                          `json:"revision_no"`
	Justification string                       `json:"justification"`
	DiffExclGst   string                       `json:"diff_excl_gst"`
	DiffInclGst   string                       `json:"diff_incl_gst"`
	PlanKind      string                       `json:"plan_kind,omitempty"`
	SubmittedBy   *string                      `json:"submitted_by,omitempty"`
	SubmitterName string                       `json:"submitter_name,omitempty"`
	LockedUntil   string                       `json:"locked_until"`
	Items         []RevisionItemResponse       `json:"items,omitempty"`
	Terms         []RevisionTermResponse       `json:"terms,omitempty"`
	Adjustments   []RevisionAdjustmentResponse `json:"adjustments,omitempty"`
	CreatedAt     string                       `json:"created_at"`
}

// --- Interface ---

// RevisionService finalizes sessions into persisted revisions and serves
// the submitted history.
type RevisionService interface {
	Submit(ctx context.Context, sessionID string, userID string, req SubmitRevisionRequest) (RevisionResponse, error)
	GetRevision(ctx context.Context, id string) (RevisionResponse, error)
	ListRevisions(ctx context.Context, page, limit int) ([]RevisionResponse, int64, error)
	ListByOrder(ctx context.Context, orderID string) ([]RevisionResponse, error)
}

type revisionService struct {
	sessions     SessionService
	revisionRepo repository.RevisionRepository
	orderRepo    repository.OrderRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	uploader     revision.Uploader
	hub          *ws.Hub
}

func NewRevisionService(
	sessions SessionService,
	revisionRepo repository.RevisionRepository,
	orderRepo repository.OrderRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	uploader revision.Uploader,
	hub *ws.Hub,
) RevisionService {
	return &revisionService{
		sessions:     sessions,
		revisionRepo: revisionRepo,
		orderRepo:    orderRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		uploader:     uploader,
		hub:          hub,
	}
}

// --- Implementation ---

// Submit finalizes a session: validates it, assembles the payload, and
// persists the revision together with any cross-order credits in one
// transaction. The session is only removed from the registry when the
// whole transaction commits, so a failed submit can be retried as-is.
func (s *revisionService) Submit(ctx context.Context, sessionID string, userID string, req SubmitRevisionRequest) (RevisionResponse, error) {
	var submitter *uuid.UUID
	if userID != "" {
		if parsed, err := uuid.Parse(userID); err == nil {
			submitter = &parsed
		}
	}

	var saved model.OrderRevision
	err := s.sessions.Consume(sessionID, func(sess *revision.Session) error {
		if req.Justification != "" {
			sess.Justification = req.Justification
		}
		if err := sess.ReadyToSubmit(); err != nil {
			return err
		}

		payload := revision.Assemble(ctx, sess, s.uploader)

		count, err := s.revisionRepo.CountByOrder(ctx, sess.Snapshot.OrderID)
		if err != nil {
			return fmt.Errorf("failed to number revision: %w", err)
		}

		header := model.OrderRevision{
			OrderID:       payload.OrderID,
			RevisionNo:    int(count) + 1,
			Justification: payload.Justification,
			DiffExclGST:   sess.Difference().ExclGST,
			DiffInclGST:   payload.TotalDifference,
			SubmittedBy:   submitter,
			LockedUntil:   time.Now().AddDate(0, 0, model.RevisionLockDays),
		}
		if payload.Plan != nil {
			header.PlanKind = payload.Plan.Kind
		}

		txErr := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.revisionRepo.Create(txCtx, &header); err != nil {
				return fmt.Errorf("failed to create revision: %w", err)
			}
			if err := s.revisionRepo.CreateItems(txCtx, revisionItemRows(header.ID, payload.Items)); err != nil {
				return fmt.Errorf("failed to store revision items: %w", err)
			}

			if payload.Plan != nil {
				switch payload.Plan.Kind {
				case model.PlanKindPaymentTerms:
					if err := s.revisionRepo.CreateTerms(txCtx, termRows(header.ID, payload.Plan.Terms)); err != nil {
						return fmt.Errorf("failed to store payment terms: %w", err)
					}
				case model.PlanKindRefund:
					if err := s.revisionRepo.CreateAdjustments(txCtx, adjustmentRows(header.ID, payload.Plan.Details)); err != nil {
						return fmt.Errorf("failed to store refund adjustments: %w", err)
					}
					if err := s.applyCredits(txCtx, header.ID, payload.Plan.Details); err != nil {
						return err
					}
				}
			}

			details, _ := json.Marshal(map[string]interface{}{
				"order_id":    payload.OrderID.String(),
				"revision_no": header.RevisionNo,
				"diff":        payload.TotalDifference.StringFixed(4),
				"plan_kind":   header.PlanKind,
			})
			audit := model.AuditLog{
				UserID:     submitter,
				Action:     model.ActionSubmitRevision,
				EntityID:   header.ID.String(),
				EntityName: sess.Snapshot.OrderCode,
				Details:    string(details),
			}
			if err := s.auditRepo.Log(txCtx, &audit); err != nil {
				return fmt.Errorf("failed to write audit log: %w", err)
			}
			return nil
		})
		if txErr != nil {
			return txErr
		}

		saved = header
		return nil
	})
	if err != nil {
		return RevisionResponse{}, err
	}

	s.notifySubmitted(&saved)

	full, err := s.revisionRepo.FindByID(ctx, saved.ID)
	if err != nil {
		// already committed; fall back to the header we have
		return toRevisionResponse(&saved), nil
	}
	return toRevisionResponse(full), nil
}

// applyCredits turns AGAINST_PO adjustments into payment records on the
// target orders inside the submission transaction.
func (s *revisionService) applyCredits(ctx context.Context, revisionID uuid.UUID, details []revision.PlanAdjustment) error {
	for _, adj := range details {
		if adj.Kind != revision.AdjustAgainstPO || adj.TargetOrderID == nil {
			continue
		}
		if err := s.orderRepo.AddPaid(ctx, *adj.TargetOrderID, adj.Amount); err != nil {
			return fmt.Errorf("failed to credit order %s: %w", adj.TargetOrderID, err)
		}
		payment := model.PurchaseOrderPayment{
			OrderID:    *adj.TargetOrderID,
			Source:     model.PaymentSourceRevisionCredit,
			RevisionID: &revisionID,
			Amount:     adj.Amount,
		}
		if err := s.orderRepo.CreatePayment(ctx, &payment); err != nil {
			return fmt.Errorf("failed to record credit payment: %w", err)
		}
	}
	return nil
}

func (s *revisionService) notifySubmitted(rev *model.OrderRevision) {
	if s.hub == nil {
		return
	}
	s.hub.Notify("revision_submitted", map[string]interface{}{
		"revision_id": rev.ID.String(),
		"order_id":    rev.OrderID.String(),
		"revision_no": rev.RevisionNo,
		"diff":        rev.DiffInclGST.StringFixed(4),
		"plan_kind":   rev.PlanKind,
	})
}

func (s *revisionService) GetRevision(ctx context.Context, id string) (RevisionResponse, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return RevisionResponse{}, fmt.Errorf("invalid revision id: %w", err)
	}
	rev, err := s.revisionRepo.FindByID(ctx, rid)
	if err != nil {
		return RevisionResponse{}, fmt.Errorf("revision not found: %w", err)
	}
	return toRevisionResponse(rev), nil
}

func (s *revisionService) ListRevisions(ctx context.Context, page, limit int) ([]RevisionResponse, int64, error) {
	revisions, total, err := s.revisionRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list revisions: %w", err)
	}
	result := make([]RevisionResponse, 0, len(revisions))
	for i := range revisions {
		result = append(result, toRevisionResponse(&revisions[i]))
	}
	return result, total, nil
}

func (s *revisionService) ListByOrder(ctx context.Context, orderID string) ([]RevisionResponse, error) {
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return nil, fmt.Errorf("invalid order id: %w", err)
	}
	revisions, err := s.revisionRepo.ListByOrder(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	result := make([]RevisionResponse, 0, len(revisions))
	for i := range revisions {
		result = append(result, toRevisionResponse(&revisions[i]))
	}
	return result, nil
}

// --- Row builders ---

func revisionItemRows(revisionID uuid.UUID, diffs []revision.ItemDiff) []model.OrderRevisionItem {
	rows := make([]model.OrderRevisionItem, 0, len(diffs))
	for _, diff := range diffs {
		row := model.OrderRevisionItem{
			RevisionID:    revisionID,
			ItemType:      diff.ItemType,
			OriginalRowID: diff.OriginalRowID,
			Name:          diff.Revised.Name,
			Make:          diff.Revised.Make,
			Unit:          diff.Revised.Unit,
			Quantity:      diff.Revised.Quantity,
			Rate:          diff.Revised.Rate,
			TaxPercent:    diff.Revised.TaxPercent,
			Amount:        diff.Revised.Amount,
		}
		if o := diff.Original; o != nil {
			row.OrigName = &o.Name
			row.OrigMake = &o.Make
			row.OrigUnit = &o.Unit
			row.OrigQuantity = &o.Quantity
			row.OrigRate = &o.Rate
			row.OrigTaxPercent = &o.TaxPercent
			row.OrigAmount = &o.Amount
		}
		rows = append(rows, row)
	}
	return rows
}

func termRows(revisionID uuid.UUID, terms []revision.PaymentTerm) []model.RevisionPaymentTerm {
	rows := make([]model.RevisionPaymentTerm, 0, len(terms))
	for _, t := range terms {
		rows = append(rows, model.RevisionPaymentTerm{
			RevisionID: revisionID,
			Label:      t.Label,
			Amount:     t.Amount,
		})
	}
	return rows
}

func adjustmentRows(revisionID uuid.UUID, details []revision.PlanAdjustment) []model.RevisionAdjustment {
	rows := make([]model.RevisionAdjustment, 0, len(details))
	for _, adj := range details {
		rows = append(rows, model.RevisionAdjustment{
			RevisionID:     revisionID,
			Kind:           adj.Kind,
			TargetOrderID:  adj.TargetOrderID,
			Category:       adj.Category,
			Description:    adj.Description,
			Comment:        adj.Comment,
			RefundDate:     adj.RefundDate,
			ProofReference: adj.ProofReference,
			Amount:         adj.Amount,
		})
	}
	return rows
}

// --- Mapping ---

func decStrPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(4)
	return &s
}

func toRevisionResponse(rev *model.OrderRevision) RevisionResponse {
	resp := RevisionResponse{
		ID:            rev.ID.String(),
		OrderID:       rev.OrderID.String(),
		RevisionNo:    rev.RevisionNo,
		Justification: rev.Justification,
		DiffExclGst:   rev.DiffExclGST.StringFixed(4),
		DiffInclGst:   rev.DiffInclGST.StringFixed(4),
		PlanKind:      rev.PlanKind,
		LockedUntil:   rev.LockedUntil.Format(time.RFC3339),
		CreatedAt:     rev.CreatedAt.Format(time.RFC3339),
	}
	if rev.Order != nil {
		resp.OrderCode = rev.Order.OrderCode
	}
	if rev.SubmittedBy != nil {
		sid := rev.SubmittedBy.String()
		resp.SubmittedBy = &sid
	}
	if rev.Submitter != nil {
		resp.SubmitterName = rev.Submitter.Username
	}

	for _, it := range rev.Items {
		row := RevisionItemResponse{
			ID:             it.ID.String(),
			ItemType:       it.ItemType,
			Name:           it.Name,
			Make:           it.Make,
			Unit:           it.Unit,
			Quantity:       it.Quantity.String(),
			Rate:           it.Rate.StringFixed(4),
			TaxPercent:     it.TaxPercent.String(),
			Amount:         it.Amount.StringFixed(4),
			OrigName:       it.OrigName,
			OrigMake:       it.OrigMake,
			OrigUnit:       it.OrigUnit,
			OrigQuantity:   decStrPtr(it.OrigQuantity),
			OrigRate:       decStrPtr(it.OrigRate),
			OrigTaxPercent: decStrPtr(it.OrigTaxPercent),
			OrigAmount:     decStrPtr(it.OrigAmount),
		}
		if it.OriginalRowID != nil {
			rid := it.OriginalRowID.String()
			row.OriginalRowID = &rid
		}
		resp.Items = append(resp.Items, row)
	}

	for _, t := range rev.Terms {
		resp.Terms = append(resp.Terms, RevisionTermResponse{
			ID:     t.ID.String(),
			Label:  t.Label,
			Amount: t.Amount.StringFixed(4),
		})
	}

	for _, adj := range rev.Adjustments {
		row := RevisionAdjustmentResponse{
			ID:             adj.ID.String(),
			Kind:           adj.Kind,
			Category:       adj.Category,
			Description:    adj.Description,
			Comment:        adj.Comment,
			ProofReference: adj.ProofReference,
			Amount:         adj.Amount.StringFixed(4),
		}
		if adj.TargetOrderID != nil {
			tid := adj.TargetOrderID.String()
			row.TargetOrderID = &tid
		}
		if adj.RefundDate != nil {
			day := adj.RefundDate.Format("2006-01-02")
			row.RefundDate = &day
		}
		resp.Adjustments = append(resp.Adjustments, row)
	}

	return resp
}
