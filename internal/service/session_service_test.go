package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"porevise/internal/model"
	"porevise/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// --- In-memory fakes ---

type fakeOrderRepo struct {
	orders      map[uuid.UUID]*model.PurchaseOrder
	payments    []model.PurchaseOrderPayment
	failAddPaid bool
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*model.PurchaseOrder)}
}

func (r *fakeOrderRepo) Create(_ context.Context, order *model.PurchaseOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := *order
	return &copied, nil
}

func (r *fakeOrderRepo) FindByIDWithItems(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeOrderRepo) List(_ context.Context, _ repository.OrderListFilter) ([]model.PurchaseOrder, int64, error) {
	result := make([]model.PurchaseOrder, 0, len(r.orders))
	for _, o := range r.orders {
		result = append(result, *o)
	}
	return result, int64(len(result)), nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	order, ok := r.orders[id]
	if !ok {
		return errors.New("record not found")
	}
	order.Status = status
	return nil
}

func (r *fakeOrderRepo) AddPaid(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if r.failAddPaid {
		return errors.New("deadlock detected")
	}
	order, ok := r.orders[id]
	if !ok {
		return errors.New("record not found")
	}
	order.AmountPaid = order.AmountPaid.Add(amount)
	return nil
}

func (r *fakeOrderRepo) CreatePayment(_ context.Context, payment *model.PurchaseOrderPayment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	r.payments = append(r.payments, *payment)
	return nil
}

func (r *fakeOrderRepo) ListPayableByVendor(_ context.Context, vendorID, excludeOrderID uuid.UUID) ([]model.PurchaseOrder, error) {
	var result []model.PurchaseOrder
	for _, o := range r.orders {
		if o.VendorID == vendorID && o.Status == model.OrderStatusApproved && o.ID != excludeOrderID {
			result = append(result, *o)
		}
	}
	return result, nil
}

func (r *fakeOrderRepo) CountByPrefix(_ context.Context, _ string) (int64, error) {
	return int64(len(r.orders)), nil
}

type fakeRevisionRepo struct {
	revisions   map[uuid.UUID]*model.OrderRevision
	items       []model.OrderRevisionItem
	terms       []model.RevisionPaymentTerm
	adjustments []model.RevisionAdjustment
	lock        time.Time
	failCreate  bool
}

func newFakeRevisionRepo() *fakeRevisionRepo {
	return &fakeRevisionRepo{revisions: make(map[uuid.UUID]*model.OrderRevision)}
}

func (r *fakeRevisionRepo) Create(_ context.Context, revision *model.OrderRevision) error {
	if r.failCreate {
		return errors.New("connection reset")
	}
	if revision.ID == uuid.Nil {
		revision.ID = uuid.New()
	}
	copied := *revision
	r.revisions[revision.ID] = &copied
	return nil
}

func (r *fakeRevisionRepo) CreateItems(_ context.Context, items []model.OrderRevisionItem) error {
	r.items = append(r.items, items...)
	return nil
}

func (r *fakeRevisionRepo) CreateTerms(_ context.Context, terms []model.RevisionPaymentTerm) error {
	r.terms = append(r.terms, terms...)
	return nil
}

func (r *fakeRevisionRepo) CreateAdjustments(_ context.Context, adjustments []model.RevisionAdjustment) error {
	r.adjustments = append(r.adjustments, adjustments...)
	return nil
}

func (r *fakeRevisionRepo) FindByID(_ context.Context, id uuid.UUID) (*model.OrderRevision, error) {
	rev, ok := r.revisions[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := *rev
	for _, it := range r.items {
		if it.RevisionID == id {
			copied.Items = append(copied.Items, it)
		}
	}
	for _, t := range r.terms {
		if t.RevisionID == id {
			copied.Terms = append(copied.Terms, t)
		}
	}
	for _, adj := range r.adjustments {
		if adj.RevisionID == id {
			copied.Adjustments = append(copied.Adjustments, adj)
		}
	}
	return &copied, nil
}

func (r *fakeRevisionRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.OrderRevision, error) {
	var result []model.OrderRevision
	for id, rev := range r.revisions {
		if rev.OrderID == orderID {
			full, _ := r.FindByID(ctx, id)
			result = append(result, *full)
		}
	}
	return result, nil
}

func (r *fakeRevisionRepo) List(_ context.Context, _, _ int) ([]model.OrderRevision, int64, error) {
	result := make([]model.OrderRevision, 0, len(r.revisions))
	for _, rev := range r.revisions {
		result = append(result, *rev)
	}
	return result, int64(len(result)), nil
}

func (r *fakeRevisionRepo) CountByOrder(_ context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	for _, rev := range r.revisions {
		if rev.OrderID == orderID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRevisionRepo) LatestLock(_ context.Context, _ uuid.UUID) (time.Time, error) {
	return r.lock, nil
}

type fakeAuditRepo struct {
	entries []model.AuditLog
}

func (r *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) List(_ context.Context, _ repository.AuditListFilter) ([]model.AuditLog, int64, error) {
	return r.entries, int64(len(r.entries)), nil
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, name string, _ []byte) (string, error) {
	return "proofs/" + name, nil
}

// --- Fixtures ---

type revisionEnv struct {
	orders    *fakeOrderRepo
	revisions *fakeRevisionRepo
	audit     *fakeAuditRepo
	sessions  SessionService
	service   RevisionService
}

func newRevisionEnv() *revisionEnv {
	orders := newFakeOrderRepo()
	revisions := newFakeRevisionRepo()
	audit := &fakeAuditRepo{}
	sessions := NewSessionService(orders, revisions)
	svc := NewRevisionService(sessions, revisions, orders, audit, fakeTxManager{}, fakeUploader{}, nil)
	return &revisionEnv{orders: orders, revisions: revisions, audit: audit, sessions: sessions, service: svc}
}

// seedOrder stores an approved order with one line of qty 10 at the given
// rate and no tax.
func (e *revisionEnv) seedOrder(vendorID uuid.UUID, code string, rate int64) *model.PurchaseOrder {
	qty := decimal.NewFromInt(10)
	rateDec := decimal.NewFromInt(rate)
	order := &model.PurchaseOrder{
		ID:          uuid.New(),
		OrderCode:   code,
		VendorID:    vendorID,
		Status:      model.OrderStatusApproved,
		TotalAmount: qty.Mul(rateDec),
		AmountPaid:  decimal.Zero,
		Items: []model.PurchaseOrderItem{
			{ID: uuid.New(), Name: "Steel Rod", Make: "Tata", Unit: "kg", Quantity: qty, Rate: rateDec, TaxPercent: decimal.Zero},
		},
	}
	e.orders.orders[order.ID] = order
	return order
}

func strp(s string) *string { return &s }

// --- Session lifecycle ---

func TestStartSessionRequiresApprovedOrder(t *testing.T) {
	env := newRevisionEnv()
	vendor := uuid.New()
	order := env.seedOrder(vendor, "PO-2026-0001", 100)
	order.Status = model.OrderStatusDraft

	_, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.ErrorContains(t, err, "only approved orders")
}

func TestStartSessionRespectsRevisionLock(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)
	env.revisions.lock = time.Now().Add(48 * time.Hour)

	_, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.ErrorContains(t, err, "locked for revision")

	env.revisions.lock = time.Now().Add(-time.Hour)
	_, err = env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
}

func TestItemEditsMoveTheDifference(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
	require.Equal(t, "NONE", sess.Flow)
	require.Equal(t, "1000.0000", sess.Before.TotalInclGst)

	sess, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("180")})
	require.NoError(t, err)
	require.Equal(t, "POSITIVE", sess.Flow)
	require.Equal(t, "1800.0000", sess.After.TotalInclGst)
	require.Equal(t, "800.0000", sess.NetImpact)
	require.Equal(t, "REVISED", sess.Items[0].ItemType)
}

func TestUpdateItemRejectsMalformedNumbers(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)

	_, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("12x")})
	require.ErrorContains(t, err, "invalid rate")

	_, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Quantity: strp("-4")})
	require.ErrorContains(t, err, "cannot be negative")
}

func TestDiscardSessionForgetsIt(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)

	require.NoError(t, env.sessions.DiscardSession(sess.ID))
	_, err = env.sessions.GetSession(sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

// --- Candidates ---

func TestListCandidatesReportsHeadroom(t *testing.T) {
	env := newRevisionEnv()
	vendor := uuid.New()
	order := env.seedOrder(vendor, "PO-2026-0001", 100)
	target := env.seedOrder(vendor, "PO-2026-0002", 100)
	target.AmountPaid = decimal.NewFromInt(400)
	// fully paid orders have no headroom
	exhausted := env.seedOrder(vendor, "PO-2026-0003", 100)
	exhausted.AmountPaid = decimal.NewFromInt(1000)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
	_, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("40")})
	require.NoError(t, err)
	_, err = env.sessions.ChoosePrimary(sess.ID, "AGAINST_PO")
	require.NoError(t, err)

	candidates, err := env.sessions.ListCandidates(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	byCode := make(map[string]CandidateResponse, len(candidates))
	for _, c := range candidates {
		byCode[c.OrderCode] = c
	}
	require.Equal(t, "600.0000", byCode["PO-2026-0002"].Headroom)
	require.True(t, byCode["PO-2026-0002"].Selectable)
	require.Equal(t, "0.0000", byCode["PO-2026-0003"].Headroom)
	require.False(t, byCode["PO-2026-0003"].Selectable)
}

func TestSelectCandidateRejectsOtherVendors(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)
	foreign := env.seedOrder(uuid.New(), "PO-2026-0002", 100)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
	_, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("40")})
	require.NoError(t, err)
	_, err = env.sessions.ChoosePrimary(sess.ID, "AGAINST_PO")
	require.NoError(t, err)

	_, err = env.sessions.SelectCandidate(context.Background(), sess.ID, SelectCandidateRequest{
		TargetOrderID: foreign.ID.String(),
		Amount:        "600",
	})
	require.ErrorContains(t, err, "different vendor")
}

// --- Submission ---

func TestSubmitPaymentTermsPlan(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
	sess, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("180")})
	require.NoError(t, err)

	sess, err = env.sessions.AddTerm(sess.ID)
	require.NoError(t, err)
	sess, err = env.sessions.UpdateTerm(sess.ID, sess.Terms[0].ID, TermRequest{
		Label:  strp("Balance on delivery"),
		Amount: strp("800"),
	})
	require.NoError(t, err)
	require.False(t, sess.ReadyToSubmit) // justification still missing

	sess, err = env.sessions.SetJustification(sess.ID, "Vendor rate increase on steel")
	require.NoError(t, err)
	require.True(t, sess.ReadyToSubmit)

	submitter := uuid.New()
	rev, err := env.service.Submit(context.Background(), sess.ID, submitter.String(), SubmitRevisionRequest{})
	require.NoError(t, err)

	require.Equal(t, 1, rev.RevisionNo)
	require.Equal(t, model.PlanKindPaymentTerms, rev.PlanKind)
	require.Equal(t, "800.0000", rev.DiffInclGst)
	require.Len(t, rev.Terms, 1)
	require.Equal(t, "Balance on delivery", rev.Terms[0].Label)

	// item rows carry both sides of the diff
	require.Len(t, env.revisions.items, 1)
	row := env.revisions.items[0]
	require.Equal(t, model.RevisionItemRevised, row.ItemType)
	require.Equal(t, "180", row.Rate.String())
	require.NotNil(t, row.OrigRate)
	require.Equal(t, "100", row.OrigRate.String())

	// the revision locks the order for another week
	saved := env.revisions.revisions[uuid.MustParse(rev.ID)]
	require.WithinDuration(t, time.Now().AddDate(0, 0, model.RevisionLockDays), saved.LockedUntil, time.Minute)

	// audit trail and session consumption
	require.Len(t, env.audit.entries, 1)
	require.Equal(t, model.ActionSubmitRevision, env.audit.entries[0].Action)
	_, err = env.sessions.GetSession(sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitAppliesCreditsToTargetOrders(t *testing.T) {
	env := newRevisionEnv()
	vendor := uuid.New()
	order := env.seedOrder(vendor, "PO-2026-0001", 100)
	target := env.seedOrder(vendor, "PO-2026-0002", 100)
	target.AmountPaid = decimal.NewFromInt(400)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
	_, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("40")})
	require.NoError(t, err)
	_, err = env.sessions.ChoosePrimary(sess.ID, "AGAINST_PO")
	require.NoError(t, err)
	_, err = env.sessions.SelectCandidate(context.Background(), sess.ID, SelectCandidateRequest{
		TargetOrderID: target.ID.String(),
		Amount:        "600",
	})
	require.NoError(t, err)
	_, err = env.sessions.SetJustification(sess.ID, "Quantity negotiated down")
	require.NoError(t, err)

	rev, err := env.service.Submit(context.Background(), sess.ID, "", SubmitRevisionRequest{})
	require.NoError(t, err)
	require.Equal(t, model.PlanKindRefund, rev.PlanKind)
	require.Equal(t, "-600.0000", rev.DiffInclGst)

	require.Equal(t, "1000", env.orders.orders[target.ID].AmountPaid.String())
	require.Len(t, env.orders.payments, 1)
	payment := env.orders.payments[0]
	require.Equal(t, model.PaymentSourceRevisionCredit, payment.Source)
	require.Equal(t, target.ID, payment.OrderID)
	require.NotNil(t, payment.RevisionID)
	require.Equal(t, rev.ID, payment.RevisionID.String())
}

func TestSubmitResolvesRefundProof(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
	_, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("40")})
	require.NoError(t, err)
	sess, err = env.sessions.ChoosePrimary(sess.ID, "REFUNDED")
	require.NoError(t, err)
	adjID := sess.Adjustments[0].ID
	_, err = env.sessions.UpdateAdjustment(sess.ID, adjID, AdjustmentRequest{
		RefundDate: strp("2026-08-20"),
		Amount:     strp("600"),
	})
	require.NoError(t, err)
	_, err = env.sessions.AttachProof(sess.ID, adjID, "neft-slip.pdf", []byte("slip"))
	require.NoError(t, err)
	_, err = env.sessions.SetJustification(sess.ID, "Vendor refunded by bank transfer")
	require.NoError(t, err)

	rev, err := env.service.Submit(context.Background(), sess.ID, "", SubmitRevisionRequest{})
	require.NoError(t, err)
	require.Len(t, rev.Adjustments, 1)
	require.Equal(t, "proofs/neft-slip.pdf", rev.Adjustments[0].ProofReference)
	require.Equal(t, "2026-08-20", *rev.Adjustments[0].RefundDate)
}

func TestSubmitRejectsUnbalancedPlan(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
	_, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("180")})
	require.NoError(t, err)
	_, err = env.sessions.SetJustification(sess.ID, "Rate increase")
	require.NoError(t, err)

	_, err = env.service.Submit(context.Background(), sess.ID, "", SubmitRevisionRequest{})
	require.Error(t, err)

	// session survives the failed submit
	_, err = env.sessions.GetSession(sess.ID)
	require.NoError(t, err)
}

func TestSubmitFailureKeepsSession(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)
	env.revisions.failCreate = true

	sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
	require.NoError(t, err)
	sess, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp("180")})
	require.NoError(t, err)
	sess, err = env.sessions.AddTerm(sess.ID)
	require.NoError(t, err)
	_, err = env.sessions.UpdateTerm(sess.ID, sess.Terms[0].ID, TermRequest{Amount: strp("800")})
	require.NoError(t, err)
	_, err = env.sessions.SetJustification(sess.ID, "Rate increase")
	require.NoError(t, err)

	_, err = env.service.Submit(context.Background(), sess.ID, "", SubmitRevisionRequest{})
	require.ErrorContains(t, err, "failed to create revision")

	refreshed, err := env.sessions.GetSession(sess.ID)
	require.NoError(t, err)
	require.True(t, refreshed.ReadyToSubmit)
}

func TestRevisionNumbersIncrementPerOrder(t *testing.T) {
	env := newRevisionEnv()
	order := env.seedOrder(uuid.New(), "PO-2026-0001", 100)

	submitOnce := func(rate string) RevisionResponse {
		env.revisions.lock = time.Time{}
		sess, err := env.sessions.StartSession(context.Background(), order.ID.String())
		require.NoError(t, err)
		sess, err = env.sessions.UpdateItem(sess.ID, 0, ItemRequest{Rate: strp(rate)})
		require.NoError(t, err)
		sess, err = env.sessions.AddTerm(sess.ID)
		require.NoError(t, err)
		_, err = env.sessions.UpdateTerm(sess.ID, sess.Terms[0].ID, TermRequest{Amount: strp(sess.NetImpact)})
		require.NoError(t, err)
		_, err = env.sessions.SetJustification(sess.ID, fmt.Sprintf("rate moved to %s", rate))
		require.NoError(t, err)
		rev, err := env.service.Submit(context.Background(), sess.ID, "", SubmitRevisionRequest{})
		require.NoError(t, err)
		return rev
	}

	first := submitOnce("150")
	second := submitOnce("210")
	require.Equal(t, 1, first.RevisionNo)
	require.Equal(t, 2, second.RevisionNo)
}
