package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"porevise/internal/model"
	"porevise/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type OrderItemRequest struct {
	Name       string `json:"name" binding:"required"`
	Make       string `json:"make"`
	Unit       string `json:"unit"`
	Quantity   string `json:"quantity" binding:"required"`
	Rate       string `json:"rate" binding:"required"`
	TaxPercent string `json:"tax_percent"`
}

type CreateOrderRequest struct {
	VendorID string             `json:"vendor_id" binding:"required"`
	Note     string             `json:"note"`
	Items    []OrderItemRequest `json:"items" binding:"required,min=1"`
}

type RecordPaymentRequest struct {
	Amount string `json:"amount" binding:"required"`
	Note   string `json:"note"`
}

type OrderItemResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Make        string `json:"make"`
	Unit        string `json:"unit"`
	Quantity    string `json:"quantity"`
	Rate        string `json:"rate"`
	TaxPercent  string `json:"tax_percent"`
	LineExclGst string `json:"line_excl_gst"`
	LineInclGst string `json:"line_incl_gst"`
}

type OrderResponse struct {
	ID          string              `json:"id"`
	OrderCode   string              `json:"order_code"`
	VendorID    string              `json:"vendor_id"`
	VendorName  string              `json:"vendor_name,omitempty"`
	Status      string              `json:"status"`
	TotalAmount string              `json:"total_amount"`
	AmountPaid  string              `json:"amount_paid"`
	Balance     string              `json:"balance"`
	Note        string              `json:"note,omitempty"`
	Items       []OrderItemResponse `json:"items,omitempty"`
	CreatedAt   string              `json:"created_at"`
}

type OrderFilter struct {
	VendorID string
	Status   string
	Search   string
	Page     int
	Limit    int
}

// --- Interface ---

type OrderService interface {
	CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (OrderResponse, error)
	GetOrder(ctx context.Context, id string) (OrderResponse, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]OrderResponse, int64, error)
	ApproveOrder(ctx context.Context, id, userID string) (OrderResponse, error)
	CancelOrder(ctx context.Context, id, userID string) (OrderResponse, error)
	RecordPayment(ctx context.Context, id, userID string, req RecordPaymentRequest) (OrderResponse, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
}

func NewOrderService(orderRepo repository.OrderRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager) OrderService {
	return &orderService{orderRepo: orderRepo, auditRepo: auditRepo, txManager: txManager}
}

// --- Implementation ---

var hundred = decimal.NewFromInt(100)

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s cannot be negative", field)
	}
	return d, nil
}

func (s *orderService) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (OrderResponse, error) {
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid vendor_id: %w", err)
	}

	items := make([]model.PurchaseOrderItem, 0, len(req.Items))
	total := decimal.Zero
	for _, it := range req.Items {
		qty, err := parseAmount("quantity", it.Quantity)
		if err != nil {
			return OrderResponse{}, err
		}
		rate, err := parseAmount("rate", it.Rate)
		if err != nil {
			return OrderResponse{}, err
		}
		tax := decimal.Zero
		if it.TaxPercent != "" {
			if tax, err = parseAmount("tax_percent", it.TaxPercent); err != nil {
				return OrderResponse{}, err
			}
		}

		base := qty.Mul(rate)
		total = total.Add(base.Add(base.Mul(tax).Div(hundred)))
		items = append(items, model.PurchaseOrderItem{
			Name:       it.Name,
			Make:       it.Make,
			Unit:       it.Unit,
			Quantity:   qty,
			Rate:       rate,
			TaxPercent: tax,
		})
	}

	year := time.Now().Year()
	prefix := fmt.Sprintf("PO-%d-", year)
	seq, err := s.orderRepo.CountByPrefix(ctx, prefix)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("failed to number order: %w", err)
	}

	order := model.PurchaseOrder{
		OrderCode:   fmt.Sprintf("%s%04d", prefix, seq+1),
		VendorID:    vendorID,
		Status:      model.OrderStatusDraft,
		TotalAmount: total,
		AmountPaid:  decimal.Zero,
		Note:        req.Note,
		Items:       items,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orderRepo.Create(txCtx, &order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return s.audit(txCtx, userID, model.ActionCreateOrder, order.ID.String(), order.OrderCode, map[string]interface{}{
			"vendor_id": vendorID.String(),
			"total":     total.StringFixed(4),
			"items":     len(items),
		})
	})
	if err != nil {
		return OrderResponse{}, err
	}

	return toOrderResponse(&order), nil
}

func (s *orderService) GetOrder(ctx context.Context, id string) (OrderResponse, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	order, err := s.orderRepo.FindByIDWithItems(ctx, oid)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("order not found: %w", err)
	}
	return toOrderResponse(order), nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderFilter) ([]OrderResponse, int64, error) {
	orders, total, err := s.orderRepo.List(ctx, repository.OrderListFilter{
		VendorID: filter.VendorID,
		Status:   filter.Status,
		Search:   filter.Search,
		Page:     filter.Page,
		Limit:    filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	result := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		result = append(result, toOrderResponse(&orders[i]))
	}
	return result, total, nil
}

func (s *orderService) ApproveOrder(ctx context.Context, id, userID string) (OrderResponse, error) {
	return s.transition(ctx, id, userID, model.OrderStatusDraft, model.OrderStatusApproved, model.ActionApproveOrder)
}

func (s *orderService) CancelOrder(ctx context.Context, id, userID string) (OrderResponse, error) {
	return s.transition(ctx, id, userID, model.OrderStatusDraft, model.OrderStatusCancelled, model.ActionCancelOrder)
}

func (s *orderService) transition(ctx context.Context, id, userID, from, to, action string) (OrderResponse, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	order, err := s.orderRepo.FindByIDWithItems(ctx, oid)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("order not found: %w", err)
	}
	if order.Status != from {
		return OrderResponse{}, fmt.Errorf("order is %s, expected %s", order.Status, from)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orderRepo.UpdateStatus(txCtx, oid, to); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		return s.audit(txCtx, userID, action, order.ID.String(), order.OrderCode, map[string]interface{}{
			"from": from,
			"to":   to,
		})
	})
	if err != nil {
		return OrderResponse{}, err
	}

	order.Status = to
	return toOrderResponse(order), nil
}

func (s *orderService) RecordPayment(ctx context.Context, id, userID string, req RecordPaymentRequest) (OrderResponse, error) {
	oid, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return OrderResponse{}, err
	}
	if amount.IsZero() {
		return OrderResponse{}, fmt.Errorf("amount must be greater than zero")
	}

	order, err := s.orderRepo.FindByID(ctx, oid)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("order not found: %w", err)
	}
	if order.Status != model.OrderStatusApproved {
		return OrderResponse{}, fmt.Errorf("payments are only accepted on approved orders (status is %s)", order.Status)
	}
	if order.AmountPaid.Add(amount).GreaterThan(order.TotalAmount) {
		return OrderResponse{}, fmt.Errorf("payment exceeds outstanding balance of %s", order.TotalAmount.Sub(order.AmountPaid).StringFixed(4))
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orderRepo.AddPaid(txCtx, oid, amount); err != nil {
			return fmt.Errorf("failed to apply payment: %w", err)
		}
		payment := model.PurchaseOrderPayment{
			OrderID: oid,
			Source:  model.PaymentSourceDirect,
			Amount:  amount,
			Note:    req.Note,
		}
		if err := s.orderRepo.CreatePayment(txCtx, &payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		return s.audit(txCtx, userID, model.ActionRecordPayment, order.ID.String(), order.OrderCode, map[string]interface{}{
			"amount": amount.StringFixed(4),
		})
	})
	if err != nil {
		return OrderResponse{}, err
	}

	order.AmountPaid = order.AmountPaid.Add(amount)
	return toOrderResponse(order), nil
}

func (s *orderService) audit(ctx context.Context, userID, action, entityID, entityName string, payload map[string]interface{}) error {
	var uid *uuid.UUID
	if userID != "" {
		if parsed, err := uuid.Parse(userID); err == nil {
			uid = &parsed
		}
	}
	details, _ := json.Marshal(payload)
	entry := model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(details),
	}
	if err := s.auditRepo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// --- Mapping ---

func toOrderResponse(order *model.PurchaseOrder) OrderResponse {
	resp := OrderResponse{
		ID:          order.ID.String(),
		OrderCode:   order.OrderCode,
		VendorID:    order.VendorID.String(),
		Status:      order.Status,
		TotalAmount: order.TotalAmount.StringFixed(4),
		AmountPaid:  order.AmountPaid.StringFixed(4),
		Balance:     order.TotalAmount.Sub(order.AmountPaid).StringFixed(4),
		Note:        order.Note,
		CreatedAt:   order.CreatedAt.Format(time.RFC3339),
	}
	if order.Vendor != nil {
		resp.VendorName = order.Vendor.Name
	}
	for _, it := range order.Items {
		base := it.Quantity.Mul(it.Rate)
		incl := base.Add(base.Mul(it.TaxPercent).Div(hundred))
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:          it.ID.String(),
			Name:        it.Name,
			Make:        it.Make,
			Unit:        it.Unit,
			Quantity:    it.Quantity.String(),
			Rate:        it.Rate.StringFixed(4),
			TaxPercent:  it.TaxPercent.String(),
			LineExclGst: base.StringFixed(4),
			LineInclGst: incl.StringFixed(4),
		})
	}
	return resp
}
