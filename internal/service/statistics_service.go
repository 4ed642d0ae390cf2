package service

import (
	"context"
	"time"

	"porevise/internal/model"

	"gorm.io/gorm"
)

type OrderRevisionRanking struct {
	OrderID       string  `json:"order_id"`
	OrderCode     string  `json:"order_code"`
	RevisionCount int64   `json:"revision_count"`
	NetDifference float64 `json:"net_difference"`
}

type StatisticsResponse struct {
	TimeRangeStartDate time.Time `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time `json:"time_range_end_date"`

	TotalRevisions     int64   `json:"total_revisions"`
	PaymentTermsCount  int64   `json:"payment_terms_count"`
	RefundPlanCount    int64   `json:"refund_plan_count"`
	TotalIncreaseValue float64 `json:"total_increase_value"`
	TotalDecreaseValue float64 `json:"total_decrease_value"`
	CreditsApplied     float64 `json:"credits_applied"`

	MostRevisedOrders []OrderRevisionRanking `json:"most_revised_orders"`
}

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (StatisticsResponse, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetStatistics aggregates submitted revisions into time-bracketed metrics
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (StatisticsResponse, error) {
	var response StatisticsResponse
	response.TimeRangeStartDate = startDate
	response.TimeRangeEndDate = endDate

	inRange := func(q *gorm.DB) *gorm.DB {
		return q.Where("order_revisions.created_at >= ? AND order_revisions.created_at <= ?", startDate, endDate)
	}

	// Revision counts, split by plan kind
	inRange(s.db.WithContext(ctx).Model(&model.OrderRevision{})).
		Count(&response.TotalRevisions)
	inRange(s.db.WithContext(ctx).Model(&model.OrderRevision{})).
		Where("plan_kind = ?", model.PlanKindPaymentTerms).
		Count(&response.PaymentTermsCount)
	inRange(s.db.WithContext(ctx).Model(&model.OrderRevision{})).
		Where("plan_kind = ?", model.PlanKindRefund).
		Count(&response.RefundPlanCount)

	// Total value added by positive revisions
	var increase struct {
		Value float64
	}
	inRange(s.db.WithContext(ctx).Table("order_revisions")).
		Select("COALESCE(SUM(diff_incl_gst), 0) as value").
		Where("diff_incl_gst > 0").
		Scan(&increase)
	response.TotalIncreaseValue = increase.Value

	// Total value removed by negative revisions, reported as a magnitude
	var decrease struct {
		Value float64
	}
	inRange(s.db.WithContext(ctx).Table("order_revisions")).
		Select("COALESCE(SUM(-diff_incl_gst), 0) as value").
		Where("diff_incl_gst < 0").
		Scan(&decrease)
	response.TotalDecreaseValue = decrease.Value

	// Cross-order credits pushed out by refund plans
	var credits struct {
		Value float64
	}
	s.db.WithContext(ctx).Table("purchase_order_payments").
		Select("COALESCE(SUM(amount), 0) as value").
		Where("source = ? AND created_at >= ? AND created_at <= ?", model.PaymentSourceRevisionCredit, startDate, endDate).
		Scan(&credits)
	response.CreditsApplied = credits.Value

	// Orders revised most often in the window
	var rankings []OrderRevisionRanking
	inRange(s.db.WithContext(ctx).Table("order_revisions")).
		Select("purchase_orders.id as order_id, purchase_orders.order_code as order_code, COUNT(order_revisions.id) as revision_count, COALESCE(SUM(order_revisions.diff_incl_gst), 0) as net_difference").
		Joins("JOIN purchase_orders ON purchase_orders.id = order_revisions.order_id").
		Group("purchase_orders.id, purchase_orders.order_code").
		Order("revision_count DESC").
		Limit(5).
		Scan(&rankings)
	response.MostRevisedOrders = rankings

	return response, nil
}
