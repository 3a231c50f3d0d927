package service

import (
	"context"
	"strings"
	"time"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
	"food-order-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReturnService evaluates return requests on delivered orders and drives
// the refund state machine.
type ReturnService struct {
	orders   OrderStore
	refunds  RefundStore
	notifier Notifier
	events   EventPublisher
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewReturnService(orders OrderStore, refunds RefundStore, notifier Notifier, events EventPublisher, window time.Duration) *ReturnService {
	return &ReturnService{
		orders:   orders,
		refunds:  refunds,
		notifier: notifier,
		events:   events,
		window:   window,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

type ReturnInput struct {
	Reason      models.ReturnReason `json:"reason" binding:"required"`
	Description string              `json:"description" binding:"max=1000"`
}

// ReturnWindowOpen reports whether a return requested at now is still in
// time. The window is inclusive: a request at exactly deliveredAt+window is
// accepted. Orders without deliveredAt fall back to their last update.
func ReturnWindowOpen(o *models.Order, window time.Duration, now time.Time) bool {
	start := o.UpdatedAt
	if o.DeliveryInfo.DeliveredAt != nil {
		start = *o.DeliveryInfo.DeliveredAt
	}
	return !now.After(start.Add(window))
}

// RequestReturn records the first return request on a delivered order.
func (s *ReturnService) RequestReturn(ctx context.Context, actor Actor, orderNumber string, in *ReturnInput) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.RequestReturn")
	defer span.End()

	if !in.Reason.Valid() {
		return nil, apperr.Validation("return.request", "unknown return reason %q", in.Reason)
	}

	order, _, err := updateOrder(ctx, s.orders, orderNumber, func(o *models.Order) error {
		if !actor.canSee(o) {
			return apperr.NotFound("return.request", "order", orderNumber)
		}
		if o.OrderStatus != models.OrderStatusDelivered {
			return apperr.Policy("return.request", apperr.ReasonNotDelivered,
				"order %s has not been delivered", orderNumber)
		}
		if o.ReturnRequest != nil {
			return apperr.Conflict("return.request", apperr.ReasonAlreadyRequested,
				"a return was already requested for order %s", orderNumber)
		}
		now := s.now()
		if !ReturnWindowOpen(o, s.window, now) {
			return apperr.Policy("return.request", apperr.ReasonWindowExpired,
				"returns must be requested within %s of delivery", s.window)
		}
		o.ReturnRequest = &models.ReturnRequest{
			Reason:      in.Reason,
			Description: strings.TrimSpace(in.Description),
			Status:      models.ReturnStatusPending,
			RequestedBy: actor.String(),
			RequestedAt: now,
		}
		return nil
	})
	if err != nil {
		util.ReturnRequestsTotal.WithLabelValues(failureLabel(err)).Inc()
		return nil, err
	}

	util.ReturnRequestsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("Return requested",
		zap.String("order_number", order.OrderNumber),
		zap.String("reason", string(in.Reason)))
	s.notifier.ReturnRequested(ctx, order)
	return order, nil
}

var returnTransitions = map[models.ReturnStatus][]models.ReturnStatus{
	models.ReturnStatusPending:  {models.ReturnStatusApproved, models.ReturnStatusRejected},
	models.ReturnStatusApproved: {models.ReturnStatusCompleted},
}

func canReview(from, to models.ReturnStatus) bool {
	for _, next := range returnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReviewReturn moves a return request through its sub-status.
func (s *ReturnService) ReviewReturn(ctx context.Context, actor Actor, orderNumber string, to models.ReturnStatus, note string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.ReviewReturn")
	defer span.End()

	if err := requireOperator("return.review", actor); err != nil {
		return nil, err
	}

	order, _, err := updateOrder(ctx, s.orders, orderNumber, func(o *models.Order) error {
		rr := o.ReturnRequest
		if rr == nil {
			return apperr.NotFound("return.review", "return request", orderNumber)
		}
		if !canReview(rr.Status, to) {
			return apperr.Policy("return.review", apperr.ReasonInvalidTransition,
				"cannot move return from %s to %s", rr.Status, to)
		}
		now := s.now()
		rr.Status = to
		rr.ReviewedBy = actor.String()
		rr.ReviewedAt = &now
		if note != "" {
			rr.AdminNote = note
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Return reviewed",
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(to)),
		zap.String("actor", actor.String()))
	s.notifier.ReturnReviewed(ctx, order)
	return order, nil
}

type RefundInput struct {
	Amount decimal.NullDecimal `json:"amount"`
	Reason string              `json:"reason" binding:"required,max=500"`
}

// refundable reports whether money can go back on the order: the payment
// was taken and either the order was cancelled or its return accepted.
func refundable(o *models.Order) bool {
	if o.PaymentInfo.Status != models.PaymentStatusVerified {
		return false
	}
	if o.OrderStatus == models.OrderStatusCancelled {
		return true
	}
	rr := o.ReturnRequest
	return rr != nil && (rr.Status == models.ReturnStatusApproved || rr.Status == models.ReturnStatusCompleted)
}

// RequestRefund opens the single refund an order may have.
func (s *ReturnService) RequestRefund(ctx context.Context, actor Actor, orderNumber string, in *RefundInput) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.RequestRefund")
	defer span.End()

	order, err := s.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !actor.canSee(order) {
		return nil, apperr.NotFound("refund.request", "order", orderNumber)
	}
	if order.PaymentInfo.Status != models.PaymentStatusVerified {
		return nil, apperr.Policy("refund.request", apperr.ReasonPaymentNotVerified,
			"payment for order %s is %s", orderNumber, order.PaymentInfo.Status)
	}
	if !refundable(order) {
		return nil, apperr.Policy("refund.request", apperr.ReasonNotRefundable,
			"order %s must be cancelled or have an approved return", orderNumber)
	}

	amount := order.FinalAmount
	if in.Amount.Valid {
		amount = in.Amount.Decimal
	}
	if !amount.IsPositive() || amount.GreaterThan(order.FinalAmount) {
		return nil, apperr.Validation("refund.request", "amount must be greater than 0 and at most %s", order.FinalAmount)
	}

	existing, err := s.refunds.GetRefundByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("refund.request", apperr.ReasonRefundExists,
			"order %s already has a refund", orderNumber)
	}

	refund := &models.Refund{
		ID:          uuid.New().String(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Amount:      amount,
		Reason:      strings.TrimSpace(in.Reason),
		Status:      models.RefundStatusPending,
		RequestedBy: actor.String(),
	}
	if err := s.refunds.CreateRefund(ctx, refund); err != nil {
		return nil, err
	}

	s.afterRefund(ctx, refund, actor)
	return refund, nil
}

func (s *ReturnService) ApproveRefund(ctx context.Context, actor Actor, refundID string) (*models.Refund, error) {
	return s.transitionRefund(ctx, actor, refundID, models.RefundStatusApproved, "")
}

func (s *ReturnService) RejectRefund(ctx context.Context, actor Actor, refundID, reason string) (*models.Refund, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("refund.reject", "a rejection reason is required")
	}
	return s.transitionRefund(ctx, actor, refundID, models.RefundStatusRejected, reason)
}

func (s *ReturnService) ProcessRefund(ctx context.Context, actor Actor, refundID string) (*models.Refund, error) {
	return s.transitionRefund(ctx, actor, refundID, models.RefundStatusProcessed, "")
}

// CompleteRefund finishes the refund and marks the order's payment refunded.
func (s *ReturnService) CompleteRefund(ctx context.Context, actor Actor, refundID string) (*models.Refund, error) {
	return s.transitionRefund(ctx, actor, refundID, models.RefundStatusCompleted, "")
}

func (s *ReturnService) transitionRefund(ctx context.Context, actor Actor, refundID string, to models.RefundStatus, reason string) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "ReturnService.TransitionRefund")
	defer span.End()

	if err := requireOperator("refund.transition", actor); err != nil {
		return nil, err
	}

	refund, err := s.refunds.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	from := refund.Status
	if !from.CanTransition(to) {
		return nil, apperr.Policy("refund.transition", apperr.ReasonInvalidRefundTransition,
			"cannot move refund from %s to %s", from, to)
	}

	now := s.now()
	refund.Status = to
	refund.ProcessedBy = actor.String()
	refund.ProcessedAt = &now
	if to == models.RefundStatusRejected {
		refund.RejectionReason = reason
	}
	// The order is settled before the refund is marked completed. Settling is
	// idempotent, so a failure at either step leaves the refund processed and
	// a retry finishes both.
	if to == models.RefundStatusCompleted {
		if err := s.settleOrder(ctx, refund); err != nil {
			return nil, err
		}
	}
	if err := s.refunds.UpdateRefund(ctx, refund, from); err != nil {
		return nil, err
	}

	s.afterRefund(ctx, refund, actor)
	return refund, nil
}

// settleOrder records a completed refund on its order.
func (s *ReturnService) settleOrder(ctx context.Context, refund *models.Refund) error {
	_, _, err := updateOrder(ctx, s.orders, refund.OrderNumber, func(o *models.Order) error {
		if containsString(o.RefundIDs, refund.ID) && o.PaymentInfo.Status == models.PaymentStatusRefunded {
			return errNoChange
		}
		o.PaymentInfo.Status = models.PaymentStatusRefunded
		if !containsString(o.RefundIDs, refund.ID) {
			o.RefundIDs = append(o.RefundIDs, refund.ID)
		}
		if rr := o.ReturnRequest; rr != nil && rr.Status == models.ReturnStatusApproved {
			rr.Status = models.ReturnStatusCompleted
		}
		return nil
	})
	return err
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *ReturnService) afterRefund(ctx context.Context, refund *models.Refund, actor Actor) {
	util.RefundTransitionsTotal.WithLabelValues(string(refund.Status)).Inc()
	s.logger.Info("Refund status changed",
		zap.String("refund_id", refund.ID),
		zap.String("order_number", refund.OrderNumber),
		zap.String("status", string(refund.Status)),
		zap.String("actor", actor.String()))

	event := &models.RefundEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRefundStatusChanged,
			Timestamp: s.now(),
		},
		RefundID:    refund.ID,
		OrderNumber: refund.OrderNumber,
		Status:      refund.Status,
		Amount:      refund.Amount.String(),
	}
	if err := s.events.PublishRefundStatusChanged(ctx, event); err != nil {
		s.logger.Warn("Failed to publish RefundStatusChanged event",
			zap.String("refund_id", refund.ID),
			zap.Error(err))
	}

	s.notifier.RefundStatusChanged(ctx, refund)
}

// GetRefund returns a refund to its customer or an operator.
func (s *ReturnService) GetRefund(ctx context.Context, actor Actor, refundID string) (*models.Refund, error) {
	refund, err := s.refunds.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if actor.IsOperator() {
		return refund, nil
	}
	if id, ok := actor.UserID(); ok && refund.UserID != nil && *refund.UserID == id {
		return refund, nil
	}
	return nil, apperr.NotFound("refund.get", "refund", refundID)
}

func (s *ReturnService) ListRefunds(ctx context.Context, actor Actor, status models.RefundStatus, page Page) ([]models.Refund, error) {
	if err := requireOperator("refund.list", actor); err != nil {
		return nil, err
	}
	page = page.normalize()
	return s.refunds.ListRefunds(ctx, status, page.Limit, page.Offset)
}
