package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"food-order-service/internal/apperr"
	"food-order-service/internal/gateway"
	"food-order-service/internal/models"
	"food-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	PathManual  = "manual"
	PathGateway = "gateway"
)

// CallbackKind names the gateway channel a callback arrived on.
type CallbackKind string

const (
	CallbackSuccess CallbackKind = "success"
	CallbackFail    CallbackKind = "fail"
	CallbackCancel  CallbackKind = "cancel"
	CallbackIPN     CallbackKind = "ipn"
)

// CallbackResult is what reconciliation concluded for a callback.
type CallbackResult struct {
	OrderNumber string
	Outcome     gateway.Outcome
	// Applied is false when the callback changed nothing, e.g. a duplicate IPN.
	Applied bool
}

// PaymentReconciler converges manual attestation and gateway callbacks on
// one payment status update. Gateway callbacks only ever act on the
// outcome returned by the gateway's own validation call.
type PaymentReconciler struct {
	orders          OrderStore
	machine         *StateMachine
	provider        gateway.Provider
	guard           TransactionGuard
	notifier        Notifier
	events          EventPublisher
	claimTTL        time.Duration
	callbackBaseURL string
	now             func() time.Time
	logger          *zap.Logger
}

func NewPaymentReconciler(
	orders OrderStore,
	machine *StateMachine,
	provider gateway.Provider,
	guard TransactionGuard,
	notifier Notifier,
	events EventPublisher,
	claimTTL time.Duration,
	callbackBaseURL string,
) *PaymentReconciler {
	return &PaymentReconciler{
		orders:          orders,
		machine:         machine,
		provider:        provider,
		guard:           guard,
		notifier:        notifier,
		events:          events,
		claimTTL:        claimTTL,
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		now:             time.Now,
		logger:          util.GetLogger(),
	}
}

// MarkVerified records an operator's verification of a manual or
// cash-on-delivery payment and confirms a pending order. Verifying an
// already verified payment is a no-op.
func (r *PaymentReconciler) MarkVerified(ctx context.Context, actor Actor, orderNumber, note string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.MarkVerified")
	defer span.End()

	if err := requireOperator("payment.verify", actor); err != nil {
		return nil, err
	}

	var from models.OrderStatus
	order, changed, err := updateOrder(ctx, r.orders, orderNumber, func(o *models.Order) error {
		variant, err := o.PaymentInfo.Variant()
		if err != nil {
			return apperr.Internal(err, "payment.verify", "unreadable payment method")
		}
		switch variant.(type) {
		case models.ManualPayment, models.CashOnDelivery:
		case models.GatewayPayment:
			return apperr.Policy("payment.verify", apperr.ReasonPaymentMethodMismatch,
				"gateway payments are verified by the gateway")
		}

		switch o.PaymentInfo.Status {
		case models.PaymentStatusVerified:
			return errNoChange
		case models.PaymentStatusRefunded, models.PaymentStatusCancelled:
			return apperr.Policy("payment.verify", apperr.ReasonInvalidTransition,
				"payment for order %s is %s", orderNumber, o.PaymentInfo.Status)
		}
		if o.OrderStatus == models.OrderStatusCancelled {
			return apperr.Policy("payment.verify", apperr.ReasonInvalidTransition,
				"order %s is cancelled", orderNumber)
		}

		from = o.OrderStatus
		r.markVerified(o, actor.String())
		if note != "" {
			o.PaymentInfo.Metadata = withMetadata(o.PaymentInfo.Metadata, "verification_note", note)
		}
		if o.OrderStatus == models.OrderStatusPending {
			return r.machine.apply(o, models.OrderStatusConfirmed, actor, "payment verified")
		}
		return nil
	})
	if err != nil {
		util.PaymentReconciliationsTotal.WithLabelValues(PathManual, "error").Inc()
		return nil, err
	}
	if !changed {
		util.PaymentReconciliationsTotal.WithLabelValues(PathManual, "duplicate").Inc()
		return order, nil
	}

	util.PaymentReconciliationsTotal.WithLabelValues(PathManual, "verified").Inc()
	r.afterVerified(ctx, order, from, actor, PathManual)
	return order, nil
}

// RejectManual marks a mobile-transfer attestation as failed. The order
// stays pending so the customer can submit new proof.
func (r *PaymentReconciler) RejectManual(ctx context.Context, actor Actor, orderNumber, note string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.RejectManual")
	defer span.End()

	if err := requireOperator("payment.reject", actor); err != nil {
		return nil, err
	}

	order, _, err := updateOrder(ctx, r.orders, orderNumber, func(o *models.Order) error {
		variant, err := o.PaymentInfo.Variant()
		if err != nil {
			return apperr.Internal(err, "payment.reject", "unreadable payment method")
		}
		if _, ok := variant.(models.ManualPayment); !ok {
			return apperr.Policy("payment.reject", apperr.ReasonPaymentMethodMismatch,
				"only mobile transfer payments can be rejected")
		}
		if o.PaymentInfo.Status != models.PaymentStatusPending {
			return apperr.Policy("payment.reject", apperr.ReasonInvalidTransition,
				"payment for order %s is %s", orderNumber, o.PaymentInfo.Status)
		}
		o.PaymentInfo.Status = models.PaymentStatusFailed
		o.PaymentInfo.Metadata = withMetadata(o.PaymentInfo.Metadata, "rejection_note", note)
		o.PaymentInfo.Metadata["rejected_by"] = actor.String()
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PaymentReconciliationsTotal.WithLabelValues(PathManual, "rejected").Inc()
	r.publishPayment(ctx, order, PathManual, models.EventTypePaymentFailed)
	r.notifier.PaymentFailed(ctx, order)
	return order, nil
}

// InitiateGateway opens a hosted payment page for a pending gateway order.
func (r *PaymentReconciler) InitiateGateway(ctx context.Context, actor Actor, orderNumber string) (*gateway.Session, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.InitiateGateway")
	defer span.End()

	order, err := r.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !actor.canSee(order) && order.UserID != nil {
		return nil, apperr.NotFound("payment.initiate", "order", orderNumber)
	}
	if order.PaymentInfo.Method != models.PaymentGateway {
		return nil, apperr.Policy("payment.initiate", apperr.ReasonPaymentMethodMismatch,
			"order %s is not a gateway payment", orderNumber)
	}
	if order.OrderStatus != models.OrderStatusPending || order.PaymentInfo.Status != models.PaymentStatusPending {
		return nil, apperr.Policy("payment.initiate", apperr.ReasonInvalidTransition,
			"order %s cannot be paid in its current state", orderNumber)
	}

	count := 0
	for _, it := range order.Items {
		count += it.Quantity
	}
	base := r.callbackBaseURL + "/api/v1/payments/gateway/"
	session, err := r.provider.Initiate(ctx, &gateway.InitRequest{
		OrderNumber: order.OrderNumber,
		Amount:      order.FinalAmount,
		Customer:    order.Customer,
		ItemCount:   count,
		SuccessURL:  base + string(CallbackSuccess),
		FailURL:     base + string(CallbackFail),
		CancelURL:   base + string(CallbackCancel),
		IPNURL:      base + string(CallbackIPN),
	})
	if err != nil {
		return nil, apperr.External(err, "payment.initiate", "payment gateway unavailable")
	}

	r.logger.Info("Gateway session created",
		zap.String("order_number", order.OrderNumber),
		zap.String("provider", r.provider.Name()),
		zap.String("session_id", session.SessionID))
	return session, nil
}

// HandleCallback reconciles any gateway callback. The callback's own fields
// only locate the transaction; the decision comes from provider.Validate.
func (r *PaymentReconciler) HandleCallback(ctx context.Context, kind CallbackKind, cb *gateway.Callback) (*CallbackResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandleCallback")
	defer span.End()

	start := time.Now()
	v, err := r.provider.Validate(ctx, cb)
	util.GatewayValidationLatency.Observe(time.Since(start).Seconds())
	if errors.Is(err, gateway.ErrUnknownTransaction) {
		util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "unverified").Inc()
		r.logger.Warn("Gateway does not recognise callback reference",
			zap.String("kind", string(kind)),
			zap.String("claimed_order", cb.OrderNumber),
			zap.String("ref", cb.Ref))
		return nil, apperr.Policy("payment.callback", apperr.ReasonGatewayUnverified,
			"gateway could not confirm the transaction")
	}
	if err != nil {
		util.FailSpan(ctx, err)
		util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "validation_error").Inc()
		return nil, apperr.External(err, "payment.callback", "could not validate transaction with gateway")
	}
	// The order is whatever the gateway says it is; a callback naming a
	// different one is forged or misrouted.
	if v.OrderNumber == "" || (cb.OrderNumber != "" && cb.OrderNumber != v.OrderNumber) {
		util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "unverified").Inc()
		r.logger.Warn("Gateway validation does not match callback order",
			zap.String("kind", string(kind)),
			zap.String("claimed_order", cb.OrderNumber),
			zap.String("validated_order", v.OrderNumber))
		return nil, apperr.Policy("payment.callback", apperr.ReasonGatewayUnverified,
			"gateway did not confirm the order this callback names")
	}

	r.logger.Info("Gateway callback validated",
		zap.String("kind", string(kind)),
		zap.String("order_number", v.OrderNumber),
		zap.String("outcome", string(v.Outcome)),
		zap.String("transaction_id", v.TransactionID))

	result := &CallbackResult{OrderNumber: v.OrderNumber, Outcome: v.Outcome}
	switch v.Outcome {
	case gateway.OutcomePaid:
		result.Applied, err = r.applyPaid(ctx, v)
	case gateway.OutcomeFailed, gateway.OutcomeCancelled:
		result.Applied, err = r.applyFailure(ctx, v)
	default:
		util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "pending").Inc()
	}
	if err != nil {
		util.FailSpan(ctx, err)
		util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "error").Inc()
		return nil, err
	}
	return result, nil
}

// applyPaid applies a validated payment exactly once per transaction id:
// the Redis claim filters concurrent duplicates, and the stored transaction
// id catches replays after the claim expired.
func (r *PaymentReconciler) applyPaid(ctx context.Context, v *gateway.Validation) (bool, error) {
	if v.TransactionID == "" {
		return false, apperr.Policy("payment.callback", apperr.ReasonGatewayUnverified,
			"validated payment has no transaction id")
	}

	owner := uuid.New().String()
	claimed, err := r.guard.ClaimTransaction(ctx, v.TransactionID, owner, r.claimTTL)
	if err != nil {
		// Without Redis the durable check below still prevents double application.
		r.logger.Warn("Transaction claim unavailable", zap.String("transaction_id", v.TransactionID), zap.Error(err))
		claimed = true
	}
	if !claimed {
		util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "duplicate").Inc()
		return false, nil
	}

	actor := System(r.provider.Name())
	var from models.OrderStatus
	var transitioned bool
	order, changed, err := updateOrder(ctx, r.orders, v.OrderNumber, func(o *models.Order) error {
		transitioned = false
		if o.PaymentInfo.Status == models.PaymentStatusVerified || o.PaymentInfo.Status == models.PaymentStatusRefunded {
			if o.PaymentInfo.TransactionID != v.TransactionID {
				r.logger.Warn("Second paid transaction for an already paid order",
					zap.String("order_number", o.OrderNumber),
					zap.String("recorded", o.PaymentInfo.TransactionID),
					zap.String("incoming", v.TransactionID))
			}
			return errNoChange
		}
		if o.PaymentInfo.Method != models.PaymentGateway {
			return apperr.Policy("payment.callback", apperr.ReasonPaymentMethodMismatch,
				"order %s is not a gateway payment", o.OrderNumber)
		}
		if !v.Amount.Equal(o.FinalAmount) {
			return apperr.Policy("payment.callback", apperr.ReasonAmountMismatch,
				"gateway amount %s does not match order total %s", v.Amount, o.FinalAmount)
		}

		from = o.OrderStatus
		r.markVerified(o, actor.String())
		o.PaymentInfo.TransactionID = v.TransactionID
		o.PaymentInfo.Metadata = mergeMetadata(o.PaymentInfo.Metadata, v.Metadata)

		switch o.OrderStatus {
		case models.OrderStatusPending:
			transitioned = true
			return r.machine.apply(o, models.OrderStatusConfirmed, actor, "payment verified by gateway")
		case models.OrderStatusCancelled:
			r.logger.Warn("Payment captured for a cancelled order; refund required",
				zap.String("order_number", o.OrderNumber))
		}
		return nil
	})
	if err != nil {
		if relErr := r.guard.ReleaseTransaction(ctx, v.TransactionID, owner); relErr != nil {
			r.logger.Warn("Failed to release transaction claim", zap.Error(relErr))
		}
		return false, err
	}
	if !changed {
		util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "duplicate").Inc()
		return false, nil
	}

	util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "verified").Inc()
	if transitioned {
		r.afterVerified(ctx, order, from, actor, PathGateway)
	} else {
		r.publishPayment(ctx, order, PathGateway, models.EventTypePaymentVerified)
		r.notifier.PaymentVerified(ctx, order)
	}
	return true, nil
}

// applyFailure records a failed or cancelled gateway payment and cancels
// the order. Verified payments and already cancelled orders are left alone.
func (r *PaymentReconciler) applyFailure(ctx context.Context, v *gateway.Validation) (bool, error) {
	actor := System(r.provider.Name())
	status := models.PaymentStatusFailed
	if v.Outcome == gateway.OutcomeCancelled {
		status = models.PaymentStatusCancelled
	}

	var from models.OrderStatus
	order, changed, err := updateOrder(ctx, r.orders, v.OrderNumber, func(o *models.Order) error {
		if o.PaymentInfo.Method != models.PaymentGateway {
			return apperr.Policy("payment.callback", apperr.ReasonPaymentMethodMismatch,
				"order %s is not a gateway payment", o.OrderNumber)
		}
		if o.PaymentInfo.Status == models.PaymentStatusVerified || o.PaymentInfo.Status == models.PaymentStatusRefunded {
			return errNoChange
		}
		if o.OrderStatus.Terminal() {
			return errNoChange
		}

		from = o.OrderStatus
		o.PaymentInfo.Status = status
		o.PaymentInfo.Metadata = mergeMetadata(o.PaymentInfo.Metadata, v.Metadata)
		return r.machine.apply(o, models.OrderStatusCancelled, actor, "payment "+string(status))
	})
	if err != nil {
		return false, err
	}
	if !changed {
		util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, "duplicate").Inc()
		return false, nil
	}

	util.PaymentReconciliationsTotal.WithLabelValues(PathGateway, string(status)).Inc()
	r.machine.after(ctx, order, from, actor)
	r.publishPayment(ctx, order, PathGateway, models.EventTypePaymentFailed)
	r.notifier.PaymentFailed(ctx, order)
	return true, nil
}

func (r *PaymentReconciler) markVerified(o *models.Order, by string) {
	now := r.now()
	o.PaymentInfo.Status = models.PaymentStatusVerified
	o.PaymentInfo.VerifiedBy = by
	o.PaymentInfo.VerifiedAt = &now
}

func (r *PaymentReconciler) afterVerified(ctx context.Context, o *models.Order, from models.OrderStatus, actor Actor, path string) {
	if from != o.OrderStatus {
		r.machine.after(ctx, o, from, actor)
	}
	r.publishPayment(ctx, o, path, models.EventTypePaymentVerified)
	r.notifier.PaymentVerified(ctx, o)
}

func (r *PaymentReconciler) publishPayment(ctx context.Context, o *models.Order, path, eventType string) {
	event := &models.PaymentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: r.now(),
		},
		OrderNumber:   o.OrderNumber,
		Path:          path,
		Status:        o.PaymentInfo.Status,
		TransactionID: o.PaymentInfo.TransactionID,
	}
	if err := r.events.PublishPayment(ctx, event); err != nil {
		r.logger.Warn("Failed to publish payment event",
			zap.String("order_number", o.OrderNumber),
			zap.Error(err))
	}
}

func withMetadata(m models.Metadata, key string, value any) models.Metadata {
	if m == nil {
		m = models.Metadata{}
	}
	m[key] = value
	return m
}

func mergeMetadata(dst, src models.Metadata) models.Metadata {
	if dst == nil {
		dst = models.Metadata{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
