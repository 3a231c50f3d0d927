package service

import (
	"context"
	"time"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
	"food-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:        {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:      {models.OrderStatusPreparing, models.OrderStatusCancelled},
	models.OrderStatusPreparing:      {models.OrderStatusReady, models.OrderStatusCancelled},
	models.OrderStatusReady:          {models.OrderStatusOutForDelivery, models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusOutForDelivery: {models.OrderStatusDelivered, models.OrderStatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
// Delivery orders go ready -> out_for_delivery -> delivered; pickup orders go
// ready -> delivered.
func CanTransition(o *models.Order, to models.OrderStatus) bool {
	allowed := false
	for _, next := range orderTransitions[o.OrderStatus] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if o.OrderStatus == models.OrderStatusReady {
		switch to {
		case models.OrderStatusOutForDelivery:
			return o.DeliveryInfo.Method == models.DeliveryMethodDelivery
		case models.OrderStatusDelivered:
			return o.DeliveryInfo.Method == models.DeliveryMethodPickup
		}
	}
	return true
}

// StateMachine drives order status. Every transition appends a history
// entry; cancellation restores stock; delivery starts the return clock.
type StateMachine struct {
	orders    OrderStore
	inventory *InventoryLedger
	notifier  Notifier
	events    EventPublisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewStateMachine(orders OrderStore, inventory *InventoryLedger, notifier Notifier, events EventPublisher) *StateMachine {
	return &StateMachine{
		orders:    orders,
		inventory: inventory,
		notifier:  notifier,
		events:    events,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// apply validates and performs the transition on o in memory.
func (m *StateMachine) apply(o *models.Order, to models.OrderStatus, actor Actor, note string) error {
	if !to.Valid() {
		return apperr.Validation("order.transition", "unknown order status %q", to)
	}
	if o.OrderStatus.Terminal() {
		return apperr.Policy("order.transition", apperr.ReasonInvalidTransition,
			"order %s is already %s", o.OrderNumber, o.OrderStatus)
	}
	if !CanTransition(o, to) {
		return apperr.Policy("order.transition", apperr.ReasonInvalidTransition,
			"cannot move order %s from %s to %s", o.OrderNumber, o.OrderStatus, to)
	}

	now := m.now()
	o.AppendStatus(to, actor.String(), note, now)
	if to == models.OrderStatusDelivered {
		o.DeliveryInfo.DeliveredAt = &now
	}
	return nil
}

// after runs the side effects of a persisted transition.
func (m *StateMachine) after(ctx context.Context, o *models.Order, from models.OrderStatus, actor Actor) {
	to := o.OrderStatus
	util.OrderTransitionsTotal.WithLabelValues(string(to)).Inc()
	m.logger.Info("Order status changed",
		zap.String("order_number", o.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor.String()))

	if to == models.OrderStatusCancelled {
		m.inventory.Restore(ctx, o)
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: m.now(),
		},
		OrderNumber: o.OrderNumber,
		From:        from,
		To:          to,
		Actor:       actor.String(),
	}
	if err := m.events.PublishOrderStatusChanged(ctx, event); err != nil {
		m.logger.Warn("Failed to publish OrderStatusChanged event",
			zap.String("order_number", o.OrderNumber),
			zap.Error(err))
	}

	m.notifier.OrderStatusChanged(ctx, o)
}

// Transition moves an order to status to. Operators may make any allowed
// transition; a customer may only cancel their own pending order.
func (m *StateMachine) Transition(ctx context.Context, orderNumber string, to models.OrderStatus, actor Actor, note string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "StateMachine.Transition")
	defer span.End()

	var from models.OrderStatus
	order, _, err := updateOrder(ctx, m.orders, orderNumber, func(o *models.Order) error {
		if !actor.canSee(o) {
			return apperr.NotFound("order.transition", "order", orderNumber)
		}
		if !actor.IsOperator() && (to != models.OrderStatusCancelled || o.OrderStatus != models.OrderStatusPending) {
			return apperr.Policy("order.transition", apperr.ReasonInvalidTransition,
				"customers can only cancel pending orders")
		}
		from = o.OrderStatus
		return m.apply(o, to, actor, note)
	})
	if err != nil {
		return nil, err
	}

	m.after(ctx, order, from, actor)
	return order, nil
}

// Cancel is Transition to cancelled.
func (m *StateMachine) Cancel(ctx context.Context, orderNumber string, actor Actor, reason string) (*models.Order, error) {
	return m.Transition(ctx, orderNumber, models.OrderStatusCancelled, actor, reason)
}
