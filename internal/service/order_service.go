package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
	"food-order-service/internal/pricing"
	"food-order-service/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles order creation and queries
type OrderService struct {
	orders     OrderStore
	products   ProductStore
	inventory  *InventoryLedger
	calculator *pricing.Calculator
	numbers    OrderNumberGenerator
	notifier   Notifier
	events     EventPublisher
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderStore,
	products ProductStore,
	inventory *InventoryLedger,
	calculator *pricing.Calculator,
	numbers OrderNumberGenerator,
	notifier Notifier,
	events EventPublisher,
) *OrderService {
	return &OrderService{
		orders:     orders,
		products:   products,
		inventory:  inventory,
		calculator: calculator,
		numbers:    numbers,
		notifier:   notifier,
		events:     events,
		validate:   validator.New(),
		logger:     util.GetLogger(),
	}
}

type CustomerInput struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
}

type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderInput represents a request to create an order
type CreateOrderInput struct {
	Customer        CustomerInput            `json:"customer"`
	DeliveryMethod  models.DeliveryMethod    `json:"delivery_method" validate:"required,oneof=delivery pickup"`
	DeliveryAddress string                   `json:"delivery_address" validate:"required_if=DeliveryMethod delivery,max=500"`
	Items           []ItemInput              `json:"items" validate:"required,min=1,max=50,dive"`
	PaymentMethod   models.PaymentMethodCode `json:"payment_method" validate:"required,oneof=cash_on_delivery bkash nagad rocket gateway"`
	TransactionID   string                   `json:"transaction_id" validate:"max=100"`
	PaymentProofURL string                   `json:"payment_proof_url" validate:"omitempty,url"`
}

// validationError turns validator output into a single Validation error.
func validationError(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(op, "%s", err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
	}
	return apperr.Validation(op, "invalid fields: %s", strings.Join(fields, ", "))
}

// CreateOrder validates the cart, takes stock line by line, prices the order
// and persists it. Any failure gives back the stock already taken.
func (s *OrderService) CreateOrder(ctx context.Context, actor Actor, in *CreateOrderInput) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := s.validate.StructCtx(ctx, in); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, validationError("order.create", err)
	}

	method, err := models.ParsePaymentMethod(in.PaymentMethod, strings.TrimSpace(in.TransactionID), in.PaymentProofURL)
	if err != nil {
		return nil, apperr.Validation("order.create", "%s", err.Error())
	}

	items, taken, err := s.takeItems(ctx, in.Items)
	if err != nil {
		util.FailSpan(ctx, err)
		s.inventory.Release(ctx, taken)
		util.OrdersFailedTotal.WithLabelValues(failureLabel(err)).Inc()
		return nil, err
	}

	lines := make([]pricing.Line, len(items))
	for i, it := range items {
		lines[i] = pricing.Line{UnitPrice: it.Price, Quantity: it.Quantity}
	}
	totals := s.calculator.Calculate(lines, in.DeliveryMethod, decimal.Zero)

	number, err := s.numbers.Next()
	if err != nil {
		s.inventory.Release(ctx, taken)
		util.OrdersFailedTotal.WithLabelValues("order_number").Inc()
		return nil, apperr.Internal(err, "order.create", "failed to generate order number")
	}

	order := &models.Order{
		OrderNumber: number,
		Customer: models.Customer{
			Name:    strings.TrimSpace(in.Customer.Name),
			Phone:   strings.TrimSpace(in.Customer.Phone),
			Email:   strings.TrimSpace(in.Customer.Email),
			Address: in.Customer.Address,
		},
		Items:          items,
		TotalAmount:    totals.TotalAmount,
		DeliveryCharge: totals.DeliveryCharge,
		Discount:       totals.Discount,
		FinalAmount:    totals.FinalAmount,
		PaymentInfo:    paymentInfoFor(method),
		OrderStatus:    models.OrderStatusPending,
		DeliveryInfo: models.DeliveryInfo{
			Method:  in.DeliveryMethod,
			Address: in.DeliveryAddress,
		},
	}
	if id, ok := actor.UserID(); ok {
		order.UserID = &id
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.inventory.Release(ctx, taken)
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_method", string(order.PaymentInfo.Method)),
		zap.String("final_amount", order.FinalAmount.String()))

	s.publishCreated(ctx, order)
	s.notifier.OrderPlaced(ctx, order)

	return order, nil
}

// takeItems checks each cart line in order and takes its stock. On failure it
// returns the lines taken so far so the caller can release them.
func (s *OrderService) takeItems(ctx context.Context, in []ItemInput) (models.OrderItems, []StockLine, error) {
	items := make(models.OrderItems, 0, len(in))
	taken := make([]StockLine, 0, len(in))

	for _, req := range in {
		product, err := s.products.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, taken, err
		}
		if !product.IsAvailable || !product.IsVisible {
			return nil, taken, apperr.Policy("order.create", apperr.ReasonProductUnavailable,
				"%s is not available", product.Name)
		}
		if !product.AcceptsQuantity(req.Quantity) {
			return nil, taken, apperr.Policy("order.create", apperr.ReasonQuantityOutOfRange,
				"quantity for %s must be between %d and %d", product.Name, product.MinQty, product.MaxQty)
		}
		if req.Quantity > product.Stock {
			return nil, taken, apperr.Policy("order.create", apperr.ReasonInsufficientStock,
				"only %d of %s left", product.Stock, product.Name)
		}

		line := StockLine{ProductID: product.ID, Quantity: req.Quantity}
		if err := s.inventory.Take(ctx, line); err != nil {
			return nil, taken, err
		}
		taken = append(taken, line)

		price := product.UnitPrice()
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     price,
			Quantity:  req.Quantity,
			Subtotal:  pricing.Subtotal(pricing.Line{UnitPrice: price, Quantity: req.Quantity}),
		})
	}
	return items, taken, nil
}

func paymentInfoFor(method models.PaymentMethod) models.PaymentInfo {
	info := models.PaymentInfo{
		Method: method.Code(),
		Status: models.PaymentStatusPending,
	}
	switch m := method.(type) {
	case models.ManualPayment:
		info.TransactionID = m.TransactionID
		info.ProofURL = m.ProofURL
	case models.GatewayPayment, models.CashOnDelivery:
	}
	return info
}

func failureLabel(err error) string {
	if reason := apperr.ReasonOf(err); reason != "" {
		return reason
	}
	return string(apperr.KindOf(err))
}

func (s *OrderService) publishCreated(ctx context.Context, o *models.Order) {
	items := make([]models.OrderItemData, len(o.Items))
	for i, it := range o.Items {
		items[i] = models.OrderItemData{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.Price.String(),
		}
	}
	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		FinalAmount:   o.FinalAmount.String(),
		PaymentMethod: string(o.PaymentInfo.Method),
		Items:         items,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Warn("Failed to publish OrderCreated event",
			zap.String("order_number", o.OrderNumber),
			zap.Error(err))
	}
}

// GetOrder returns an order to its owner or an operator. Others get NotFound.
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderNumber string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !actor.canSee(order) {
		return nil, apperr.NotFound("order.get", "order", orderNumber)
	}
	return order, nil
}

// ListMyOrders returns the signed-in customer's orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, actor Actor, page Page) ([]models.Order, error) {
	userID, ok := actor.UserID()
	if !ok {
		return nil, apperr.Validation("order.list", "sign in to list orders")
	}
	page = page.normalize()
	return s.orders.ListOrdersByUser(ctx, userID, page.Limit, page.Offset)
}

// ListOrders is the operator view, optionally filtered by status.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, status models.OrderStatus, page Page) ([]models.Order, error) {
	if err := requireOperator("order.list", actor); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("order.list", "unknown order status %q", status)
	}
	page = page.normalize()
	return s.orders.ListOrders(ctx, status, page.Limit, page.Offset)
}

// SubmitPaymentProof attaches or replaces the customer's attestation on a
// pending manual-payment order. A previously rejected payment goes back to
// pending for another review.
func (s *OrderService) SubmitPaymentProof(ctx context.Context, actor Actor, orderNumber, transactionID, proofURL string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SubmitPaymentProof")
	defer span.End()

	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" && proofURL == "" {
		return nil, apperr.Validation("payment.submit_proof", "transaction id or proof is required")
	}
	if proofURL != "" {
		if err := s.validate.Var(proofURL, "url"); err != nil {
			return nil, apperr.Validation("payment.submit_proof", "proof must be a URL")
		}
	}

	order, _, err := updateOrder(ctx, s.orders, orderNumber, func(o *models.Order) error {
		if !actor.canSee(o) {
			return apperr.NotFound("payment.submit_proof", "order", orderNumber)
		}
		variant, err := o.PaymentInfo.Variant()
		if err != nil {
			return apperr.Internal(err, "payment.submit_proof", "unreadable payment method")
		}
		if _, ok := variant.(models.ManualPayment); !ok {
			return apperr.Policy("payment.submit_proof", apperr.ReasonPaymentMethodMismatch,
				"order %s is not paid by mobile transfer", orderNumber)
		}
		if o.OrderStatus != models.OrderStatusPending {
			return apperr.Policy("payment.submit_proof", apperr.ReasonInvalidTransition,
				"order %s is already %s", orderNumber, o.OrderStatus)
		}
		switch o.PaymentInfo.Status {
		case models.PaymentStatusPending, models.PaymentStatusFailed:
		default:
			return apperr.Policy("payment.submit_proof", apperr.ReasonInvalidTransition,
				"payment for order %s is already %s", orderNumber, o.PaymentInfo.Status)
		}

		if transactionID != "" {
			o.PaymentInfo.TransactionID = transactionID
		}
		if proofURL != "" {
			o.PaymentInfo.ProofURL = proofURL
		}
		o.PaymentInfo.Status = models.PaymentStatusPending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
