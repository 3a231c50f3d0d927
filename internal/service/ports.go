package service

import (
	"context"
	"time"

	"food-order-service/internal/models"
)

// ProductStore is the catalog surface order processing needs.
type ProductStore interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	ListOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error)
	ListOrders(ctx context.Context, status models.OrderStatus, limit, offset int) ([]models.Order, error)
}

type RefundStore interface {
	CreateRefund(ctx context.Context, refund *models.Refund) error
	GetRefund(ctx context.Context, id string) (*models.Refund, error)
	GetRefundByOrder(ctx context.Context, orderID int64) (*models.Refund, error)
	UpdateRefund(ctx context.Context, refund *models.Refund, from models.RefundStatus) error
	ListRefunds(ctx context.Context, status models.RefundStatus, limit, offset int) ([]models.Refund, error)
}

// Notifier fans events out to customers and operators. Implementations
// absorb their own failures.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *models.Order)
	OrderStatusChanged(ctx context.Context, o *models.Order)
	PaymentVerified(ctx context.Context, o *models.Order)
	PaymentFailed(ctx context.Context, o *models.Order)
	ReturnRequested(ctx context.Context, o *models.Order)
	ReturnReviewed(ctx context.Context, o *models.Order)
	RefundStatusChanged(ctx context.Context, r *models.Refund)
}

// EventPublisher emits domain events. *broker.EventPublisher implements it.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPayment(ctx context.Context, event *models.PaymentEvent) error
	PublishRefundStatusChanged(ctx context.Context, event *models.RefundEvent) error
}

// TransactionGuard claims gateway transaction ids. *redisclient.Client implements it.
type TransactionGuard interface {
	ClaimTransaction(ctx context.Context, txID, owner string, ttl time.Duration) (bool, error)
	ReleaseTransaction(ctx context.Context, txID, owner string) error
}

// OrderNumberGenerator issues unique order numbers.
type OrderNumberGenerator interface {
	Next() (string, error)
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
