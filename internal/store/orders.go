package store

import (
	"context"
	"database/sql"
	"errors"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
)

const orderColumns = `id, order_number, user_id, customer, items, total_amount, delivery_charge, discount,
	final_amount, payment_method, payment_status, payment_transaction_id, payment_proof_url,
	payment_verified_by, payment_verified_at, payment_metadata, order_status, status_history,
	delivery_method, delivery_address, delivered_at, return_request, refund_ids, version,
	created_at, updated_at`

// CreateOrder inserts a new order. FinalAmount is recomputed before the write.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	order.RecomputeFinal()

	query := `
		INSERT INTO orders (order_number, user_id, customer, items, total_amount, delivery_charge,
			discount, final_amount, payment_method, payment_status, payment_transaction_id,
			payment_proof_url, payment_metadata, order_status, status_history, delivery_method,
			delivery_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, version, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		order.OrderNumber, order.UserID, order.Customer, order.Items, order.TotalAmount,
		order.DeliveryCharge, order.Discount, order.FinalAmount, order.PaymentInfo.Method,
		order.PaymentInfo.Status, order.PaymentInfo.TransactionID, order.PaymentInfo.ProofURL,
		order.PaymentInfo.Metadata, order.OrderStatus, order.StatusHistory, order.DeliveryInfo.Method,
		order.DeliveryInfo.Address)
	if err := row.Scan(&order.ID, &order.Version, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return apperr.Internal(err, "order.create", "failed to save order")
	}
	return nil
}

// GetOrderByNumber retrieves an order by its business key
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE order_number = $1", orderNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order.get", "order", orderNumber)
	}
	if err != nil {
		return nil, apperr.Internal(err, "order.get", "failed to load order")
	}
	return &order, nil
}

// UpdateOrder writes every mutable column guarded by the version the caller
// read. A concurrent writer makes it fail with Conflict(stale_version); on
// success order.Version and order.UpdatedAt are refreshed.
func (s *Store) UpdateOrder(ctx context.Context, order *models.Order) error {
	order.RecomputeFinal()

	query := `
		UPDATE orders SET
			items = $1, total_amount = $2, delivery_charge = $3, discount = $4, final_amount = $5,
			payment_status = $6, payment_transaction_id = $7, payment_proof_url = $8,
			payment_verified_by = $9, payment_verified_at = $10, payment_metadata = $11,
			order_status = $12, status_history = $13, delivery_address = $14, delivered_at = $15,
			return_request = $16, refund_ids = $17, version = version + 1, updated_at = NOW()
		WHERE id = $18 AND version = $19
		RETURNING version, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		order.Items, order.TotalAmount, order.DeliveryCharge, order.Discount, order.FinalAmount,
		order.PaymentInfo.Status, order.PaymentInfo.TransactionID, order.PaymentInfo.ProofURL,
		order.PaymentInfo.VerifiedBy, order.PaymentInfo.VerifiedAt, order.PaymentInfo.Metadata,
		order.OrderStatus, order.StatusHistory, order.DeliveryInfo.Address, order.DeliveryInfo.DeliveredAt,
		order.ReturnRequest, order.RefundIDs, order.ID, order.Version)
	err := row.Scan(&order.Version, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Conflict("order.update", apperr.ReasonStaleVersion,
			"order %s was modified concurrently", order.OrderNumber)
	}
	if err != nil {
		return apperr.Internal(err, "order.update", "failed to save order")
	}
	return nil
}

// ListOrdersByUser returns a user's orders, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err, "order.list", "failed to list orders")
	}
	return orders, nil
}

// ListOrders returns orders for operators, optionally filtered by status.
func (s *Store) ListOrders(ctx context.Context, status models.OrderStatus, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2",
			limit, offset)
	} else {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders WHERE order_status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
			status, limit, offset)
	}
	if err != nil {
		return nil, apperr.Internal(err, "order.list", "failed to list orders")
	}
	return orders, nil
}
