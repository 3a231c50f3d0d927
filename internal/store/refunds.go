package store

import (
	"context"
	"database/sql"
	"errors"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"

	"github.com/lib/pq"
)

const refundColumns = `id, order_id, order_number, user_id, amount, reason, status, requested_by,
	processed_by, processed_at, rejection_reason, created_at, updated_at`

// pqUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

// CreateRefund inserts a refund. The unique order_id index enforces one refund per order.
func (s *Store) CreateRefund(ctx context.Context, refund *models.Refund) error {
	query := `
		INSERT INTO refunds (id, order_id, order_number, user_id, amount, reason, status, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		refund.ID, refund.OrderID, refund.OrderNumber, refund.UserID, refund.Amount,
		refund.Reason, refund.Status, refund.RequestedBy)
	err := row.Scan(&refund.CreatedAt, &refund.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return apperr.Conflict("refund.create", apperr.ReasonRefundExists,
			"a refund already exists for order %s", refund.OrderNumber)
	}
	if err != nil {
		return apperr.Internal(err, "refund.create", "failed to save refund")
	}
	return nil
}

// GetRefund retrieves a refund by ID
func (s *Store) GetRefund(ctx context.Context, id string) (*models.Refund, error) {
	var refund models.Refund
	err := s.db.GetContext(ctx, &refund, "SELECT "+refundColumns+" FROM refunds WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("refund.get", "refund", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "refund.get", "failed to load refund")
	}
	return &refund, nil
}

// GetRefundByOrder returns the order's refund, or nil when none exists.
func (s *Store) GetRefundByOrder(ctx context.Context, orderID int64) (*models.Refund, error) {
	var refund models.Refund
	err := s.db.GetContext(ctx, &refund, "SELECT "+refundColumns+" FROM refunds WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "refund.get", "failed to load refund")
	}
	return &refund, nil
}

// UpdateRefund persists a transition. The write only applies while the row is
// still in status from, so two operators cannot both move the same refund.
func (s *Store) UpdateRefund(ctx context.Context, refund *models.Refund, from models.RefundStatus) error {
	query := `
		UPDATE refunds SET status = $1, processed_by = $2, processed_at = $3, rejection_reason = $4,
			updated_at = NOW()
		WHERE id = $5 AND status = $6
		RETURNING updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		refund.Status, refund.ProcessedBy, refund.ProcessedAt, refund.RejectionReason, refund.ID, from)
	err := row.Scan(&refund.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Conflict("refund.update", apperr.ReasonInvalidRefundTransition,
			"refund %s is no longer %s", refund.ID, from)
	}
	if err != nil {
		return apperr.Internal(err, "refund.update", "failed to save refund")
	}
	return nil
}

// ListRefunds returns refunds for operators, optionally filtered by status.
func (s *Store) ListRefunds(ctx context.Context, status models.RefundStatus, limit, offset int) ([]models.Refund, error) {
	refunds := []models.Refund{}
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &refunds,
			"SELECT "+refundColumns+" FROM refunds ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	} else {
		err = s.db.SelectContext(ctx, &refunds,
			"SELECT "+refundColumns+" FROM refunds WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
			status, limit, offset)
	}
	if err != nil {
		return nil, apperr.Internal(err, "refund.list", "failed to list refunds")
	}
	return refunds, nil
}
