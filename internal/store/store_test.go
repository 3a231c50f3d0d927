package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestDecrementStock(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	query := regexp.QuoteMeta("UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1")

	mock.ExpectExec(query).WithArgs(3, int64(10)).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := s.DecrementStock(ctx, 10, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(query).WithArgs(5, int64(10)).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = s.DecrementStock(ctx, 10, 5)
	require.NoError(t, err)
	assert.False(t, ok, "insufficient stock must not decrement")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .* FROM products WHERE id = \\$1").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetProduct(context.Background(), 42)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRecomputesFinalAmount(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	order := &models.Order{
		OrderNumber:    "ORD-01HV",
		TotalAmount:    decimal.NewFromInt(400),
		DeliveryCharge: decimal.NewFromInt(60),
		FinalAmount:    decimal.NewFromInt(999),
		OrderStatus:    models.OrderStatusPending,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).
			AddRow(7, 1, now, now))

	require.NoError(t, s.CreateOrder(context.Background(), order))
	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, int64(1), order.Version)
	assert.True(t, order.FinalAmount.Equal(decimal.NewFromInt(460)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderBumpsVersion(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	order := &models.Order{ID: 7, OrderNumber: "ORD-01HV", Version: 3, TotalAmount: decimal.NewFromInt(100)}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $18 AND version = $19")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(4, now))

	require.NoError(t, s.UpdateOrder(context.Background(), order))
	assert.Equal(t, int64(4), order.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStaleVersion(t *testing.T) {
	s, mock := newMockStore(t)
	order := &models.Order{ID: 7, OrderNumber: "ORD-01HV", Version: 3}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $18 AND version = $19")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))

	err := s.UpdateOrder(context.Background(), order)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, apperr.ReasonStaleVersion, apperr.ReasonOf(err))
	assert.Equal(t, int64(3), order.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByNumberNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM orders WHERE order_number = \\$1").
		WithArgs("ORD-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetOrderByNumber(context.Background(), "ORD-missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCreateRefundRejectsSecondRefund(t *testing.T) {
	s, mock := newMockStore(t)
	refund := &models.Refund{ID: "r1", OrderID: 7, OrderNumber: "ORD-01HV", Amount: decimal.NewFromInt(10)}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO refunds")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := s.CreateRefund(context.Background(), refund)
	assert.Equal(t, apperr.ReasonRefundExists, apperr.ReasonOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRefundGuardsFromStatus(t *testing.T) {
	s, mock := newMockStore(t)
	refund := &models.Refund{ID: "r1", Status: models.RefundStatusApproved}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $5 AND status = $6")).
		WithArgs(models.RefundStatusApproved, "", nil, "", "r1", models.RefundStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := s.UpdateRefund(context.Background(), refund, models.RefundStatusPending)
	assert.Equal(t, apperr.ReasonInvalidRefundTransition, apperr.ReasonOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationQueriesAreScopedToRecipient(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE WHERE id = $1 AND audience = 'user' AND user_id = $2")).
		WithArgs("n1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.MarkNotificationRead(ctx, models.UserRecipient(5), "n1")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE audience = 'admin' AND is_read = FALSE AND expires_at > NOW() ORDER BY created_at DESC LIMIT $1 OFFSET $2")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("n2", "New order"))
	list, err := s.ListNotifications(ctx, models.AdminRecipient(), true, 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "n2", list[0].ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE is_read = FALSE AND expires_at > NOW() AND audience = 'user' AND user_id = $1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	count, err := s.CountUnreadNotifications(ctx, models.UserRecipient(5))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredNotifications(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notifications WHERE expires_at <= $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := s.DeleteExpiredNotifications(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
