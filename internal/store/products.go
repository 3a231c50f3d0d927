package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
)

const productColumns = `id, name, price, discount_price, stock, min_qty, max_qty, is_available, is_visible, updated_at`

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("product.get", "product", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, apperr.Internal(err, "product.get", "failed to load product")
	}
	return &product, nil
}

// DecrementStock takes quantity units in one conditional update. It reports
// false, without error, when the row has fewer than quantity units left.
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return false, apperr.Internal(err, "product.decrement_stock", "failed to update stock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal(err, "product.decrement_stock", "failed to update stock")
	}
	return n == 1, nil
}

// IncrementStock returns quantity units to the product (cancellation and compensation).
func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return apperr.Internal(err, "product.increment_stock", "failed to restore stock")
	}
	return nil
}
