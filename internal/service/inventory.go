package service

import (
	"context"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
	"food-order-service/internal/util"

	"go.uber.org/zap"
)

// StockLine is a quantity taken from one product.
type StockLine struct {
	ProductID int64
	Quantity  int
}

// InventoryLedger moves product stock. There is no reservation phase: Take
// decrements immediately with a conditional update, so stock never goes
// negative, and callers give it back with Release or Restore.
type InventoryLedger struct {
	products ProductStore
	logger   *zap.Logger
}

func NewInventoryLedger(products ProductStore) *InventoryLedger {
	return &InventoryLedger{
		products: products,
		logger:   util.GetLogger(),
	}
}

// Take decrements stock for one line or fails with Policy(insufficient_stock).
func (l *InventoryLedger) Take(ctx context.Context, line StockLine) error {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Take")
	defer span.End()

	ok, err := l.products.DecrementStock(ctx, line.ProductID, line.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Policy("inventory.take", apperr.ReasonInsufficientStock,
			"insufficient stock for product %d", line.ProductID)
	}
	return nil
}

// Release compensates lines taken by a creation that did not complete.
func (l *InventoryLedger) Release(ctx context.Context, lines []StockLine) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Release")
	defer span.End()

	for _, line := range lines {
		if err := l.products.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			util.StockRestoreFailedTotal.Inc()
			l.logger.Error("Failed to compensate stock",
				zap.Int64("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
			continue
		}
		util.StockCompensationsTotal.Inc()
	}
}

// Restore gives back every item of a cancelled order by its ordered quantity.
func (l *InventoryLedger) Restore(ctx context.Context, o *models.Order) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Restore")
	defer span.End()

	for _, item := range o.Items {
		if err := l.products.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			util.StockRestoreFailedTotal.Inc()
			l.logger.Error("Failed to restore stock for cancelled order",
				zap.String("order_number", o.OrderNumber),
				zap.Int64("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
		}
	}
}
