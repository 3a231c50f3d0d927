package service

import (
	"context"
	"errors"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
	"food-order-service/internal/util"
)

// maxStaleRetries bounds reload-and-retry after a concurrent writer bumped the
// version: one write plus at most this many retries.
const maxStaleRetries = 3

// errNoChange tells updateOrder the mutation found nothing to do.
var errNoChange = errors.New("no change")

// updateOrder loads the order, applies mutate and writes it back under the
// optimistic version check. mutate runs again on a fresh copy after a stale
// write, so it must derive everything from the order it is given. The bool
// result is false when mutate returned errNoChange.
func updateOrder(ctx context.Context, orders OrderStore, orderNumber string, mutate func(*models.Order) error) (*models.Order, bool, error) {
	for attempt := 0; ; attempt++ {
		order, err := orders.GetOrderByNumber(ctx, orderNumber)
		if err != nil {
			return nil, false, err
		}

		if err := mutate(order); err != nil {
			if errors.Is(err, errNoChange) {
				return order, false, nil
			}
			util.FailSpan(ctx, err)
			return nil, false, err
		}

		err = orders.UpdateOrder(ctx, order)
		if err == nil {
			return order, true, nil
		}
		if apperr.ReasonOf(err) == apperr.ReasonStaleVersion && attempt < maxStaleRetries {
			util.OrderUpdateRetriesTotal.Inc()
			continue
		}
		util.FailSpan(ctx, err)
		return nil, false, err
	}
}
