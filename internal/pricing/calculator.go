package pricing

import (
	"fmt"

	"food-order-service/config"
	"food-order-service/internal/models"

	"github.com/shopspring/decimal"
)

// Policy is the delivery pricing in effect for a calculation.
type Policy struct {
	BaseDeliveryCharge    decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
}

// PolicyFromConfig parses the configured amounts.
func PolicyFromConfig(cfg config.PricingConfig) (Policy, error) {
	base, err := decimal.NewFromString(cfg.BaseDeliveryCharge)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid base delivery charge %q: %w", cfg.BaseDeliveryCharge, err)
	}
	threshold, err := decimal.NewFromString(cfg.FreeDeliveryThreshold)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid free delivery threshold %q: %w", cfg.FreeDeliveryThreshold, err)
	}
	if base.IsNegative() || threshold.IsNegative() {
		return Policy{}, fmt.Errorf("delivery pricing must not be negative")
	}
	return Policy{BaseDeliveryCharge: base, FreeDeliveryThreshold: threshold}, nil
}

// Line is one priced cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the result of a calculation. FinalAmount always equals
// TotalAmount + DeliveryCharge - Discount.
type Totals struct {
	TotalAmount    decimal.Decimal
	DeliveryCharge decimal.Decimal
	Discount       decimal.Decimal
	FinalAmount    decimal.Decimal
}

// Calculator is pure: the same lines and method always price the same.
type Calculator struct {
	policy Policy
}

func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

// Subtotal is price x quantity for one line.
func Subtotal(l Line) decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// DeliveryCharge is zero for pickup and for deliveries at or above the
// free-delivery threshold, otherwise the base charge.
func (c *Calculator) DeliveryCharge(method models.DeliveryMethod, total decimal.Decimal) decimal.Decimal {
	if method == models.DeliveryMethodPickup {
		return decimal.Zero
	}
	if total.GreaterThanOrEqual(c.policy.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return c.policy.BaseDeliveryCharge
}

func (c *Calculator) Calculate(lines []Line, method models.DeliveryMethod, discount decimal.Decimal) Totals {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(Subtotal(l))
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	delivery := c.DeliveryCharge(method, total)
	return Totals{
		TotalAmount:    total,
		DeliveryCharge: delivery,
		Discount:       discount,
		FinalAmount:    total.Add(delivery).Sub(discount),
	}
}
