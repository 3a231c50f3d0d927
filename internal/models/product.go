package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view this service needs. The catalog owns the row;
// order creation and cancellation only move Stock.
type Product struct {
	ID            int64               `db:"id" json:"id"`
	Name          string              `db:"name" json:"name"`
	Price         decimal.Decimal     `db:"price" json:"price"`
	DiscountPrice decimal.NullDecimal `db:"discount_price" json:"discount_price"`
	Stock         int                 `db:"stock" json:"stock"`
	MinQty        int                 `db:"min_qty" json:"min_qty"`
	MaxQty        int                 `db:"max_qty" json:"max_qty"`
	IsAvailable   bool                `db:"is_available" json:"is_available"`
	IsVisible     bool                `db:"is_visible" json:"is_visible"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// UnitPrice is the discount price when one is set, otherwise the base price.
func (p *Product) UnitPrice() decimal.Decimal {
	if p.DiscountPrice.Valid && p.DiscountPrice.Decimal.IsPositive() {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

// AcceptsQuantity checks the configured per-order bounds. A zero bound is unset.
func (p *Product) AcceptsQuantity(qty int) bool {
	if p.MinQty > 0 && qty < p.MinQty {
		return false
	}
	if p.MaxQty > 0 && qty > p.MaxQty {
		return false
	}
	return qty > 0
}
