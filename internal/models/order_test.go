package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeFinal(t *testing.T) {
	o := &Order{
		TotalAmount:    decimal.NewFromInt(400),
		DeliveryCharge: decimal.NewFromInt(60),
		Discount:       decimal.NewFromInt(25),
		FinalAmount:    decimal.NewFromInt(1),
	}

	o.RecomputeFinal()

	assert.True(t, o.FinalAmount.Equal(decimal.NewFromInt(435)), "got %s", o.FinalAmount)
}

func TestAppendStatusRecordsHistory(t *testing.T) {
	o := &Order{OrderStatus: OrderStatusPending}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	o.AppendStatus(OrderStatusConfirmed, "operator:7", "", at)

	assert.Equal(t, OrderStatusConfirmed, o.OrderStatus)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, StatusEntry{Status: OrderStatusConfirmed, Timestamp: at, Actor: "operator:7"}, o.StatusHistory[0])
}

func TestProductUnitPrice(t *testing.T) {
	p := &Product{Price: decimal.NewFromInt(120)}
	assert.True(t, p.UnitPrice().Equal(decimal.NewFromInt(120)))

	p.DiscountPrice = decimal.NewNullDecimal(decimal.NewFromInt(99))
	assert.True(t, p.UnitPrice().Equal(decimal.NewFromInt(99)))
}

func TestProductAcceptsQuantity(t *testing.T) {
	p := &Product{MinQty: 2, MaxQty: 5}

	assert.False(t, p.AcceptsQuantity(1))
	assert.True(t, p.AcceptsQuantity(2))
	assert.True(t, p.AcceptsQuantity(5))
	assert.False(t, p.AcceptsQuantity(6))
	assert.False(t, (&Product{}).AcceptsQuantity(0))
}

func TestJSONColumnsScan(t *testing.T) {
	var items OrderItems
	require.NoError(t, items.Scan([]byte(`[{"product_id":3,"name":"Biryani","price":"180","quantity":2,"subtotal":"360"}]`)))
	require.Len(t, items, 1)
	assert.Equal(t, "Biryani", items[0].Name)
	assert.True(t, items[0].Subtotal.Equal(decimal.NewFromInt(360)))

	var rr ReturnRequest
	require.NoError(t, rr.Scan(nil))
	assert.Equal(t, ReturnRequest{}, rr)

	var c Customer
	assert.Error(t, c.Scan(42))
}

func TestPaymentMethodVariants(t *testing.T) {
	m, err := ParsePaymentMethod(PaymentBkash, "TX1", "https://cdn/proof.png")
	require.NoError(t, err)
	assert.Equal(t, ManualPayment{Provider: PaymentBkash, TransactionID: "TX1", ProofURL: "https://cdn/proof.png"}, m)

	m, err = ParsePaymentMethod(PaymentGateway, "", "")
	require.NoError(t, err)
	assert.IsType(t, GatewayPayment{}, m)

	_, err = ParsePaymentMethod("paypal", "", "")
	assert.Error(t, err)
}

func TestRefundTransitions(t *testing.T) {
	assert.True(t, RefundStatusPending.CanTransition(RefundStatusApproved))
	assert.True(t, RefundStatusPending.CanTransition(RefundStatusRejected))
	assert.True(t, RefundStatusApproved.CanTransition(RefundStatusProcessed))
	assert.True(t, RefundStatusProcessed.CanTransition(RefundStatusCompleted))
	assert.False(t, RefundStatusPending.CanTransition(RefundStatusCompleted))
	assert.False(t, RefundStatusRejected.CanTransition(RefundStatusApproved))
	assert.False(t, RefundStatusCompleted.CanTransition(RefundStatusPending))
}

func TestOrderJSONNestsPaymentAndDelivery(t *testing.T) {
	o := &Order{
		OrderNumber: "ORD-1",
		PaymentInfo: PaymentInfo{Method: PaymentGateway, Status: PaymentStatusPending},
		DeliveryInfo: DeliveryInfo{Method: DeliveryMethodPickup},
	}

	raw, err := json.Marshal(o)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "gateway", out["payment_info"].(map[string]any)["method"])
	assert.Equal(t, "pickup", out["delivery_info"].(map[string]any)["method"])
}
