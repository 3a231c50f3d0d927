package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"food-order-service/internal/models"
)

type statusMessage struct {
	title    string
	message  string
	priority models.Priority
}

// statusMessages lists the transitions customers hear about.
var statusMessages = map[models.OrderStatus]statusMessage{
	models.OrderStatusPreparing:      {"Order Being Prepared", "Your order %s is being prepared.", models.PriorityMedium},
	models.OrderStatusReady:          {"Order Ready", "Your order %s is ready.", models.PriorityHigh},
	models.OrderStatusOutForDelivery: {"Out for Delivery", "Your order %s is on its way.", models.PriorityHigh},
	models.OrderStatusDelivered:      {"Order Delivered", "Your order %s has been delivered. Enjoy your meal!", models.PriorityMedium},
	models.OrderStatusCancelled:      {"Order Cancelled", "Your order %s has been cancelled.", models.PriorityHigh},
}

// StatusNotifies reports whether entering status triggers a customer notification.
func StatusNotifies(status models.OrderStatus) bool {
	_, ok := statusMessages[status]
	return ok
}

func statusText(o *models.Order) (statusMessage, bool) {
	m, ok := statusMessages[o.OrderStatus]
	if !ok {
		return m, false
	}
	msg := fmt.Sprintf(m.message, o.OrderNumber)
	if o.OrderStatus == models.OrderStatusReady && o.DeliveryInfo.Method == models.DeliveryMethodPickup {
		msg = fmt.Sprintf("Your order %s is ready for pickup.", o.OrderNumber)
	}
	return statusMessage{title: m.title, message: msg, priority: m.priority}, true
}

var refundMessages = map[models.RefundStatus]string{
	models.RefundStatusPending:   "A refund of %s for order %s has been requested.",
	models.RefundStatusApproved:  "Your refund of %s for order %s has been approved.",
	models.RefundStatusRejected:  "Your refund for order %s was rejected.",
	models.RefundStatusProcessed: "Your refund of %s for order %s has been processed.",
	models.RefundStatusCompleted: "Your refund of %s for order %s is complete.",
}

func refundText(r *models.Refund) string {
	if r.Status == models.RefundStatusRejected {
		msg := fmt.Sprintf(refundMessages[r.Status], r.OrderNumber)
		if r.RejectionReason != "" {
			msg += " Reason: " + r.RejectionReason
		}
		return msg
	}
	return fmt.Sprintf(refundMessages[r.Status], r.Amount.StringFixed(2), r.OrderNumber)
}

var (
	orderPlacedEmail = template.Must(template.New("order_placed").Parse(
		`Hi {{.Customer.Name}},

Thank you for your order {{.OrderNumber}}.
{{range .Items}}
  {{.Quantity}} x {{.Name}} @ {{.Price.StringFixed 2}} = {{.Subtotal.StringFixed 2}}{{end}}

Subtotal:  {{.TotalAmount.StringFixed 2}}
Delivery:  {{.DeliveryCharge.StringFixed 2}}
Discount:  {{.Discount.StringFixed 2}}
Total:     {{.FinalAmount.StringFixed 2}}

Payment method: {{.PaymentInfo.Method}}
`))

	operatorOrderEmail = template.Must(template.New("operator_order").Parse(
		`New order {{.OrderNumber}} from {{.Customer.Name}} ({{.Customer.Phone}}).
Delivery: {{.DeliveryInfo.Method}} {{.DeliveryInfo.Address}}
Total: {{.FinalAmount.StringFixed 2}} via {{.PaymentInfo.Method}}
`))

	statusEmail = template.Must(template.New("status").Parse(
		`Hi {{.Name}},

{{.Message}}

Order: {{.OrderNumber}}
Status: {{.Status}}
`))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
