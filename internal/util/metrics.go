package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"to"})

	OrderUpdateRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_update_retries_total",
		Help: "Total number of order writes retried after a stale version",
	})

	StockCompensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_compensations_total",
		Help: "Total number of stock decrements rolled back",
	})

	StockRestoreFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_restore_failed_total",
		Help: "Total number of stock restores that failed and need manual repair",
	})

	PaymentReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Total number of payment reconciliations",
	}, []string{"path", "outcome"})

	GatewayValidationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_validation_latency_seconds",
		Help:    "Latency of server-to-server gateway validation calls",
		Buckets: prometheus.DefBuckets,
	})

	ReturnRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "return_requests_total",
		Help: "Total number of return requests by outcome",
	}, []string{"outcome"})

	RefundTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_transitions_total",
		Help: "Total number of refund status transitions",
	}, []string{"to"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Total number of notification deliveries by channel and outcome",
	}, []string{"channel", "outcome"})

	NotificationDeliveryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notification_delivery_latency_seconds",
		Help:    "Latency of push and email deliveries",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	NotificationsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_purged_total",
		Help: "Total number of expired notifications deleted",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
