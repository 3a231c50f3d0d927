package api

import (
	"context"
	"net/http"
	"time"

	"food-order-service/internal/gateway"
	"food-order-service/internal/models"
	"food-order-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NotificationStore is the read side of persisted notifications.
type NotificationStore interface {
	ListNotifications(ctx context.Context, r models.Recipient, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, r models.Recipient, id string) error
	MarkAllNotificationsRead(ctx context.Context, r models.Recipient) (int64, error)
	CountUnreadNotifications(ctx context.Context, r models.Recipient) (int, error)
}

// Subscriber opens realtime notification channels.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (*redis.PubSub, error)
}

// Checker is a dependency probed by the readiness endpoint.
type Checker interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Orders          *service.OrderService
	Machine         *service.StateMachine
	Payments        *service.PaymentReconciler
	Returns         *service.ReturnService
	Provider        gateway.Provider
	Notifications   NotificationStore
	Realtime        Subscriber
	Checks          map[string]Checker
	AdminToken      string
	FrontendBaseURL string
}

// Handler contains HTTP handlers
type Handler struct {
	Deps
	heartbeat time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps, heartbeat: 25 * time.Second}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(identity(h.AdminToken))
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", signedIn(), h.listMyOrders)
		v1.GET("/orders/:number", h.getOrder)
		v1.POST("/orders/:number/cancel", h.cancelOrder)
		v1.POST("/orders/:number/payment-proof", h.submitPaymentProof)
		v1.POST("/orders/:number/pay", h.initiatePayment)
		v1.POST("/orders/:number/return", signedIn(), h.requestReturn)
		v1.POST("/orders/:number/refund", signedIn(), h.requestRefund)
		v1.GET("/refunds/:id", signedIn(), h.getRefund)

		gw := v1.Group("/payments/gateway")
		for _, kind := range []service.CallbackKind{service.CallbackSuccess, service.CallbackFail, service.CallbackCancel} {
			gw.GET("/"+string(kind), h.gatewayRedirect(kind))
			gw.POST("/"+string(kind), h.gatewayRedirect(kind))
		}
		gw.POST("/"+string(service.CallbackIPN), h.gatewayIPN)

		notifications := v1.Group("/notifications", signedIn())
		{
			notifications.GET("", h.listNotifications)
			notifications.GET("/unread-count", h.unreadCount)
			notifications.PATCH("/read-all", h.markAllRead)
			notifications.PATCH("/:id/read", h.markRead)
			notifications.GET("/stream", h.streamNotifications)
		}

		admin := v1.Group("/admin", operatorOnly())
		{
			admin.GET("/orders", h.listOrders)
			admin.PATCH("/orders/:number/status", h.transitionOrder)
			admin.POST("/orders/:number/payment/verify", h.verifyPayment)
			admin.POST("/orders/:number/payment/reject", h.rejectPayment)
			admin.PATCH("/orders/:number/return", h.reviewReturn)
			admin.GET("/refunds", h.listRefunds)
			admin.POST("/refunds/:id/approve", h.approveRefund)
			admin.POST("/refunds/:id/reject", h.rejectRefund)
			admin.POST("/refunds/:id/process", h.processRefund)
			admin.POST("/refunds/:id/complete", h.completeRefund)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports 503 if any is down.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.Checks {
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}
