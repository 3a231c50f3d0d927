package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"food-order-service/internal/service"
	"food-order-service/internal/util"

	"github.com/gin-gonic/gin"
)

const (
	headerUserID     = "X-User-ID"
	headerAdminToken = "X-Admin-Token"
	headerOperatorID = "X-Operator-ID"

	actorKey = "actor"
)

// identity resolves the caller. Authentication happens upstream; this
// service trusts the user id header and checks the operator token itself.
func identity(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := service.Guest()

		if token := c.GetHeader(headerAdminToken); token != "" {
			if adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator token"})
				return
			}
			id := c.GetHeader(headerOperatorID)
			if id == "" {
				id = "admin"
			}
			actor = service.Operator(id)
		} else if raw := c.GetHeader(headerUserID); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
				return
			}
			actor = service.Customer(id)
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorOf(c *gin.Context) service.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(service.Actor); ok {
			return a
		}
	}
	return service.Guest()
}

// signedIn rejects guests.
func signedIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorOf(c).Kind == service.ActorGuest {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

func operatorOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorOf(c).IsOperator() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator access required"})
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func pageOf(c *gin.Context) service.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return service.Page{Limit: limit, Offset: offset}
}
