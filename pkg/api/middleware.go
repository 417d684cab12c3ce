package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Tenant and user scoping headers.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

const tenantKey = "tenant_id"

// requireTenant rejects requests without a valid tenant id header.
func requireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderTenantID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": HeaderTenantID + " header is required"})
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + HeaderTenantID + " header"})
			return
		}
		c.Set(tenantKey, id)
		c.Next()
	}
}

// tenantID returns the tenant set by requireTenant.
func tenantID(c *gin.Context) uuid.UUID {
	return c.MustGet(tenantKey).(uuid.UUID)
}

// userID returns the optional user header, nil when absent or malformed.
func userID(c *gin.Context) *uuid.UUID {
	raw := c.GetHeader(HeaderUserID)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
