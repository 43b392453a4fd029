package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/pos_sync/utils"
)

// ScopeMiddleware lifts the tenant identity and request metadata headers into
// the request context. Requests without a scope are let through; routes that
// need one reject them individually.
func ScopeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			ctx = utils.SetTokenInContext(ctx, strings.TrimPrefix(auth, "Bearer "))
		}
		if businessID := strings.TrimSpace(c.GetHeader("X-Business-Id")); businessID != "" {
			ctx = utils.SetBusinessIdInContext(ctx, businessID)
		}
		if userID := strings.TrimSpace(c.GetHeader("X-User-Id")); userID != "" {
			ctx = utils.SetUserIdInContext(ctx, userID)
		}

		correlationID := strings.TrimSpace(c.GetHeader("X-Correlation-Id"))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)
		c.Header("X-Correlation-Id", correlationID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
