package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/domain/entity"
)

// userKey is the gin context key holding the resolved actor
const userKey = "actor"

// IdentityMiddleware resolves the acting user from the X-User-ID header.
// Token issuance and verification happen upstream; by the time a request
// reaches this service the gateway has already authenticated it.
func IdentityMiddleware(userRepo port.UserRepository, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing X-User-ID header",
			})
			return
		}

		user, err := userRepo.GetByID(c.Request.Context(), userID)
		if err != nil {
			if !errors.Is(err, entity.ErrNotFound) {
				logger.Error("Failed to resolve user", "user_id", userID, "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "unknown user",
			})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// actorFrom returns the resolved user set by IdentityMiddleware
func actorFrom(c *gin.Context) *entity.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*entity.User); ok {
			return user
		}
	}
	return nil
}
