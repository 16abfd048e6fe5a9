package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/errors"
	"codeberg.org/docforge/server/internal/logger"
)

// resolves who is calling and at which tier.
// a bearer token wins, then X-Client-Id, then the network address.
// anything without a valid token is treated as the free tier.
// a malformed or expired bearer token is rejected instead of downgraded
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				errors.Unauthorized(c, "invalid authorization header format")
				c.Abort()
				return
			}

			claims, err := ValidateJWT(parts[1])
			if err != nil {
				errors.Unauthorized(c, "invalid or expired token")
				c.Abort()
				return
			}

			c.Set(ContextCallerID, claims.UserID)
			c.Set(ContextTier, config.ParseTier(claims.Tier))
			c.Set(ContextUserEmail, claims.Email)
			c.Set(ContextAnonymous, false)
			withRequestLogger(c, claims.UserID)
			c.Next()

			return
		}

		callerID := anonymousID(c)
		c.Set(ContextCallerID, callerID)
		c.Set(ContextTier, config.TierFree)
		c.Set(ContextAnonymous, true)
		withRequestLogger(c, callerID)
		c.Next()
	}
}

// attaches a logger carrying the request id and caller to the request context
func withRequestLogger(c *gin.Context, callerID string) {
	requestID := uuid.NewString()
	c.Header(RequestIDHeader, requestID)

	l := logger.With("request_id", requestID, "caller_id", callerID)
	c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), l))
}

func anonymousID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(ClientIDHeader)); id != "" && len(id) <= maxClientIDLength {
		return "client:" + id
	}

	return "ip:" + c.ClientIP()
}

// rejects anonymous callers. must run after IdentityMiddleware
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextAnonymous) {
			errors.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// returns the caller id set by IdentityMiddleware
func CallerID(c *gin.Context) string {
	return c.GetString(ContextCallerID)
}

// returns the caller tier set by IdentityMiddleware, free when unset
func CallerTier(c *gin.Context) config.Tier {
	if tier, ok := c.Get(ContextTier); ok {
		if t, ok := tier.(config.Tier); ok {
			return t
		}
	}

	return config.TierFree
}
