// internal/api/middleware.go
package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"autohaven/internal/common/auth"
	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/models"
)

const principalKey = "principal"

// RequestLogger logs one line per request with latency and status.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if c.Writer.Status() >= 500 {
			log.Error("request failed", fields)
		} else {
			log.Info("request completed", fields)
		}
	}
}

// Recovery converts panics into a 500 with the uniform error body.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", map[string]interface{}{
					"path":  c.Request.URL.Path,
					"panic": r,
				})
				respondError(c, apperrors.NewInternalError(nil))
			}
		}()
		c.Next()
	}
}

// CORS allows browser clients to reach the API from any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// Authenticated resolves the bearer token through the verifier and stashes
// the principal on the context. Missing or bad credentials end the request.
func Authenticated(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(c, apperrors.NewAuthenticationError("missing bearer token"))
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// AdminOnly requires the authenticated principal to hold the admin role.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := principalFrom(c)
		if principal == nil {
			respondError(c, apperrors.NewAuthenticationError("not authenticated"))
			return
		}
		if principal.Role != string(models.RoleAdmin) {
			respondError(c, apperrors.NewAuthorizationError("admin role required"))
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) *auth.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := v.(*auth.Principal)
	return principal
}
