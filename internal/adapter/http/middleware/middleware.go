package middleware

import (
	"net/http"
	"time"

	"depositgateway/internal/core/domain"
	"depositgateway/pkg/apperror"
	"depositgateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Header names conveying caller identity. Authentication itself
	// (how these headers get set) is upstream of this service.
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"

	// CtxCaller is the gin context key for the resolved domain.Caller.
	CtxCaller = "caller"
)

// Identity reads caller identity off trusted upstream headers and attaches
// a domain.Caller to the request context. A missing user ID is treated as
// unauthenticated; an unrecognised role falls back to RoleUser.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			response.Error(c, apperror.ErrUnauthenticated())
			c.Abort()
			return
		}

		role := domain.RoleUser
		if c.GetHeader(HeaderRole) == string(domain.RoleAdmin) {
			role = domain.RoleAdmin
		}

		c.Set(CtxCaller, domain.Caller{UserID: userID, Role: role})
		c.Next()
	}
}

// CallerFrom retrieves the domain.Caller set by Identity. It panics if
// called on a route not behind Identity, which is a routing bug.
func CallerFrom(c *gin.Context) domain.Caller {
	return c.MustGet(CtxCaller).(domain.Caller)
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "INTERNAL",
					"message":    "internal server error",
				})
			}
		}()
		c.Next()
	}
}
