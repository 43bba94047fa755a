package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/linode-vlan/ipallocator/internal/domain"
)

// RequestIDMiddleware stamps every request with an X-Request-Id header,
// generating one if the caller did not supply it, and propagates it into
// the request context for downstream logging.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-Id", requestID)
		c.Set("request_id", requestID)
		ctx := context.WithValue(c.Request.Context(), requestIDKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type requestIDKey struct{}

// CORSMiddleware allows cross-origin GET/POST from any origin: this is an
// operator-facing API with no cookie-based auth, so origin restriction
// buys nothing beyond what a reverse proxy already enforces.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		c.Header("Access-Control-Expose-Headers", "X-Request-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// errorResponse sends the standard domain.Error JSON envelope.
func errorResponse(c *gin.Context, derr *domain.Error) {
	c.JSON(derr.ToHTTPStatus(), derr)
}

// internalError wraps an unclassified error as ERR_INTERNAL_SERVER.
func internalError(err error) *domain.Error {
	return domain.NewError(domain.ErrInternalServer, err.Error(), nil)
}
