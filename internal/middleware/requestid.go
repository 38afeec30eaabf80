package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request identifier on the wire; RequestIDKey is
// the gin.Context key it is stored under.
const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestIDMiddleware attaches a request identifier to every request. An
// inbound X-Request-ID (from a load balancer or the caller) is kept as-is;
// otherwise a fresh UUID is generated. The ID is stored in the gin context
// for the request logger and echoed in the response header so support staff
// can match a customer complaint to the exact log lines.
//
// Register it right after gin.Recovery() so everything downstream sees it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
