// Package middleware provides HTTP middleware for the dashboard API server.
package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LocalhostOnly creates a middleware that only allows requests from loopback addresses.
//
// Parameters:
//   - allowRemote: If true, allows requests from any IP
//
// Returns:
//   - gin.HandlerFunc: Middleware function
func LocalhostOnly(allowRemote bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowRemote {
			c.Next()
			return
		}

		ip := net.ParseIP(c.ClientIP())
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied: dashboard API is bound to localhost only",
			})
			return
		}

		c.Next()
	}
}

// BodyLimit caps request bodies at maxBytes. Reads past the limit fail and the
// handler answers 413.
//
// Parameters:
//   - maxBytes: Maximum body size, zero or negative disables the limit
//
// Returns:
//   - gin.HandlerFunc: Middleware function
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
