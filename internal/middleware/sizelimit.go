package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/medimeet/appointment-api/pkg/errors"
	"github.com/medimeet/appointment-api/pkg/httputil"
)

// DefaultMaxBodySize leaves room for the longest appointment notes.
const DefaultMaxBodySize int64 = 64 << 10

// SizeLimit rejects bodies declared larger than maxBytes and caps the reader
// for bodies that lie about their length.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			httputil.RespondWithError(c, apperrors.BadRequest(
				fmt.Sprintf("request body exceeds %d bytes", maxBytes), nil))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
