package httputil

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medimeet/appointment-api/pkg/errors"
)

// DefaultRetryAfter is advertised on retryable failures unless overridden.
var DefaultRetryAfter = time.Second

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response. Errors that are not AppErrors are
// reported as internal without leaking their text.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	if appErr.Retryable() {
		seconds := int(math.Ceil(DefaultRetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	c.AbortWithStatusJSON(appErr.StatusCode(), Response{
		Success: false,
		Error: &Error{
			Kind:      appErr.Kind(),
			Message:   appErr.Message,
			Retryable: appErr.Retryable(),
		},
	})
}
