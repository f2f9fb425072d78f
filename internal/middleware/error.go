package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/bouwupdate/intake-api/pkg/errors"
	"github.com/bouwupdate/intake-api/pkg/logger"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler renders errors attached with c.Error when the handler did not
// write a response itself.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		traceID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error(e.Err, "Request error",
				"trace_id", traceID,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		}

		lastErr := c.Errors.Last().Err
		status := errors.HTTPStatus(lastErr)
		message := lastErr.Error()
		if status >= 500 {
			message = "internal server error"
		}
		c.JSON(status, ErrorResponse{
			Code:    status,
			Message: message,
			TraceID: traceID,
		})
	}
}
