package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bouwupdate/intake-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondError writes err with the status its AppError code maps to.
// Errors without a code are reported as a bare internal error and attached
// to the context so the error middleware logs them.
func RespondError(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= 500 {
		_ = c.Error(err)
		c.JSON(status, NewErrorResponse("internal server error"))
		return
	}
	c.JSON(status, NewErrorResponse(err.Error()))
}
