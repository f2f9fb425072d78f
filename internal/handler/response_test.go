package handler

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/bouwupdate/intake-api/pkg/errors"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"not found", errors.NotFound("issue", nil), http.StatusNotFound, "issue not found"},
		{"bad request", errors.BadRequest("body is required", nil), http.StatusBadRequest, "body is required"},
		{"conflict", errors.NewConflict("already active", nil), http.StatusConflict, "already active"},
		{"plain error hides detail", stderrors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondError(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}
