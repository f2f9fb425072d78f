package health

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := pingFunc(func(context.Context) error { return nil })
	broken := pingFunc(func(context.Context) error { return stderrors.New("down") })

	tests := []struct {
		name   string
		deps   map[string]Pinger
		status int
	}{
		{"no deps", nil, http.StatusOK},
		{"nil dep skipped", map[string]Pinger{"database": nil}, http.StatusOK},
		{"healthy", map[string]Pinger{"database": healthy}, http.StatusOK},
		{"broken", map[string]Pinger{"database": healthy, "redis": broken}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			NewHandler(tt.deps).RegisterRoutes(&engine.RouterGroup)

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.status, w.Code)

			w = httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
