package mention

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bouwupdate/intake-api/internal/handler"
	"github.com/bouwupdate/intake-api/internal/service/notification"
	"github.com/bouwupdate/intake-api/pkg/errors"
)

const defaultRetryLimit = 100

type Retrier interface {
	RetryPending(ctx context.Context, limit int) (notification.RetryStats, error)
	Notify(ctx context.Context, mentionID string) error
}

type Handler struct {
	retrier Retrier
}

func NewHandler(retrier Retrier) *Handler {
	return &Handler{retrier: retrier}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	mentions := r.Group("/mentions")
	{
		mentions.POST("/retry", h.RetryPending)
		mentions.POST("/:id/notify", h.Notify)
	}
}

func (h *Handler) RetryPending(c *gin.Context) {
	limit := defaultRetryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			handler.RespondError(c, errors.BadRequest("limit must be a positive integer", err))
			return
		}
		limit = n
	}

	stats, err := h.retrier.RetryPending(c.Request.Context(), limit)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

// Notify delivers one mention now. A delivery failure is reported as 502 so
// the caller can tell it apart from a missing mention. A member without any
// address is closed without a send.
func (h *Handler) Notify(c *gin.Context) {
	err := h.retrier.Notify(c.Request.Context(), c.Param("id"))
	if stderrors.Is(err, notification.ErrNoReachableAddress) {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"notified": false, "reason": err.Error()}))
		return
	}
	if errors.CodeOf(err) == errors.ErrNotificationFailed {
		c.JSON(http.StatusBadGateway, handler.NewErrorResponse(err.Error()))
		return
	}
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"notified": true}))
}
