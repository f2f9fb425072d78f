package channel

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bouwupdate/intake-api/internal/handler"
	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/sender"
	"github.com/bouwupdate/intake-api/pkg/errors"
)

// Registrar manages worker channels.
type Registrar interface {
	Invite(ctx context.Context, req sender.InviteRequest) (*model.Channel, string, error)
	Reinvite(ctx context.Context, channelID string) (*model.Channel, string, error)
	Deactivate(ctx context.Context, channelID string) (*model.Channel, error)
}

type Handler struct {
	registrar Registrar
}

func NewHandler(registrar Registrar) *Handler {
	return &Handler{registrar: registrar}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	channels := r.Group("/channels")
	{
		channels.POST("", h.Invite)
		channels.POST("/:id/reinvite", h.Reinvite)
		channels.POST("/:id/deactivate", h.Deactivate)
	}
}

// InviteResponse returns the one-time code to the operator so it can be
// handed over in person when the WhatsApp send fails.
type InviteResponse struct {
	ID            string     `json:"id"`
	Phone         string     `json:"phone"`
	ProjectID     string     `json:"project_id"`
	WorkerName    string     `json:"worker_name"`
	Verified      bool       `json:"verified"`
	Active        bool       `json:"active"`
	Code          string     `json:"code,omitempty"`
	CodeExpiresAt *time.Time `json:"code_expires_at,omitempty"`
}

func newInviteResponse(ch *model.Channel, code string) InviteResponse {
	return InviteResponse{
		ID:            ch.ID,
		Phone:         ch.Phone,
		ProjectID:     ch.ProjectID,
		WorkerName:    ch.WorkerName,
		Verified:      ch.Verified,
		Active:        ch.Active,
		Code:          code,
		CodeExpiresAt: ch.CodeExpiresAt,
	}
}

func (h *Handler) Invite(c *gin.Context) {
	var req sender.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondError(c, errors.BadRequest("invalid request body", err))
		return
	}

	ch, code, err := h.registrar.Invite(c.Request.Context(), req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(newInviteResponse(ch, code)))
}

func (h *Handler) Reinvite(c *gin.Context) {
	ch, code, err := h.registrar.Reinvite(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(newInviteResponse(ch, code)))
}

func (h *Handler) Deactivate(c *gin.Context) {
	ch, err := h.registrar.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(newInviteResponse(ch, "")))
}
