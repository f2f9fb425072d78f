package project

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bouwupdate/intake-api/internal/handler"
	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/service/phase"
)

// StatusReader runs a phase analysis without applying it.
type StatusReader interface {
	Status(ctx context.Context, projectID string) (*model.Project, *phase.Analysis, error)
}

type Handler struct {
	status StatusReader
}

func NewHandler(status StatusReader) *Handler {
	return &Handler{status: status}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/projects/:id/phase", h.GetPhase)
}

type PhaseResponse struct {
	Project  *model.Project  `json:"project"`
	Phase    model.Phase     `json:"phase"`
	Label    string          `json:"label"`
	Analysis *phase.Analysis `json:"analysis"`
}

func (h *Handler) GetPhase(c *gin.Context) {
	project, analysis, err := h.status.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	current := project.EffectivePhase()
	c.JSON(http.StatusOK, handler.NewSuccessResponse(PhaseResponse{
		Project:  project,
		Phase:    current,
		Label:    current.Label(),
		Analysis: analysis,
	}))
}
