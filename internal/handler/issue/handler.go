package issue

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bouwupdate/intake-api/internal/handler"
	"github.com/bouwupdate/intake-api/internal/middleware"
	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/pkg/errors"
)

type IssueService interface {
	Get(ctx context.Context, id string) (*model.Issue, error)
	List(ctx context.Context, projectID string, status *model.IssueStatus) ([]*model.Issue, error)
	UpdateStatus(ctx context.Context, id string, to model.IssueStatus, reopen bool) (*model.Issue, error)
	AddComment(ctx context.Context, issueID, authorID, body string) (*model.IssueComment, []*model.Mention, error)
	Mention(ctx context.Context, issueID string, memberIDs []string) ([]*model.Mention, error)
}

type Handler struct {
	service IssueService
}

func NewHandler(service IssueService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/projects/:id/issues", h.ListIssues)

	issues := r.Group("/issues")
	{
		issues.GET("/:id", h.GetIssue)
		issues.PATCH("/:id/status", h.UpdateStatus)
		issues.POST("/:id/comments", h.AddComment)
		issues.POST("/:id/mentions", h.Mention)
	}
}

type UpdateStatusRequest struct {
	Status model.IssueStatus `json:"status" binding:"required"`
	// Reopen is required to move a resolved issue back to open.
	Reopen bool `json:"reopen"`
}

type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}

type CommentResponse struct {
	Comment  *model.IssueComment `json:"comment"`
	Mentions []*model.Mention    `json:"mentions"`
}

type MentionRequest struct {
	MemberIDs []string `json:"member_ids" binding:"required,min=1,dive,required"`
}

func (h *Handler) ListIssues(c *gin.Context) {
	var status *model.IssueStatus
	if s := c.Query("status"); s != "" {
		st := model.IssueStatus(s)
		if !st.Valid() {
			handler.RespondError(c, errors.BadRequest("unknown status "+s, nil))
			return
		}
		status = &st
	}

	issues, err := h.service.List(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	if issues == nil {
		issues = []*model.Issue{}
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(issues))
}

func (h *Handler) GetIssue(c *gin.Context) {
	issue, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(issue))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondError(c, errors.BadRequest("invalid request body", err))
		return
	}

	issue, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.Reopen)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(issue))
}

func (h *Handler) AddComment(c *gin.Context) {
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondError(c, errors.BadRequest("invalid request body", err))
		return
	}

	comment, mentions, err := h.service.AddComment(c.Request.Context(), c.Param("id"), c.GetString(middleware.ContextUserID), req.Body)
	if err != nil && comment == nil {
		handler.RespondError(c, err)
		return
	}
	if err != nil {
		// The comment is stored; only mention processing failed.
		_ = c.Error(err)
	}
	if mentions == nil {
		mentions = []*model.Mention{}
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(CommentResponse{Comment: comment, Mentions: mentions}))
}

func (h *Handler) Mention(c *gin.Context) {
	var req MentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondError(c, errors.BadRequest("invalid request body", err))
		return
	}

	mentions, err := h.service.Mention(c.Request.Context(), c.Param("id"), req.MemberIDs)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(mentions))
}
