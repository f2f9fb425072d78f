package postgres

import (
	"context"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type issueRepository struct {
	BaseRepository
}

func NewIssueRepository(base BaseRepository) repository.IssueRepository {
	return &issueRepository{base}
}

const issueColumns = `id, project_id, title, description, severity, status, assignee_id, phase,
	source_document_id, resolved_at, created_at, updated_at`

func (r *issueRepository) Create(ctx context.Context, i *model.Issue) error {
	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES (
			:id, :project_id, :title, :description, :severity, :status, :assignee_id, :phase,
			:source_document_id, :resolved_at, :created_at, :updated_at
		)
	`
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	i.UpdatedAt = i.CreatedAt
	_, err := r.db.NamedExecContext(ctx, query, i)
	return mapErr(err, "failed to create issue")
}

func (r *issueRepository) Get(ctx context.Context, id string) (*model.Issue, error) {
	var i model.Issue
	if err := r.db.GetContext(ctx, &i, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, id); err != nil {
		return nil, mapErr(err, "failed to get issue")
	}
	return &i, nil
}

func (r *issueRepository) UpdateStatus(ctx context.Context, id string, status model.IssueStatus, resolvedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE issues SET status = $1, resolved_at = $2, updated_at = NOW()
		WHERE id = $3
	`, status, resolvedAt, id)
	if err != nil {
		return mapErr(err, "failed to update issue status")
	}
	return expectRow(res, "update issue status")
}

func (r *issueRepository) ListByProject(ctx context.Context, projectID string, status *model.IssueStatus) ([]*model.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE project_id = $1`
	args := []interface{}{projectID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at`

	var out []*model.Issue
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, mapErr(err, "failed to list issues")
	}
	return out, nil
}

func (r *issueRepository) AddComment(ctx context.Context, c *model.IssueComment) error {
	query := `
		INSERT INTO issue_comments (id, issue_id, author_id, body, created_at, updated_at)
		VALUES (:id, :issue_id, :author_id, :body, :created_at, :updated_at)
	`
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	_, err := r.db.NamedExecContext(ctx, query, c)
	return mapErr(err, "failed to add issue comment")
}
