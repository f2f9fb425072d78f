package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type timelineRepository struct {
	BaseRepository
}

func NewTimelineRepository(base BaseRepository) repository.TimelineRepository {
	return &timelineRepository{base}
}

func insertTimelineEvent(ctx context.Context, db sqlx.ExtContext, e *model.TimelineEvent) error {
	query := `
		INSERT INTO timeline_events (
			id, project_id, document_id, type, title, description, phase, metadata, created_at, updated_at
		) VALUES (
			:id, :project_id, :document_id, :type, :title, :description, :phase, :metadata, :created_at, :updated_at
		)
	`
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.UpdatedAt = e.CreatedAt
	if _, err := sqlx.NamedExecContext(ctx, db, query, e); err != nil {
		return fmt.Errorf("failed to create timeline event: %w", err)
	}
	return nil
}

func (r *timelineRepository) Create(ctx context.Context, e *model.TimelineEvent) error {
	return insertTimelineEvent(ctx, r.db, e)
}

func (r *timelineRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]*model.TimelineEvent, error) {
	query := `
		SELECT id, project_id, document_id, type, title, description, phase, metadata, created_at, updated_at
		FROM timeline_events
		WHERE project_id = $1
		ORDER BY created_at DESC
	`
	args := []interface{}{projectID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var out []*model.TimelineEvent
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, mapErr(err, "failed to list timeline events")
	}
	return out, nil
}
