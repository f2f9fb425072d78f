package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type projectRepository struct {
	BaseRepository
}

func NewProjectRepository(base BaseRepository) repository.ProjectRepository {
	return &projectRepository{base}
}

const projectColumns = `id, company_id, name, address, current_phase, phase_updated_at, created_at, updated_at`

func (r *projectRepository) Create(ctx context.Context, p *model.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (:id, :company_id, :name, :address, :current_phase, :phase_updated_at, :created_at, :updated_at)
	`
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	_, err := r.db.NamedExecContext(ctx, query, p)
	return mapErr(err, "failed to create project")
}

func (r *projectRepository) Get(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := r.db.GetContext(ctx, &p, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err, "failed to get project")
	}
	return &p, nil
}

// AdvancePhase locks the project row, checks the phase the caller read and
// writes the new phase together with the transition event.
func (r *projectRepository) AdvancePhase(ctx context.Context, projectID string, from, to model.Phase, event *model.TimelineEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var current model.Phase
		err := tx.GetContext(ctx, &current, `SELECT current_phase FROM projects WHERE id = $1 FOR UPDATE`, projectID)
		if err != nil {
			return mapErr(err, "failed to lock project")
		}
		p := model.Project{CurrentPhase: current}
		if p.EffectivePhase() != from {
			return repository.ErrStalePhase
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE projects SET current_phase = $1, phase_updated_at = $2, updated_at = $2
			WHERE id = $3
		`, to, now, projectID); err != nil {
			return fmt.Errorf("failed to update project phase: %w", err)
		}

		if event != nil {
			if err := insertTimelineEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *projectRepository) ListSchedule(ctx context.Context, projectID string) ([]*model.ProjectPhase, error) {
	query := `
		SELECT id, project_id, phase, position, status, started_at, completed_at, created_at, updated_at
		FROM project_phases
		WHERE project_id = $1
		ORDER BY position
	`
	var out []*model.ProjectPhase
	if err := r.db.SelectContext(ctx, &out, query, projectID); err != nil {
		return nil, mapErr(err, "failed to list project phases")
	}
	return out, nil
}

func (r *projectRepository) SaveSchedulePhase(ctx context.Context, e *model.ProjectPhase) error {
	query := `
		INSERT INTO project_phases (
			id, project_id, phase, position, status, started_at, completed_at, created_at, updated_at
		) VALUES (
			:id, :project_id, :phase, :position, :status, :started_at, :completed_at, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	_, err := r.db.NamedExecContext(ctx, query, e)
	return mapErr(err, "failed to save project phase")
}
