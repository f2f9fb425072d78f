package postgres

import (
	"context"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type mentionRepository struct {
	BaseRepository
}

func NewMentionRepository(base BaseRepository) repository.MentionRepository {
	return &mentionRepository{base}
}

const mentionColumns = `id, issue_id, team_member_id, notified, notified_at, attempts, last_error, claimed_until, created_at, updated_at`

// Upsert inserts or, on the (issue_id, team_member_id) unique key, leaves the
// existing row untouched and loads it.
func (r *mentionRepository) Upsert(ctx context.Context, m *model.Mention) (bool, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt

	query := `
		INSERT INTO mentions (` + mentionColumns + `)
		VALUES (:id, :issue_id, :team_member_id, :notified, :notified_at, :attempts, :last_error, :claimed_until, :created_at, :updated_at)
		ON CONFLICT (issue_id, team_member_id) DO NOTHING
	`
	res, err := r.db.NamedExecContext(ctx, query, m)
	if err != nil {
		return false, mapErr(err, "failed to upsert mention")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	err = r.db.GetContext(ctx, m, `SELECT `+mentionColumns+` FROM mentions WHERE issue_id = $1 AND team_member_id = $2`,
		m.IssueID, m.TeamMemberID)
	return false, mapErr(err, "failed to load existing mention")
}

func (r *mentionRepository) Get(ctx context.Context, id string) (*model.Mention, error) {
	var m model.Mention
	if err := r.db.GetContext(ctx, &m, `SELECT `+mentionColumns+` FROM mentions WHERE id = $1`, id); err != nil {
		return nil, mapErr(err, "failed to get mention")
	}
	return &m, nil
}

func (r *mentionRepository) MarkNotified(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mentions SET notified = TRUE, notified_at = $1, claimed_until = NULL, updated_at = $1
		WHERE id = $2 AND NOT notified
	`, at, id)
	if err != nil {
		return false, mapErr(err, "failed to mark mention notified")
	}
	if err := expectRow(res, "mark mention notified"); err != nil {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return false, gerr
		}
		return false, nil
	}
	return true, nil
}

// Claim is a single conditional update, so of two processes racing for the
// same mention exactly one sees a row affected.
func (r *mentionRepository) Claim(ctx context.Context, id string, now, until time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mentions SET claimed_until = $1, updated_at = $2
		WHERE id = $3 AND NOT notified AND (claimed_until IS NULL OR claimed_until <= $2)
	`, until, now, id)
	if err != nil {
		return false, mapErr(err, "failed to claim mention")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *mentionRepository) RecordFailure(ctx context.Context, id, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mentions SET attempts = attempts + 1, last_error = $1, claimed_until = NULL, updated_at = NOW()
		WHERE id = $2
	`, errMsg, id)
	if err != nil {
		return mapErr(err, "failed to record mention failure")
	}
	return expectRow(res, "record mention failure")
}

func (r *mentionRepository) ListPending(ctx context.Context, limit int) ([]*model.Mention, error) {
	query := `SELECT ` + mentionColumns + ` FROM mentions WHERE NOT notified ORDER BY created_at`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	var out []*model.Mention
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, mapErr(err, "failed to list pending mentions")
	}
	return out, nil
}

func (r *mentionRepository) ListByIssue(ctx context.Context, issueID string) ([]*model.Mention, error) {
	var out []*model.Mention
	err := r.db.SelectContext(ctx, &out, `SELECT `+mentionColumns+` FROM mentions WHERE issue_id = $1 ORDER BY created_at`, issueID)
	if err != nil {
		return nil, mapErr(err, "failed to list mentions")
	}
	return out, nil
}
