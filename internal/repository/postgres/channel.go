package postgres

import (
	"context"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type channelRepository struct {
	BaseRepository
}

func NewChannelRepository(base BaseRepository) repository.ChannelRepository {
	return &channelRepository{base}
}

const channelColumns = `id, phone, project_id, company_id, worker_name, verified, verified_at,
	code_hash, code_expires_at, active, deactivated_at, created_at, updated_at`

// Create relies on a partial unique index over phone for active channels.
func (r *channelRepository) Create(ctx context.Context, c *model.Channel) error {
	query := `
		INSERT INTO channels (` + channelColumns + `)
		VALUES (
			:id, :phone, :project_id, :company_id, :worker_name, :verified, :verified_at,
			:code_hash, :code_expires_at, :active, :deactivated_at, :created_at, :updated_at
		)
	`
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	_, err := r.db.NamedExecContext(ctx, query, c)
	return mapErr(err, "failed to create channel")
}

func (r *channelRepository) Get(ctx context.Context, id string) (*model.Channel, error) {
	var c model.Channel
	if err := r.db.GetContext(ctx, &c, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id); err != nil {
		return nil, mapErr(err, "failed to get channel")
	}
	return &c, nil
}

func (r *channelRepository) GetActiveByPhone(ctx context.Context, phone string) (*model.Channel, error) {
	var c model.Channel
	err := r.db.GetContext(ctx, &c, `SELECT `+channelColumns+` FROM channels WHERE phone = $1 AND active`, phone)
	if err != nil {
		return nil, mapErr(err, "failed to get channel by phone")
	}
	return &c, nil
}

// MarkVerified only matches unverified rows, so concurrent verifications of
// the same code update once.
func (r *channelRepository) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE channels
		SET verified = TRUE, verified_at = $1, code_hash = NULL, code_expires_at = NULL, updated_at = $1
		WHERE id = $2 AND NOT verified
	`, at, id)
	if err != nil {
		return false, mapErr(err, "failed to verify channel")
	}
	if err := expectRow(res, "verify channel"); err != nil {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return false, gerr
		}
		return false, nil
	}
	return true, nil
}

func (r *channelRepository) SetCode(ctx context.Context, id, codeHash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE channels SET code_hash = $1, code_expires_at = $2, updated_at = NOW()
		WHERE id = $3
	`, codeHash, expiresAt, id)
	if err != nil {
		return mapErr(err, "failed to set channel code")
	}
	return expectRow(res, "set channel code")
}

func (r *channelRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE channels SET active = FALSE, deactivated_at = COALESCE(deactivated_at, $1), updated_at = $1
		WHERE id = $2
	`, at, id)
	if err != nil {
		return mapErr(err, "failed to deactivate channel")
	}
	return expectRow(res, "deactivate channel")
}
