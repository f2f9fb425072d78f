package postgres

import (
	"context"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

const messageColumns = `id, provider_id, sender, project_id, channel_id, text, media_url, media_type,
	media_kind, status, error_message, processed_at, created_at, updated_at`

func (r *messageRepository) Create(ctx context.Context, m *model.InboundMessage) error {
	query := `
		INSERT INTO inbound_messages (` + messageColumns + `)
		VALUES (
			:id, :provider_id, :sender, :project_id, :channel_id, :text, :media_url, :media_type,
			:media_kind, :status, :error_message, :processed_at, :created_at, :updated_at
		)
	`
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt
	_, err := r.db.NamedExecContext(ctx, query, m)
	return mapErr(err, "failed to create inbound message")
}

func (r *messageRepository) Get(ctx context.Context, id string) (*model.InboundMessage, error) {
	var m model.InboundMessage
	if err := r.db.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM inbound_messages WHERE id = $1`, id); err != nil {
		return nil, mapErr(err, "failed to get inbound message")
	}
	return &m, nil
}

func (r *messageRepository) GetByProviderID(ctx context.Context, providerID string) (*model.InboundMessage, error) {
	var m model.InboundMessage
	err := r.db.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM inbound_messages WHERE provider_id = $1`, providerID)
	if err != nil {
		return nil, mapErr(err, "failed to get inbound message by provider id")
	}
	return &m, nil
}

func (r *messageRepository) AssignChannel(ctx context.Context, id, channelID, projectID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE inbound_messages SET channel_id = $1, project_id = $2, updated_at = NOW()
		WHERE id = $3
	`, channelID, projectID, id)
	if err != nil {
		return mapErr(err, "failed to assign channel")
	}
	return expectRow(res, "assign channel")
}

func (r *messageRepository) UpdateStatus(ctx context.Context, id string, status model.MessageStatus, errMsg *string, at time.Time) error {
	var processedAt *time.Time
	if status.Terminal() {
		processedAt = &at
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE inbound_messages
		SET status = $1, error_message = $2, processed_at = COALESCE($3, processed_at), updated_at = $4
		WHERE id = $5
	`, status, errMsg, processedAt, at, id)
	if err != nil {
		return mapErr(err, "failed to update message status")
	}
	return expectRow(res, "update message status")
}

// StartProcessing is a compare-and-set on status so a message scheduled
// twice is only processed by the first caller.
func (r *messageRepository) StartProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE inbound_messages SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, model.MessageStatusProcessing, at, id, model.MessageStatusReceived)
	if err != nil {
		return false, mapErr(err, "failed to start processing message")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *messageRepository) ListReceived(ctx context.Context, before time.Time, limit int) ([]*model.InboundMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM inbound_messages WHERE status = $1 AND created_at < $2 ORDER BY created_at`
	args := []interface{}{model.MessageStatusReceived, before}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	var out []*model.InboundMessage
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, mapErr(err, "failed to list received messages")
	}
	return out, nil
}
