package postgres

import (
	"context"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type documentRepository struct {
	BaseRepository
}

func NewDocumentRepository(base BaseRepository) repository.DocumentRepository {
	return &documentRepository{base}
}

const documentColumns = `d.id, d.project_id, d.company_id, d.message_id, d.sender, d.submitted_by, d.name,
	d.file_url, d.mime_type, d.media_kind, d.classification, d.phase, d.phase_confidence, d.verified,
	d.created_at, d.updated_at`

func (r *documentRepository) Create(ctx context.Context, d *model.Document) error {
	query := `
		INSERT INTO documents (
			id, project_id, company_id, message_id, sender, submitted_by, name,
			file_url, mime_type, media_kind, classification, phase, phase_confidence, verified,
			created_at, updated_at
		) VALUES (
			:id, :project_id, :company_id, :message_id, :sender, :submitted_by, :name,
			:file_url, :mime_type, :media_kind, :classification, :phase, :phase_confidence, :verified,
			:created_at, :updated_at
		)
	`
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt
	_, err := r.db.NamedExecContext(ctx, query, d)
	return mapErr(err, "failed to create document")
}

func (r *documentRepository) Get(ctx context.Context, id string) (*model.Document, error) {
	var d model.Document
	if err := r.db.GetContext(ctx, &d, `SELECT `+documentColumns+` FROM documents d WHERE d.id = $1`, id); err != nil {
		return nil, mapErr(err, "failed to get document")
	}
	return &d, nil
}

func (r *documentRepository) ListRecentClassified(ctx context.Context, projectID string, limit int) ([]*model.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents d
		WHERE d.project_id = $1
		  AND d.media_kind = 'image'
		  AND COALESCE(d.classification->>'source', '') NOT IN ('', 'empty')
		ORDER BY d.created_at DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 10
	}
	var out []*model.Document
	if err := r.db.SelectContext(ctx, &out, query, projectID, limit); err != nil {
		return nil, mapErr(err, "failed to list recent documents")
	}
	return out, nil
}

// LatestPhotoBySender joins on the source message so only PROCESSED photos
// inside the window qualify.
func (r *documentRepository) LatestPhotoBySender(ctx context.Context, projectID, sender string, since, until time.Time) (*model.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents d
		JOIN inbound_messages m ON m.id = d.message_id
		WHERE d.project_id = $1
		  AND d.sender = $2
		  AND d.media_kind = 'image'
		  AND m.status = 'PROCESSED'
		  AND m.created_at >= $3
		  AND m.created_at <= $4
		ORDER BY m.created_at DESC
		LIMIT 1
	`
	var d model.Document
	if err := r.db.GetContext(ctx, &d, query, projectID, sender, since, until); err != nil {
		return nil, mapErr(err, "failed to find latest photo")
	}
	return &d, nil
}
