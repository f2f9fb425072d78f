package postgres

import (
	"context"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type teamMemberRepository struct {
	BaseRepository
}

func NewTeamMemberRepository(base BaseRepository) repository.TeamMemberRepository {
	return &teamMemberRepository{base}
}

func (r *teamMemberRepository) Create(ctx context.Context, m *model.TeamMember) error {
	query := `
		INSERT INTO team_members (id, project_id, name, phone, email, active, created_at, updated_at)
		VALUES (:id, :project_id, :name, :phone, :email, :active, :created_at, :updated_at)
	`
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt
	_, err := r.db.NamedExecContext(ctx, query, m)
	return mapErr(err, "failed to create team member")
}

func (r *teamMemberRepository) Get(ctx context.Context, id string) (*model.TeamMember, error) {
	var m model.TeamMember
	err := r.db.GetContext(ctx, &m, `
		SELECT id, project_id, name, phone, email, active, created_at, updated_at
		FROM team_members WHERE id = $1
	`, id)
	if err != nil {
		return nil, mapErr(err, "failed to get team member")
	}
	return &m, nil
}

func (r *teamMemberRepository) ListByProject(ctx context.Context, projectID string) ([]*model.TeamMember, error) {
	var out []*model.TeamMember
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, project_id, name, phone, email, active, created_at, updated_at
		FROM team_members WHERE project_id = $1 AND active
		ORDER BY name
	`, projectID)
	if err != nil {
		return nil, mapErr(err, "failed to list team members")
	}
	return out, nil
}

type voiceNoteRepository struct {
	BaseRepository
}

func NewVoiceNoteRepository(base BaseRepository) repository.VoiceNoteRepository {
	return &voiceNoteRepository{base}
}

const voiceNoteColumns = `id, project_id, message_id, linked_document_id, audio_url, mime_type, transcript,
	language, duration_seconds, duration_estimated, sender, created_at, updated_at`

func (r *voiceNoteRepository) Create(ctx context.Context, n *model.VoiceNote) error {
	query := `
		INSERT INTO voice_notes (` + voiceNoteColumns + `)
		VALUES (
			:id, :project_id, :message_id, :linked_document_id, :audio_url, :mime_type, :transcript,
			:language, :duration_seconds, :duration_estimated, :sender, :created_at, :updated_at
		)
	`
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.UpdatedAt = n.CreatedAt
	_, err := r.db.NamedExecContext(ctx, query, n)
	return mapErr(err, "failed to create voice note")
}

func (r *voiceNoteRepository) Get(ctx context.Context, id string) (*model.VoiceNote, error) {
	var n model.VoiceNote
	if err := r.db.GetContext(ctx, &n, `SELECT `+voiceNoteColumns+` FROM voice_notes WHERE id = $1`, id); err != nil {
		return nil, mapErr(err, "failed to get voice note")
	}
	return &n, nil
}
