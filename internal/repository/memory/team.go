package memory

import (
	"context"
	"sort"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type teamMemberRepository struct{ db *DB }

func (r *teamMemberRepository) Create(_ context.Context, member *model.TeamMember) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.teamMembers[member.ID]; ok {
		return repository.ErrDuplicate
	}
	stamp(&member.Base)
	r.db.teamMembers[member.ID] = *member
	return nil
}

func (r *teamMemberRepository) Get(_ context.Context, id string) (*model.TeamMember, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	m, ok := r.db.teamMembers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *teamMemberRepository) ListByProject(_ context.Context, projectID string) ([]*model.TeamMember, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*model.TeamMember
	for _, m := range r.db.teamMembers {
		if m.ProjectID == projectID && m.Active {
			out = append(out, ptr(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type voiceNoteRepository struct{ db *DB }

func (r *voiceNoteRepository) Create(_ context.Context, note *model.VoiceNote) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.voiceNotes[note.ID]; ok {
		return repository.ErrDuplicate
	}
	stamp(&note.Base)
	r.db.voiceNotes[note.ID] = *note
	return nil
}

func (r *voiceNoteRepository) Get(_ context.Context, id string) (*model.VoiceNote, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	n, ok := r.db.voiceNotes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &n, nil
}
