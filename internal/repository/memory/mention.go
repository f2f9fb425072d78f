package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type mentionRepository struct{ db *DB }

func (r *mentionRepository) Upsert(_ context.Context, mention *model.Mention) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.mentions {
		if m.IssueID == mention.IssueID && m.TeamMemberID == mention.TeamMemberID {
			*mention = m
			return false, nil
		}
	}
	stamp(&mention.Base)
	r.db.mentions[mention.ID] = *mention
	return true, nil
}

func (r *mentionRepository) Get(_ context.Context, id string) (*model.Mention, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	m, ok := r.db.mentions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *mentionRepository) MarkNotified(_ context.Context, id string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.mentions[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if m.Notified {
		return false, nil
	}
	m.Notified = true
	m.NotifiedAt = &at
	m.ClaimedUntil = nil
	m.UpdatedAt = at
	r.db.mentions[id] = m
	return true, nil
}

func (r *mentionRepository) Claim(_ context.Context, id string, now, until time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.mentions[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if m.Notified || (m.ClaimedUntil != nil && m.ClaimedUntil.After(now)) {
		return false, nil
	}
	m.ClaimedUntil = &until
	m.UpdatedAt = now
	r.db.mentions[id] = m
	return true, nil
}

func (r *mentionRepository) RecordFailure(_ context.Context, id, errMsg string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.mentions[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Attempts++
	m.LastError = &errMsg
	m.ClaimedUntil = nil
	m.UpdatedAt = time.Now().UTC()
	r.db.mentions[id] = m
	return nil
}

func (r *mentionRepository) ListPending(_ context.Context, limit int) ([]*model.Mention, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*model.Mention
	for _, m := range r.db.mentions {
		if !m.Notified {
			out = append(out, ptr(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *mentionRepository) ListByIssue(_ context.Context, issueID string) ([]*model.Mention, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*model.Mention
	for _, m := range r.db.mentions {
		if m.IssueID == issueID {
			out = append(out, ptr(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
