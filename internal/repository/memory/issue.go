package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type issueRepository struct{ db *DB }

func (r *issueRepository) Create(_ context.Context, issue *model.Issue) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.issues[issue.ID]; ok {
		return repository.ErrDuplicate
	}
	stamp(&issue.Base)
	r.db.issues[issue.ID] = *issue
	return nil
}

func (r *issueRepository) Get(_ context.Context, id string) (*model.Issue, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	i, ok := r.db.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &i, nil
}

func (r *issueRepository) UpdateStatus(_ context.Context, id string, status model.IssueStatus, resolvedAt *time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	i, ok := r.db.issues[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.Status = status
	i.ResolvedAt = resolvedAt
	i.UpdatedAt = time.Now().UTC()
	r.db.issues[id] = i
	return nil
}

func (r *issueRepository) ListByProject(_ context.Context, projectID string, status *model.IssueStatus) ([]*model.Issue, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*model.Issue
	for _, i := range r.db.issues {
		if i.ProjectID != projectID || (status != nil && i.Status != *status) {
			continue
		}
		out = append(out, ptr(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (r *issueRepository) AddComment(_ context.Context, comment *model.IssueComment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.issues[comment.IssueID]; !ok {
		return repository.ErrNotFound
	}
	stamp(&comment.Base)
	r.db.comments[comment.ID] = *comment
	return nil
}
