package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type documentRepository struct{ db *DB }

func (r *documentRepository) Create(_ context.Context, doc *model.Document) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.documents[doc.ID]; ok {
		return repository.ErrDuplicate
	}
	stamp(&doc.Base)
	r.db.documents[doc.ID] = *doc
	return nil
}

func (r *documentRepository) Get(_ context.Context, id string) (*model.Document, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	d, ok := r.db.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *documentRepository) ListRecentClassified(_ context.Context, projectID string, limit int) ([]*model.Document, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*model.Document
	for _, d := range r.db.documents {
		if d.ProjectID == projectID && d.MediaKind == model.MediaKindImage && d.Classified() {
			out = append(out, ptr(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *documentRepository) LatestPhotoBySender(_ context.Context, projectID, sender string, since, until time.Time) (*model.Document, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var best *model.Document
	var bestAt time.Time
	for _, d := range r.db.documents {
		if d.ProjectID != projectID || d.Sender != sender || d.MediaKind != model.MediaKindImage {
			continue
		}
		msg, ok := r.db.messages[d.MessageID]
		if !ok || msg.Status != model.MessageStatusProcessed || msg.CreatedAt.Before(since) || msg.CreatedAt.After(until) {
			continue
		}
		if best == nil || msg.CreatedAt.After(bestAt) {
			best, bestAt = ptr(d), msg.CreatedAt
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}
