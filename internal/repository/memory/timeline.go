package memory

import (
	"context"
	"sort"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type timelineRepository struct{ db *DB }

func (r *timelineRepository) Create(_ context.Context, event *model.TimelineEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.timeline[event.ID]; ok {
		return repository.ErrDuplicate
	}
	stamp(&event.Base)
	r.db.timeline[event.ID] = *event
	return nil
}

// ListByProject returns the newest events first.
func (r *timelineRepository) ListByProject(_ context.Context, projectID string, limit int) ([]*model.TimelineEvent, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*model.TimelineEvent
	for _, e := range r.db.timeline {
		if e.ProjectID == projectID {
			out = append(out, ptr(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
