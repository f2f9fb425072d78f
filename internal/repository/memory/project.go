package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type projectRepository struct{ db *DB }

func (r *projectRepository) Create(_ context.Context, project *model.Project) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.projects[project.ID]; ok {
		return repository.ErrDuplicate
	}
	stamp(&project.Base)
	r.db.projects[project.ID] = *project
	return nil
}

func (r *projectRepository) Get(_ context.Context, id string) (*model.Project, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *projectRepository) AdvancePhase(_ context.Context, projectID string, from, to model.Phase, event *model.TimelineEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.AdvanceErr != nil {
		return r.db.AdvanceErr
	}
	p, ok := r.db.projects[projectID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.EffectivePhase() != from {
		return repository.ErrStalePhase
	}

	now := time.Now().UTC()
	p.CurrentPhase = to
	p.PhaseUpdatedAt = &now
	p.UpdatedAt = now
	r.db.projects[projectID] = p

	if event != nil {
		stamp(&event.Base)
		r.db.timeline[event.ID] = *event
	}
	return nil
}

func (r *projectRepository) ListSchedule(_ context.Context, projectID string) ([]*model.ProjectPhase, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*model.ProjectPhase
	for _, e := range r.db.schedule {
		if e.ProjectID == projectID {
			out = append(out, ptr(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *projectRepository) SaveSchedulePhase(_ context.Context, entry *model.ProjectPhase) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.ScheduleErr != nil {
		return r.db.ScheduleErr
	}
	stamp(&entry.Base)
	r.db.schedule[entry.ID] = *entry
	return nil
}
