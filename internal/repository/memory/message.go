package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type messageRepository struct{ db *DB }

func (r *messageRepository) Create(_ context.Context, msg *model.InboundMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.messages {
		if m.ID == msg.ID || (msg.ProviderID != "" && m.ProviderID == msg.ProviderID) {
			return repository.ErrDuplicate
		}
	}
	stamp(&msg.Base)
	r.db.messages[msg.ID] = *msg
	return nil
}

func (r *messageRepository) Get(_ context.Context, id string) (*model.InboundMessage, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	m, ok := r.db.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *messageRepository) GetByProviderID(_ context.Context, providerID string) (*model.InboundMessage, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, m := range r.db.messages {
		if m.ProviderID == providerID {
			return ptr(m), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *messageRepository) AssignChannel(_ context.Context, id, channelID, projectID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.ChannelID = &channelID
	m.ProjectID = &projectID
	m.UpdatedAt = time.Now().UTC()
	r.db.messages[id] = m
	return nil
}

func (r *messageRepository) UpdateStatus(_ context.Context, id string, status model.MessageStatus, errMsg *string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Status = status
	m.ErrorMessage = errMsg
	m.UpdatedAt = at
	if status.Terminal() {
		m.ProcessedAt = &at
	}
	r.db.messages[id] = m
	return nil
}

func (r *messageRepository) StartProcessing(_ context.Context, id string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if m.Status != model.MessageStatusReceived {
		return false, nil
	}
	m.Status = model.MessageStatusProcessing
	m.UpdatedAt = at
	r.db.messages[id] = m
	return true, nil
}

func (r *messageRepository) ListReceived(_ context.Context, before time.Time, limit int) ([]*model.InboundMessage, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*model.InboundMessage
	for _, m := range r.db.messages {
		if m.Status == model.MessageStatusReceived && m.CreatedAt.Before(before) {
			out = append(out, ptr(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
