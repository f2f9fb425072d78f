package memory

import (
	"context"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

type channelRepository struct{ db *DB }

func (r *channelRepository) Create(_ context.Context, channel *model.Channel) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.channels {
		if c.ID == channel.ID || (c.Active && c.Phone == channel.Phone) {
			return repository.ErrDuplicate
		}
	}
	stamp(&channel.Base)
	r.db.channels[channel.ID] = *channel
	return nil
}

func (r *channelRepository) Get(_ context.Context, id string) (*model.Channel, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.channels[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *channelRepository) GetActiveByPhone(_ context.Context, phone string) (*model.Channel, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, c := range r.db.channels {
		if c.Active && c.Phone == phone {
			return ptr(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *channelRepository) MarkVerified(_ context.Context, id string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.channels[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if c.Verified {
		return false, nil
	}
	c.Verified = true
	c.VerifiedAt = &at
	c.CodeHash = nil
	c.CodeExpiresAt = nil
	c.UpdatedAt = at
	r.db.channels[id] = c
	return true, nil
}

func (r *channelRepository) SetCode(_ context.Context, id, codeHash string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.channels[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.CodeHash = &codeHash
	c.CodeExpiresAt = &expiresAt
	c.UpdatedAt = time.Now().UTC()
	r.db.channels[id] = c
	return nil
}

func (r *channelRepository) Deactivate(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.channels[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !c.Active {
		return nil
	}
	c.Active = false
	c.DeactivatedAt = &at
	c.UpdatedAt = at
	r.db.channels[id] = c
	return nil
}
