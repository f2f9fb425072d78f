package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/bouwupdate/intake-api/config"
	"github.com/bouwupdate/intake-api/internal/repository"
)

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewStore wires every postgres repository onto one connection pool.
func NewStore(db *sqlx.DB) *repository.Store {
	base := NewBaseRepository(db)
	return &repository.Store{
		Projects:    &projectRepository{base},
		Channels:    &channelRepository{base},
		Messages:    &messageRepository{base},
		Documents:   &documentRepository{base},
		Timeline:    &timelineRepository{base},
		Issues:      &issueRepository{base},
		Mentions:    &mentionRepository{base},
		TeamMembers: &teamMemberRepository{base},
		VoiceNotes:  &voiceNoteRepository{base},
	}
}
