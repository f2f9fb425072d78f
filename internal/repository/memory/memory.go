// Package memory is an in-process implementation of the repositories. It is
// used by tests and by the memory storage driver for local runs.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
)

// DB holds every table behind a single mutex.
type DB struct {
	mu sync.RWMutex

	projects    map[string]model.Project
	schedule    map[string]model.ProjectPhase
	channels    map[string]model.Channel
	messages    map[string]model.InboundMessage
	documents   map[string]model.Document
	timeline    map[string]model.TimelineEvent
	issues      map[string]model.Issue
	comments    map[string]model.IssueComment
	mentions    map[string]model.Mention
	teamMembers map[string]model.TeamMember
	voiceNotes  map[string]model.VoiceNote

	// AdvanceErr and ScheduleErr, when set, are returned by the matching
	// writes so failure paths can be exercised.
	AdvanceErr  error
	ScheduleErr error
}

func New() *DB {
	return &DB{
		projects:    make(map[string]model.Project),
		schedule:    make(map[string]model.ProjectPhase),
		channels:    make(map[string]model.Channel),
		messages:    make(map[string]model.InboundMessage),
		documents:   make(map[string]model.Document),
		timeline:    make(map[string]model.TimelineEvent),
		issues:      make(map[string]model.Issue),
		comments:    make(map[string]model.IssueComment),
		mentions:    make(map[string]model.Mention),
		teamMembers: make(map[string]model.TeamMember),
		voiceNotes:  make(map[string]model.VoiceNote),
	}
}

// Store returns the repository bundle backed by db.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Projects:    &projectRepository{db},
		Channels:    &channelRepository{db},
		Messages:    &messageRepository{db},
		Documents:   &documentRepository{db},
		Timeline:    &timelineRepository{db},
		Issues:      &issueRepository{db},
		Mentions:    &mentionRepository{db},
		TeamMembers: &teamMemberRepository{db},
		VoiceNotes:  &voiceNoteRepository{db},
	}
}

// Comments returns every stored comment for an issue, oldest first.
func (db *DB) Comments(issueID string) []model.IssueComment {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []model.IssueComment
	for _, c := range db.comments {
		if c.IssueID == issueID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func stamp(b *model.Base) {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func ptr[T any](v T) *T { return &v }
