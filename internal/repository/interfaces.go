package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bouwupdate/intake-api/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrStalePhase is returned when a phase write finds the project no longer
	// in the phase the caller read.
	ErrStalePhase = errors.New("project phase changed concurrently")
)

// All repository interfaces in one file
type (
	ProjectRepository interface {
		Create(ctx context.Context, project *model.Project) error
		Get(ctx context.Context, id string) (*model.Project, error)
		// AdvancePhase moves the project from -> to and records the transition
		// event in one transaction. Returns ErrStalePhase if current != from.
		AdvancePhase(ctx context.Context, projectID string, from, to model.Phase, event *model.TimelineEvent) error
		ListSchedule(ctx context.Context, projectID string) ([]*model.ProjectPhase, error)
		SaveSchedulePhase(ctx context.Context, entry *model.ProjectPhase) error
	}

	ChannelRepository interface {
		Create(ctx context.Context, channel *model.Channel) error
		Get(ctx context.Context, id string) (*model.Channel, error)
		// GetActiveByPhone returns ErrNotFound for unknown and deactivated numbers.
		GetActiveByPhone(ctx context.Context, phone string) (*model.Channel, error)
		// MarkVerified flips verified and clears the code. It reports false when
		// the channel was already verified.
		MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)
		SetCode(ctx context.Context, id, codeHash string, expiresAt time.Time) error
		Deactivate(ctx context.Context, id string, at time.Time) error
	}

	MessageRepository interface {
		// Create returns ErrDuplicate when the provider id was already stored.
		Create(ctx context.Context, msg *model.InboundMessage) error
		Get(ctx context.Context, id string) (*model.InboundMessage, error)
		GetByProviderID(ctx context.Context, providerID string) (*model.InboundMessage, error)
		AssignChannel(ctx context.Context, id, channelID, projectID string) error
		UpdateStatus(ctx context.Context, id string, status model.MessageStatus, errMsg *string, at time.Time) error
		// StartProcessing moves a RECEIVED message to PROCESSING. It reports
		// false when the message is in any other status.
		StartProcessing(ctx context.Context, id string, at time.Time) (bool, error)
		// ListReceived returns RECEIVED messages created before before,
		// oldest first.
		ListReceived(ctx context.Context, before time.Time, limit int) ([]*model.InboundMessage, error)
	}

	DocumentRepository interface {
		Create(ctx context.Context, doc *model.Document) error
		Get(ctx context.Context, id string) (*model.Document, error)
		// ListRecentClassified returns the newest classified image documents first.
		ListRecentClassified(ctx context.Context, projectID string, limit int) ([]*model.Document, error)
		// LatestPhotoBySender returns the newest image document whose message is
		// PROCESSED and was created within [since, until].
		LatestPhotoBySender(ctx context.Context, projectID, sender string, since, until time.Time) (*model.Document, error)
	}

	TimelineRepository interface {
		Create(ctx context.Context, event *model.TimelineEvent) error
		ListByProject(ctx context.Context, projectID string, limit int) ([]*model.TimelineEvent, error)
	}

	IssueRepository interface {
		Create(ctx context.Context, issue *model.Issue) error
		Get(ctx context.Context, id string) (*model.Issue, error)
		UpdateStatus(ctx context.Context, id string, status model.IssueStatus, resolvedAt *time.Time) error
		ListByProject(ctx context.Context, projectID string, status *model.IssueStatus) ([]*model.Issue, error)
		AddComment(ctx context.Context, comment *model.IssueComment) error
	}

	MentionRepository interface {
		// Upsert inserts the (issue, member) pair or loads the existing row
		// into mention. created reports whether a row was inserted.
		Upsert(ctx context.Context, mention *model.Mention) (created bool, err error)
		Get(ctx context.Context, id string) (*model.Mention, error)
		// MarkNotified moves notified false -> true. It reports false when the
		// mention was already notified.
		MarkNotified(ctx context.Context, id string, at time.Time) (bool, error)
		// Claim takes the delivery lease of an unnotified mention until
		// until. It reports false when the mention is notified or another
		// lease is still running at now.
		Claim(ctx context.Context, id string, now, until time.Time) (bool, error)
		// RecordFailure counts a failed attempt and releases the lease.
		RecordFailure(ctx context.Context, id, errMsg string) error
		ListPending(ctx context.Context, limit int) ([]*model.Mention, error)
		ListByIssue(ctx context.Context, issueID string) ([]*model.Mention, error)
	}

	TeamMemberRepository interface {
		Create(ctx context.Context, member *model.TeamMember) error
		Get(ctx context.Context, id string) (*model.TeamMember, error)
		ListByProject(ctx context.Context, projectID string) ([]*model.TeamMember, error)
	}

	VoiceNoteRepository interface {
		Create(ctx context.Context, note *model.VoiceNote) error
		Get(ctx context.Context, id string) (*model.VoiceNote, error)
	}
)

// Store bundles every repository used by the pipeline.
type Store struct {
	Projects    ProjectRepository
	Channels    ChannelRepository
	Messages    MessageRepository
	Documents   DocumentRepository
	Timeline    TimelineRepository
	Issues      IssueRepository
	Mentions    MentionRepository
	TeamMembers TeamMemberRepository
	VoiceNotes  VoiceNoteRepository
}
