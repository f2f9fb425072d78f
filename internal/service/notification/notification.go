// Package notification delivers at most one notification per mention.
package notification

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/pkg/email"
	"github.com/bouwupdate/intake-api/pkg/errors"
	"github.com/bouwupdate/intake-api/pkg/keylock"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/messaging"
	"github.com/bouwupdate/intake-api/pkg/metrics"
	"github.com/bouwupdate/intake-api/pkg/transport"
	"github.com/bouwupdate/intake-api/pkg/worker"
)

// ErrNoReachableAddress is reported when a member has neither phone nor email.
// The mention is marked notified because no retry can succeed.
var ErrNoReachableAddress = stderrors.New("team member has no reachable address")

// ErrMentionClaimed is returned when another process holds the delivery
// lease of the mention.
var ErrMentionClaimed = stderrors.New("mention delivery already in progress")

const (
	defaultMaxWorkers = 5
	maxDescriptionLen = 280
	// DefaultClaimTTL outlives a transport send including its retries.
	DefaultClaimTTL = 2 * time.Minute
)

// RetryStats summarizes one retry pass.
type RetryStats struct {
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
}

type Service struct {
	mentions   repository.MentionRepository
	members    repository.TeamMemberRepository
	issues     repository.IssueRepository
	transport  transport.Transport
	mailer     email.Sender
	publisher  messaging.Publisher
	locks      *keylock.Locker
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        func() time.Time
	maxWorkers int
	claimTTL   time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClaimTTL sets how long a delivery lease is held before another
// process may take over an unfinished send.
func WithClaimTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.claimTTL = d
		}
	}
}

func WithMaxWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

func NewService(
	store *repository.Store,
	tr transport.Transport,
	mailer email.Sender,
	publisher messaging.Publisher,
	log *logger.Logger,
	opts ...Option,
) *Service {
	if mailer == nil {
		mailer = email.Nop{}
	}
	if publisher == nil {
		publisher = messaging.NopBroker{}
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		mentions:   store.Mentions,
		members:    store.TeamMembers,
		issues:     store.Issues,
		transport:  tr,
		mailer:     mailer,
		publisher:  publisher,
		locks:      keylock.New(),
		logger:     log,
		now:        time.Now,
		maxWorkers: defaultMaxWorkers,
		claimTTL:   DefaultClaimTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessMentions upserts one mention per member and notifies those not yet
// notified. Delivery failures are recorded on the mention and never returned.
func (s *Service) ProcessMentions(ctx context.Context, issueID string, memberIDs []string) ([]*model.Mention, error) {
	log := s.logger.WithContext(ctx)
	seen := make(map[string]bool, len(memberIDs))
	out := make([]*model.Mention, 0, len(memberIDs))

	for _, memberID := range memberIDs {
		memberID = strings.TrimSpace(memberID)
		if memberID == "" || seen[memberID] {
			continue
		}
		seen[memberID] = true

		m := &model.Mention{
			Base:         model.Base{ID: uuid.NewString(), CreatedAt: s.now().UTC()},
			IssueID:      issueID,
			TeamMemberID: memberID,
		}
		if _, err := s.mentions.Upsert(ctx, m); err != nil {
			return out, fmt.Errorf("upsert mention for member %s: %w", memberID, err)
		}

		if !m.Notified {
			if err := s.Notify(ctx, m.ID); err != nil {
				log.Warn("Mention notification not delivered", "mention_id", m.ID, "issue_id", issueID, "team_member_id", memberID, "error", err.Error())
			}
			if fresh, err := s.mentions.Get(ctx, m.ID); err == nil {
				m = fresh
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// Notify delivers the notification for one mention. It is safe to call
// repeatedly; an already notified mention returns nil without sending. The
// in-process lock serializes callers sharing this Service, the stored claim
// serializes separate processes sharing the database.
func (s *Service) Notify(ctx context.Context, mentionID string) error {
	unlock := s.locks.Lock(mentionID)
	defer unlock()

	m, err := s.mentions.Get(ctx, mentionID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return errors.NotFound("mention", err)
	}
	if err != nil {
		return fmt.Errorf("load mention %s: %w", mentionID, err)
	}
	if m.Notified {
		return nil
	}

	now := s.now().UTC()
	claimed, err := s.mentions.Claim(ctx, m.ID, now, now.Add(s.claimTTL))
	if err != nil {
		return fmt.Errorf("claim mention %s: %w", m.ID, err)
	}
	if !claimed {
		if cur, err := s.mentions.Get(ctx, m.ID); err == nil && cur.Notified {
			return nil
		}
		return errors.NewConflict("mention delivery already in progress", ErrMentionClaimed)
	}

	member, err := s.members.Get(ctx, m.TeamMemberID)
	if err != nil {
		return s.fail(ctx, m, fmt.Errorf("load team member: %w", err))
	}
	issue, err := s.issues.Get(ctx, m.IssueID)
	if err != nil {
		return s.fail(ctx, m, fmt.Errorf("load issue: %w", err))
	}

	if !member.Reachable() {
		if _, err := s.mentions.MarkNotified(ctx, m.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("mark unreachable mention %s: %w", m.ID, err)
		}
		s.metrics.Notification("unreachable")
		return ErrNoReachableAddress
	}

	body := Message(member, issue)
	if member.Phone != "" {
		err = s.transport.Send(ctx, member.Phone, body)
	} else {
		err = s.mailer.Send(ctx, member.Email, fmt.Sprintf("Je bent genoemd: %s", issue.Title), body)
	}
	if err != nil {
		return s.fail(ctx, m, err)
	}

	now = s.now().UTC()
	if _, err := s.mentions.MarkNotified(ctx, m.ID, now); err != nil {
		return fmt.Errorf("mark mention %s notified: %w", m.ID, err)
	}
	s.metrics.Notification("sent")

	if err := s.publisher.Publish(ctx, messaging.TopicMentionInApp, model.MentionEvent{
		MentionID:    m.ID,
		IssueID:      issue.ID,
		TeamMemberID: member.ID,
		Content:      body,
		CreatedAt:    now,
	}); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to publish in-app mention", "mention_id", m.ID, "error", err.Error())
	}
	return nil
}

func (s *Service) fail(ctx context.Context, m *model.Mention, cause error) error {
	s.metrics.Notification("failed")
	if err := s.mentions.RecordFailure(ctx, m.ID, cause.Error()); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to record notification failure", "mention_id", m.ID)
	}
	return errors.NotificationFailed(m.ID, cause)
}

// RetryPending re-attempts every mention that is not yet notified. Mentions
// run concurrently; each one is still serialized by Notify.
func (s *Service) RetryPending(ctx context.Context, limit int) (RetryStats, error) {
	pending, err := s.mentions.ListPending(ctx, limit)
	if err != nil {
		return RetryStats{}, fmt.Errorf("list pending mentions: %w", err)
	}
	delivered := worker.RunBatch(ctx, pending, s.maxWorkers, func(ctx context.Context, m *model.Mention) error {
		return s.Notify(ctx, m.ID)
	})
	stats := RetryStats{Pending: len(pending), Delivered: int(delivered)}
	if stats.Pending > 0 {
		s.logger.WithContext(ctx).Info("Mention retry pass finished", "pending", stats.Pending, "delivered", stats.Delivered)
	}
	return stats, nil
}

// Message is the fixed notification template.
func Message(member *model.TeamMember, issue *model.Issue) string {
	desc := issue.Description
	if r := []rune(desc); len(r) > maxDescriptionLen {
		desc = string(r[:maxDescriptionLen-1]) + "…"
	}
	return fmt.Sprintf("Hallo %s, je bent genoemd bij de melding \"%s\" (ernst: %s).\n%s",
		member.Name, issue.Title, issue.Severity.Label(), desc)
}
