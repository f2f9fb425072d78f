// Package issue creates defect records from classifications and manages
// their lifecycle and mentions.
package issue

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/pkg/errors"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/messaging"
	"github.com/bouwupdate/intake-api/pkg/metrics"
)

var ErrInvalidTransition = stderrors.New("invalid issue status transition")

// MentionProcessor records and notifies mentions on an issue.
type MentionProcessor interface {
	ProcessMentions(ctx context.Context, issueID string, memberIDs []string) ([]*model.Mention, error)
}

// CreatedEvent is published for every auto-created issue.
type CreatedEvent struct {
	IssueID          string         `json:"issue_id"`
	ProjectID        string         `json:"project_id"`
	Title            string         `json:"title"`
	Severity         model.Severity `json:"severity"`
	Phase            model.Phase    `json:"phase,omitempty"`
	SourceDocumentID *string        `json:"source_document_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// transitions lists the statuses reachable from each status. Leaving
// resolved requires an explicit reopen.
var transitions = map[model.IssueStatus][]model.IssueStatus{
	model.IssueStatusOpen:       {model.IssueStatusInProgress, model.IssueStatusResolved, model.IssueStatusDismissed},
	model.IssueStatusInProgress: {model.IssueStatusOpen, model.IssueStatusResolved, model.IssueStatusDismissed},
	model.IssueStatusDismissed:  {model.IssueStatusOpen},
}

type Service struct {
	issues    repository.IssueRepository
	members   repository.TeamMemberRepository
	mentions  MentionProcessor
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store *repository.Store, mentions MentionProcessor, publisher messaging.Publisher, log *logger.Logger, opts ...Option) *Service {
	if publisher == nil {
		publisher = messaging.NopBroker{}
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		issues:    store.Issues,
		members:   store.TeamMembers,
		mentions:  mentions,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateFromDocument creates one open issue per quality issue on the
// document's classification. A failure on one entry does not stop the rest.
func (s *Service) CreateFromDocument(ctx context.Context, doc *model.Document, submitter string) ([]*model.Issue, error) {
	log := s.logger.WithContext(ctx)
	var (
		created []*model.Issue
		errs    []error
	)
	for _, text := range doc.Classification.Quality.Issues {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		docID := doc.ID
		issue := &model.Issue{
			Base:             model.Base{ID: uuid.NewString(), CreatedAt: s.now().UTC()},
			ProjectID:        doc.ProjectID,
			Title:            Title(text),
			Description:      describe(text, doc.Phase, submitter),
			Severity:         ClassifySeverity(text),
			Status:           model.IssueStatusOpen,
			Phase:            doc.Phase,
			SourceDocumentID: &docID,
		}
		if err := s.issues.Create(ctx, issue); err != nil {
			log.Error(err, "Failed to create issue from classification", "document_id", doc.ID, "project_id", doc.ProjectID)
			errs = append(errs, err)
			continue
		}
		s.metrics.IssueCreated(string(issue.Severity))
		s.publishCreated(ctx, issue)
		created = append(created, issue)
	}
	if len(errs) > 0 {
		return created, fmt.Errorf("create issues for document %s: %w", doc.ID, stderrors.Join(errs...))
	}
	return created, nil
}

func describe(text string, p model.Phase, submitter string) string {
	if submitter == "" {
		submitter = "onbekend"
	}
	phase := "onbekende fase"
	if p.Valid() {
		phase = p.Label()
	}
	return fmt.Sprintf("%s\n\nAutomatisch gedetecteerd tijdens %s. Gemeld door %s.", text, phase, submitter)
}

func (s *Service) publishCreated(ctx context.Context, issue *model.Issue) {
	err := s.publisher.Publish(ctx, messaging.TopicIssueCreated, CreatedEvent{
		IssueID:          issue.ID,
		ProjectID:        issue.ProjectID,
		Title:            issue.Title,
		Severity:         issue.Severity,
		Phase:            issue.Phase,
		SourceDocumentID: issue.SourceDocumentID,
		CreatedAt:        issue.CreatedAt,
	})
	if err != nil {
		s.logger.WithContext(ctx).Warn("Failed to publish issue event", "issue_id", issue.ID, "error", err.Error())
	}
}

// Create stores a manually reported issue. Severity is derived from the
// title and description when not given.
func (s *Service) Create(ctx context.Context, issue *model.Issue) error {
	if strings.TrimSpace(issue.ProjectID) == "" || strings.TrimSpace(issue.Title) == "" {
		return errors.BadRequest("project_id and title are required", nil)
	}
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.CreatedAt = s.now().UTC()
	issue.Title = Title(issue.Title)
	issue.Status = model.IssueStatusOpen
	issue.ResolvedAt = nil
	if issue.Severity == "" {
		issue.Severity = ClassifySeverity(issue.Title + " " + issue.Description)
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	s.metrics.IssueCreated(string(issue.Severity))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Issue, error) {
	issue, err := s.issues.Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("issue", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

func (s *Service) List(ctx context.Context, projectID string, status *model.IssueStatus) ([]*model.Issue, error) {
	issues, err := s.issues.ListByProject(ctx, projectID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

// CanTransition reports whether an issue may move from one status to
// another. reopen permits resolved back to open.
func CanTransition(from, to model.IssueStatus, reopen bool) bool {
	if from == model.IssueStatusResolved {
		return reopen && to == model.IssueStatusOpen
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateStatus applies a status transition, stamping resolvedAt on entry
// into resolved and clearing it when the issue leaves resolved.
func (s *Service) UpdateStatus(ctx context.Context, id string, to model.IssueStatus, reopen bool) (*model.Issue, error) {
	if !to.Valid() {
		return nil, errors.BadRequest(fmt.Sprintf("unknown status %q", to), nil)
	}
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.Status == to {
		return issue, nil
	}
	if !CanTransition(issue.Status, to, reopen) {
		return nil, errors.BadRequest(fmt.Sprintf("cannot move issue from %s to %s", issue.Status, to), ErrInvalidTransition)
	}

	var resolvedAt *time.Time
	if to == model.IssueStatusResolved {
		now := s.now().UTC()
		resolvedAt = &now
	}
	if err := s.issues.UpdateStatus(ctx, id, to, resolvedAt); err != nil {
		return nil, fmt.Errorf("failed to update issue status: %w", err)
	}
	issue.Status = to
	issue.ResolvedAt = resolvedAt
	s.logger.WithContext(ctx).Info("Issue status changed", "issue_id", id, "status", string(to))
	return issue, nil
}

// AddComment stores a comment and notifies every team member it mentions
// with an @Name token.
func (s *Service) AddComment(ctx context.Context, issueID, authorID, body string) (*model.IssueComment, []*model.Mention, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil, errors.BadRequest("comment body is required", nil)
	}
	issue, err := s.Get(ctx, issueID)
	if err != nil {
		return nil, nil, err
	}
	comment := &model.IssueComment{
		Base:     model.Base{ID: uuid.NewString(), CreatedAt: s.now().UTC()},
		IssueID:  issueID,
		AuthorID: authorID,
		Body:     body,
	}
	if err := s.issues.AddComment(ctx, comment); err != nil {
		return nil, nil, fmt.Errorf("failed to add comment: %w", err)
	}

	members, err := s.members.ListByProject(ctx, issue.ProjectID)
	if err != nil {
		return comment, nil, fmt.Errorf("failed to list team members: %w", err)
	}
	ids := ParseMentions(body, members)
	if len(ids) == 0 {
		return comment, nil, nil
	}
	mentions, err := s.mentions.ProcessMentions(ctx, issueID, ids)
	return comment, mentions, err
}

// Mention tags members on an issue by id.
func (s *Service) Mention(ctx context.Context, issueID string, memberIDs []string) ([]*model.Mention, error) {
	if _, err := s.Get(ctx, issueID); err != nil {
		return nil, err
	}
	return s.mentions.ProcessMentions(ctx, issueID, memberIDs)
}

// ParseMentions returns the ids of members referenced as @Name in text.
// Names match case-insensitively and must end at a word boundary; longer
// names are tried first so "@Jan de Vries" does not also match "Jan".
func ParseMentions(text string, members []*model.TeamMember) []string {
	lower := []rune(strings.ToLower(text))
	sorted := append([]*model.TeamMember(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Name) > len(sorted[j].Name) })

	claimed := make([]bool, len(lower))
	var ids []string
	for _, m := range sorted {
		name := []rune(strings.ToLower(strings.TrimSpace(m.Name)))
		if len(name) == 0 {
			continue
		}
		for i := 0; i+len(name) < len(lower); i++ {
			if lower[i] != '@' || claimed[i] || !hasPrefixAt(lower, name, i+1) {
				continue
			}
			end := i + 1 + len(name)
			if end < len(lower) && (unicode.IsLetter(lower[end]) || unicode.IsDigit(lower[end])) {
				continue
			}
			claimed[i] = true
			ids = append(ids, m.ID)
			break
		}
	}
	return ids
}

func hasPrefixAt(s, prefix []rune, at int) bool {
	if at+len(prefix) > len(s) {
		return false
	}
	for k, r := range prefix {
		if s[at+k] != r {
			return false
		}
	}
	return true
}
