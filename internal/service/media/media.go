// Package media turns a photo or video message into a document, a timeline
// entry, auto-created issues and, when the evidence allows, a phase advance.
package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/internal/service/advance"
	"github.com/bouwupdate/intake-api/internal/service/classifier"
	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/storage"
	"github.com/bouwupdate/intake-api/pkg/transport"
)

const (
	defaultDownloadTimeout = 20 * time.Second
	defaultFeedbackDelay   = 2 * time.Second
)

// IssueCreator creates issues for the quality findings of a document.
type IssueCreator interface {
	CreateFromDocument(ctx context.Context, doc *model.Document, submitter string) ([]*model.Issue, error)
}

// Advancer evaluates and applies a phase advance for a project.
type Advancer interface {
	Evaluate(ctx context.Context, projectID string) (*phase.Analysis, advance.Result, error)
}

type Config struct {
	DownloadTimeout time.Duration
	FeedbackDelay   time.Duration
}

// Result describes what one media message produced.
type Result struct {
	Document *model.Document
	Event    *model.TimelineEvent
	Fusion   phase.Fusion
	Issues   []*model.Issue
	Analysis *phase.Analysis
	Advance  advance.Result
	Replies  []string
}

type Processor struct {
	documents  repository.DocumentRepository
	timeline   repository.TimelineRepository
	transport  transport.Transport
	archive    storage.ObjectStore
	classifier classifier.Classifier
	engine     *phase.Engine
	issues     IssueCreator
	advancer   Advancer
	cfg        Config
	logger     *logger.Logger
	now        func() time.Time
	wait       func(ctx context.Context, d time.Duration) error
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithArchive stores downloaded media in an object store.
func WithArchive(store storage.ObjectStore) Option {
	return func(p *Processor) { p.archive = store }
}

func NewProcessor(
	store *repository.Store,
	tr transport.Transport,
	cls classifier.Classifier,
	engine *phase.Engine,
	issues IssueCreator,
	advancer Advancer,
	cfg Config,
	log *logger.Logger,
	opts ...Option,
) *Processor {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	if cfg.FeedbackDelay <= 0 {
		cfg.FeedbackDelay = defaultFeedbackDelay
	}
	if log == nil {
		log = logger.Nop()
	}
	p := &Processor{
		documents:  store.Documents,
		timeline:   store.Timeline,
		transport:  tr,
		classifier: cls,
		engine:     engine,
		issues:     issues,
		advancer:   advancer,
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
		wait:       sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one media message from a verified channel. Only a failure
// to persist the document is returned; every later step degrades on its own.
func (p *Processor) Process(ctx context.Context, msg *model.InboundMessage, ch *model.Channel) (*Result, error) {
	log := p.logger.WithContext(ctx)
	kind := msg.MediaKind
	if kind == model.MediaKindNone {
		kind = model.MediaKindFromMIME(msg.MediaType)
	}

	data, err := p.download(ctx, msg.MediaURL)
	if err != nil {
		log.Warn("Media download failed, storing unclassified document", "message_id", msg.ID, "sender", msg.Sender, "project_id", ch.ProjectID, "error", err.Error())
	}

	classification := model.EmptyClassification()
	if data != nil && kind == model.MediaKindImage {
		classification = p.classifier.Classify(ctx, classifier.Input{
			Image:    data,
			MIMEType: msg.MediaType,
			Context:  msg.Text,
		})
	}

	now := p.now().UTC()
	doc := &model.Document{
		Base:           model.Base{ID: uuid.NewString(), CreatedAt: now},
		ProjectID:      ch.ProjectID,
		CompanyID:      ch.CompanyID,
		MessageID:      msg.ID,
		Sender:         msg.Sender,
		SubmittedBy:    ch.WorkerName,
		Name:           documentName(classification, kind, now),
		FileURL:        p.store(ctx, msg, ch.ProjectID, data, now),
		MimeType:       msg.MediaType,
		MediaKind:      kind,
		Classification: classification,
	}

	res := &Result{Document: doc}
	if doc.Classified() {
		res.Fusion = p.engine.Fuse(classification)
		doc.Phase = res.Fusion.Phase
		doc.PhaseConfidence = res.Fusion.Confidence
	}
	if err := p.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document for message %s: %w", msg.ID, err)
	}

	res.Event = p.recordTimeline(ctx, doc, res.Fusion)

	if len(classification.Quality.Issues) > 0 && p.issues != nil {
		issues, err := p.issues.CreateFromDocument(ctx, doc, ch.WorkerName)
		if err != nil {
			log.Warn("Some issues could not be created", "document_id", doc.ID, "project_id", doc.ProjectID, "error", err.Error())
		}
		res.Issues = issues
	}

	if doc.Classified() && kind == model.MediaKindImage && p.advancer != nil {
		analysis, adv, err := p.advancer.Evaluate(ctx, ch.ProjectID)
		if err != nil {
			log.Error(err, "Phase advance failed", "project_id", ch.ProjectID, "message_id", msg.ID)
		}
		res.Analysis = analysis
		res.Advance = adv
	}

	res.Replies = append(res.Replies, Feedback(doc, res.Issues))
	if res.Advance.Advanced && res.Advance.Message != "" {
		res.Replies = append(res.Replies, res.Advance.Message)
	}
	p.reply(ctx, msg.Sender, res.Replies)
	return res, nil
}

func (p *Processor) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("message has no media url")
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DownloadTimeout)
	defer cancel()
	data, err := p.transport.DownloadMedia(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty media body")
	}
	return data, nil
}

// store archives the media and returns its location, falling back to the
// provider url when no archive is configured or the upload fails.
func (p *Processor) store(ctx context.Context, msg *model.InboundMessage, projectID string, data []byte, at time.Time) string {
	if p.archive == nil || data == nil {
		return msg.MediaURL
	}
	url, err := p.archive.Put(ctx, storage.MediaKey(projectID, msg.ID, msg.MediaType, at), data, msg.MediaType)
	if err != nil {
		p.logger.WithContext(ctx).Warn("Media archive failed, keeping provider url", "message_id", msg.ID, "project_id", projectID, "error", err.Error())
		return msg.MediaURL
	}
	return url
}

func (p *Processor) recordTimeline(ctx context.Context, doc *model.Document, fusion phase.Fusion) *model.TimelineEvent {
	docID := doc.ID
	event := &model.TimelineEvent{
		Base:        model.Base{ID: uuid.NewString(), CreatedAt: doc.CreatedAt},
		ProjectID:   doc.ProjectID,
		DocumentID:  &docID,
		Type:        model.EventTypeForPhase(doc.Phase),
		Title:       doc.Name,
		Description: doc.Classification.Description,
		Phase:       doc.Phase,
		Metadata: model.JSONMap{
			"classification": doc.Classification,
			"fusion":         fusion,
			"sender":         doc.Sender,
			"submitted_by":   doc.SubmittedBy,
			"media_kind":     doc.MediaKind,
		},
	}
	if err := p.timeline.Create(ctx, event); err != nil {
		p.logger.WithContext(ctx).Error(err, "Failed to create timeline event", "document_id", doc.ID, "project_id", doc.ProjectID)
		return nil
	}
	return event
}

// reply sends the feedback first and every later message after the
// configured delay, so the worker sees them as separate updates.
func (p *Processor) reply(ctx context.Context, to string, replies []string) {
	log := p.logger.WithContext(ctx)
	for i, text := range replies {
		if i > 0 {
			if err := p.wait(ctx, p.cfg.FeedbackDelay); err != nil {
				return
			}
		}
		if err := p.transport.Send(ctx, to, text); err != nil {
			log.Warn("Failed to send reply", "sender", to, "error", err.Error())
		}
	}
}

func documentName(c model.ClassificationResult, kind model.MediaKind, at time.Time) string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	label := "Foto"
	switch kind {
	case model.MediaKindVideo:
		label = "Video"
	case model.MediaKindDocument:
		label = "Bestand"
	}
	return fmt.Sprintf("%s %s", label, at.Format("2006-01-02 15:04"))
}

// Feedback summarizes a processed document for the sender.
func Feedback(doc *model.Document, issues []*model.Issue) string {
	var b strings.Builder
	if !doc.Classified() {
		b.WriteString("Bestand ontvangen en opgeslagen bij het project.")
		if doc.MediaKind == model.MediaKindImage {
			b.WriteString(" De foto kon niet automatisch worden beoordeeld.")
		}
		return b.String()
	}

	c := doc.Classification
	fmt.Fprintf(&b, "Foto verwerkt: %s\n", doc.Name)
	if doc.Phase.Valid() {
		fmt.Fprintf(&b, "Fase: %s (%d%% zeker)\n", doc.Phase.Label(), int(doc.PhaseConfidence*100+0.5))
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "%s\n", c.Description)
	}
	if c.ProgressPercentage != nil {
		fmt.Fprintf(&b, "Voortgang: %d%%\n", *c.ProgressPercentage)
	}
	fmt.Fprintf(&b, "Kwaliteit: %d/10", c.Quality.Score)
	if len(c.SafetyNotes) > 0 {
		fmt.Fprintf(&b, "\nVeiligheid: %s", strings.Join(c.SafetyNotes, "; "))
	}
	if n := len(issues); n == 1 {
		b.WriteString("\n1 aandachtspunt is als melding geregistreerd.")
	} else if n > 1 {
		fmt.Fprintf(&b, "\n%d aandachtspunten zijn als melding geregistreerd.", n)
	}
	return b.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
