// Package voicenote stores transcribed audio and links it to the photo the
// sender most recently submitted.
package voicenote

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/internal/service/transcriber"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/storage"
	"github.com/bouwupdate/intake-api/pkg/transport"
)

const (
	DefaultLinkWindow      = 5 * time.Minute
	defaultDownloadTimeout = 20 * time.Second
	maxReplyTranscript     = 200
)

type Config struct {
	LinkWindow      time.Duration
	DownloadTimeout time.Duration
}

type Processor struct {
	notes       repository.VoiceNoteRepository
	documents   repository.DocumentRepository
	timeline    repository.TimelineRepository
	transport   transport.Transport
	archive     storage.ObjectStore
	transcriber transcriber.Transcriber
	cfg         Config
	logger      *logger.Logger
	now         func() time.Time
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func WithArchive(store storage.ObjectStore) Option {
	return func(p *Processor) { p.archive = store }
}

func NewProcessor(store *repository.Store, tr transport.Transport, tx transcriber.Transcriber, cfg Config, log *logger.Logger, opts ...Option) *Processor {
	if cfg.LinkWindow <= 0 {
		cfg.LinkWindow = DefaultLinkWindow
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	p := &Processor{
		notes:       store.VoiceNotes,
		documents:   store.Documents,
		timeline:    store.Timeline,
		transport:   tr,
		transcriber: tx,
		cfg:         cfg,
		logger:      log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process stores one audio message as a voice note. Download and
// transcription failures keep the note with a nil transcript.
func (p *Processor) Process(ctx context.Context, msg *model.InboundMessage, ch *model.Channel) (*model.VoiceNote, error) {
	log := p.logger.WithContext(ctx)
	at := msg.CreatedAt
	if at.IsZero() {
		at = p.now()
	}
	at = at.UTC()

	note := &model.VoiceNote{
		Base:      model.Base{ID: uuid.NewString(), CreatedAt: at},
		ProjectID: ch.ProjectID,
		MessageID: msg.ID,
		AudioURL:  msg.MediaURL,
		MimeType:  msg.MediaType,
		Sender:    msg.Sender,
	}

	audio, err := p.download(ctx, msg.MediaURL)
	if err != nil {
		log.Warn("Audio download failed", "message_id", msg.ID, "sender", msg.Sender, "project_id", ch.ProjectID, "error", err.Error())
	} else {
		note.AudioURL = p.store(ctx, msg, ch.ProjectID, audio, at)
		p.transcribe(ctx, note, audio)
	}

	if doc, err := p.documents.LatestPhotoBySender(ctx, ch.ProjectID, msg.Sender, at.Add(-p.cfg.LinkWindow), at); err == nil {
		note.LinkedDocumentID = &doc.ID
	} else if !stderrors.Is(err, repository.ErrNotFound) {
		log.Warn("Photo lookup for voice note failed", "message_id", msg.ID, "project_id", ch.ProjectID, "error", err.Error())
	}

	if err := p.notes.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("create voice note for message %s: %w", msg.ID, err)
	}
	p.recordTimeline(ctx, note, ch.WorkerName)

	if err := p.transport.Send(ctx, msg.Sender, Feedback(note)); err != nil {
		log.Warn("Failed to send reply", "sender", msg.Sender, "error", err.Error())
	}
	return note, nil
}

func (p *Processor) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("message has no media url")
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DownloadTimeout)
	defer cancel()
	return p.transport.DownloadMedia(ctx, url)
}

func (p *Processor) store(ctx context.Context, msg *model.InboundMessage, projectID string, audio []byte, at time.Time) string {
	if p.archive == nil {
		return msg.MediaURL
	}
	url, err := p.archive.Put(ctx, storage.MediaKey(projectID, msg.ID, msg.MediaType, at), audio, msg.MediaType)
	if err != nil {
		p.logger.WithContext(ctx).Warn("Audio archive failed, keeping provider url", "message_id", msg.ID, "error", err.Error())
		return msg.MediaURL
	}
	return url
}

func (p *Processor) transcribe(ctx context.Context, note *model.VoiceNote, audio []byte) {
	t, err := p.transcriber.Transcribe(ctx, audio, note.MimeType)
	if err != nil || t == nil {
		var terr *transcriber.TranscriptionError
		stage := "unknown"
		if stderrors.As(err, &terr) {
			stage = string(terr.Stage)
		}
		p.logger.WithContext(ctx).Warn("Transcription failed, keeping audio only", "message_id", note.MessageID, "stage", stage)
		p.estimate(note, len(audio))
		return
	}
	text := t.Text
	note.Transcript = &text
	note.Language = t.Language
	if t.Duration > 0 {
		note.DurationSeconds = t.Duration.Seconds()
		return
	}
	p.estimate(note, len(audio))
}

func (p *Processor) estimate(note *model.VoiceNote, size int) {
	note.DurationSeconds = transcriber.EstimateDuration(size).Seconds()
	note.DurationEstimated = true
}

func (p *Processor) recordTimeline(ctx context.Context, note *model.VoiceNote, worker string) {
	desc := ""
	if note.Transcript != nil {
		desc = *note.Transcript
	}
	event := &model.TimelineEvent{
		Base:        model.Base{ID: uuid.NewString(), CreatedAt: note.CreatedAt},
		ProjectID:   note.ProjectID,
		DocumentID:  note.LinkedDocumentID,
		Type:        model.EventVoiceNote,
		Title:       fmt.Sprintf("Spraakbericht van %s", orUnknown(worker)),
		Description: desc,
		Metadata: model.JSONMap{
			"voice_note_id":      note.ID,
			"duration_seconds":   note.DurationSeconds,
			"duration_estimated": note.DurationEstimated,
			"sender":             note.Sender,
		},
	}
	if err := p.timeline.Create(ctx, event); err != nil {
		p.logger.WithContext(ctx).Error(err, "Failed to create timeline event", "voice_note_id", note.ID, "project_id", note.ProjectID)
	}
}

// Feedback is the reply sent after a voice note is stored.
func Feedback(note *model.VoiceNote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spraakbericht ontvangen (%d sec).", int(note.DurationSeconds+0.5))
	if note.Transcript != nil {
		t := *note.Transcript
		if r := []rune(t); len(r) > maxReplyTranscript {
			t = string(r[:maxReplyTranscript-1]) + "…"
		}
		fmt.Fprintf(&b, "\n\"%s\"", t)
	} else {
		b.WriteString("\nHet bericht kon niet worden uitgeschreven, de opname is wel bewaard.")
	}
	if note.LinkedDocumentID != nil {
		b.WriteString("\nGekoppeld aan je laatste foto.")
	}
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "onbekend"
	}
	return s
}
