// Package intake accepts inbound messages, stores them and drives each one
// through the sender gate and the matching processor to a terminal status.
package intake

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/internal/service/media"
	"github.com/bouwupdate/intake-api/internal/service/sender"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/metrics"
	"github.com/bouwupdate/intake-api/pkg/transport"
	"github.com/bouwupdate/intake-api/pkg/worker"
)

// ReplyProcessingFailed is sent when a routed message could not be processed.
const ReplyProcessingFailed = "Er ging iets mis bij het verwerken van je bericht. Probeer het later opnieuw."

// Inbound is one webhook delivery.
type Inbound struct {
	ProviderID string
	From       string
	Body       string
	MediaURL   string
	MediaType  string
}

type Gate interface {
	Resolve(ctx context.Context, msg *model.InboundMessage) (sender.Decision, error)
}

type MediaProcessor interface {
	Process(ctx context.Context, msg *model.InboundMessage, ch *model.Channel) (*media.Result, error)
}

type VoiceProcessor interface {
	Process(ctx context.Context, msg *model.InboundMessage, ch *model.Channel) (*model.VoiceNote, error)
}

type CommandHandler interface {
	Handle(ctx context.Context, text string, ch *model.Channel) (string, error)
}

type Dispatcher struct {
	messages  repository.MessageRepository
	gate      Gate
	media     MediaProcessor
	voice     VoiceProcessor
	commands  CommandHandler
	transport transport.Transport
	pool      *worker.Pool
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithPool processes accepted messages in the background. Without a pool
// Receive processes inline.
func WithPool(p *worker.Pool) Option {
	return func(d *Dispatcher) { d.pool = p }
}

func NewDispatcher(
	messages repository.MessageRepository,
	gate Gate,
	mediaProc MediaProcessor,
	voice VoiceProcessor,
	commands CommandHandler,
	tr transport.Transport,
	log *logger.Logger,
	opts ...Option,
) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	d := &Dispatcher{
		messages:  messages,
		gate:      gate,
		media:     mediaProc,
		voice:     voice,
		commands:  commands,
		transport: tr,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Receive stores the message as RECEIVED and schedules it. A repeated
// provider id returns the stored message with duplicate set; it is scheduled
// again only while it is still RECEIVED, which happens when the first
// delivery was stored but could not be scheduled.
func (d *Dispatcher) Receive(ctx context.Context, in Inbound) (msg *model.InboundMessage, duplicate bool, err error) {
	providerID := strings.TrimSpace(in.ProviderID)
	if providerID == "" {
		providerID = uuid.NewString()
	}
	msg = &model.InboundMessage{
		Base:       model.Base{ID: uuid.NewString(), CreatedAt: d.now().UTC()},
		ProviderID: providerID,
		Sender:     transport.NormalizePhone(in.From),
		Text:       strings.TrimSpace(in.Body),
		MediaURL:   strings.TrimSpace(in.MediaURL),
		MediaType:  strings.TrimSpace(in.MediaType),
		MediaKind:  model.MediaKindFromMIME(in.MediaType),
		Status:     model.MessageStatusReceived,
	}
	if msg.Sender == "" {
		return nil, false, fmt.Errorf("inbound message has no sender")
	}

	if err := d.messages.Create(ctx, msg); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			existing, gerr := d.messages.GetByProviderID(ctx, providerID)
			if gerr != nil {
				return nil, true, fmt.Errorf("load duplicate message %s: %w", providerID, gerr)
			}
			d.logger.WithContext(ctx).Info("Duplicate delivery acknowledged", "message_id", existing.ID, "provider_id", providerID, "status", string(existing.Status))
			if existing.Status != model.MessageStatusReceived {
				return existing, true, nil
			}
			return existing, true, d.schedule(ctx, existing.ID)
		}
		return nil, false, fmt.Errorf("store inbound message: %w", err)
	}
	return msg, false, d.schedule(ctx, msg.ID)
}

func (d *Dispatcher) schedule(ctx context.Context, id string) error {
	if d.pool == nil {
		d.Process(ctx, id)
		return nil
	}
	if err := d.pool.Submit(func(ctx context.Context) { d.Process(ctx, id) }); err != nil {
		return fmt.Errorf("schedule message %s: %w", id, err)
	}
	return nil
}

// Recover schedules messages that were stored before before but never
// started, for instance because the process stopped with them queued.
// Scheduling a message that is already running elsewhere is harmless.
func (d *Dispatcher) Recover(ctx context.Context, before time.Time, limit int) (int, error) {
	stale, err := d.messages.ListReceived(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("list received messages: %w", err)
	}
	n := 0
	for _, msg := range stale {
		if err := d.schedule(ctx, msg.ID); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		d.logger.WithContext(ctx).Info("Recovered unprocessed messages", "count", n)
	}
	return n, nil
}

// Process runs one stored message to PROCESSED or FAILED. Only the caller
// that moves the message out of RECEIVED processes it; everyone else
// returns without side effects.
func (d *Dispatcher) Process(ctx context.Context, messageID string) {
	start := d.now()
	log := d.logger.WithContext(ctx)

	msg, err := d.messages.Get(ctx, messageID)
	if err != nil {
		log.Error(err, "Failed to load inbound message", "message_id", messageID)
		return
	}
	if msg.Status != model.MessageStatusReceived {
		return
	}
	started, err := d.messages.StartProcessing(ctx, msg.ID, d.now().UTC())
	if err != nil {
		log.Error(err, "Failed to start processing message", "message_id", msg.ID)
		return
	}
	if !started {
		return
	}
	msg.Status = model.MessageStatusProcessing
	kind := kindLabel(msg)

	decision, err := d.gate.Resolve(ctx, msg)
	if err != nil {
		d.finish(ctx, msg, kind, start, err, ReplyProcessingFailed)
		return
	}
	if decision.Channel != nil {
		if err := d.messages.AssignChannel(ctx, msg.ID, decision.Channel.ID, decision.Channel.ProjectID); err != nil {
			log.Warn("Failed to assign channel", "message_id", msg.ID, "error", err.Error())
		}
		projectID, channelID := decision.Channel.ProjectID, decision.Channel.ID
		msg.ProjectID, msg.ChannelID = &projectID, &channelID
	}
	if !decision.Routed() {
		d.send(ctx, msg.Sender, decision.Reply)
		var errMsg *string
		if decision.Err != nil {
			s := decision.Err.Error()
			errMsg = &s
			log.Info("Message not routed", "message_id", msg.ID, "sender", msg.Sender, "outcome", string(decision.Outcome))
		}
		d.setStatus(ctx, msg, decision.Status, errMsg)
		d.metrics.ObserveMessage(kind, string(decision.Outcome), d.now().Sub(start))
		return
	}

	err = d.route(ctx, msg, decision.Channel)
	d.finish(ctx, msg, kind, start, err, ReplyProcessingFailed)
}

func (d *Dispatcher) route(ctx context.Context, msg *model.InboundMessage, ch *model.Channel) error {
	switch {
	case msg.HasMedia() && msg.MediaKind == model.MediaKindAudio:
		_, err := d.voice.Process(ctx, msg, ch)
		return err
	case msg.HasMedia():
		_, err := d.media.Process(ctx, msg, ch)
		return err
	default:
		reply, err := d.commands.Handle(ctx, msg.Text, ch)
		if err != nil {
			return err
		}
		d.send(ctx, msg.Sender, reply)
		return nil
	}
}

func (d *Dispatcher) finish(ctx context.Context, msg *model.InboundMessage, kind string, start time.Time, err error, failReply string) {
	if err == nil {
		d.setStatus(ctx, msg, model.MessageStatusProcessed, nil)
		d.metrics.ObserveMessage(kind, "processed", d.now().Sub(start))
		return
	}
	project := ""
	if msg.ProjectID != nil {
		project = *msg.ProjectID
	}
	d.logger.WithContext(ctx).Error(err, "Message processing failed", "message_id", msg.ID, "sender", msg.Sender, "project_id", project)
	s := err.Error()
	d.setStatus(ctx, msg, model.MessageStatusFailed, &s)
	d.send(ctx, msg.Sender, failReply)
	d.metrics.ObserveMessage(kind, "failed", d.now().Sub(start))
}

func (d *Dispatcher) setStatus(ctx context.Context, msg *model.InboundMessage, status model.MessageStatus, errMsg *string) {
	if err := d.messages.UpdateStatus(ctx, msg.ID, status, errMsg, d.now().UTC()); err != nil {
		d.logger.WithContext(ctx).Error(err, "Failed to update message status", "message_id", msg.ID, "status", string(status))
		return
	}
	msg.Status = status
}

func (d *Dispatcher) send(ctx context.Context, to, text string) {
	if text == "" {
		return
	}
	if err := d.transport.Send(ctx, to, text); err != nil {
		d.logger.WithContext(ctx).Warn("Failed to send reply", "sender", to, "error", err.Error())
	}
}

func kindLabel(msg *model.InboundMessage) string {
	if !msg.HasMedia() {
		return "text"
	}
	if msg.MediaKind == model.MediaKindNone {
		return "unknown"
	}
	return string(msg.MediaKind)
}
