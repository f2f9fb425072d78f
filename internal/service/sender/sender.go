// Package sender resolves inbound senders to project channels and handles
// one-time code verification and channel invites.
package sender

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/pkg/errors"
	"github.com/bouwupdate/intake-api/pkg/keylock"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/security"
	"github.com/bouwupdate/intake-api/pkg/transport"
)

// Fixed replies sent to the worker.
const (
	ReplyUnknownSender = "Dit nummer is niet gekoppeld aan een bouwproject. Vraag je uitvoerder om je uit te nodigen."
	ReplyReminder      = "Je nummer is nog niet geverifieerd. Stuur de 6-cijferige code uit je uitnodiging om te beginnen."
	ReplyCodeExpired   = "Je verificatiecode is verlopen. Vraag je uitvoerder om een nieuwe uitnodiging."
	replyVerified      = "Gelukt! Je nummer is gekoppeld aan project %s. Stuur foto's, spraakberichten of 'help' voor een overzicht van de commando's."
	replyInvite        = "Hallo %s, je bent uitgenodigd voor project %s. Stuur deze code terug om je nummer te verifiëren: %s"
)

type Outcome string

const (
	// OutcomeRouted means the channel is verified and the message continues
	// into the pipeline.
	OutcomeRouted     Outcome = "routed"
	OutcomeVerified   Outcome = "verified"
	OutcomeUnverified Outcome = "unverified"
	OutcomeUnroutable Outcome = "unroutable"
)

// Decision is the gate's verdict for one message. Reply is sent to the sender
// when non-empty; Status is the terminal status for non-routed messages.
type Decision struct {
	Outcome Outcome
	Channel *model.Channel
	Reply   string
	Status  model.MessageStatus
	Err     error
}

// Routed reports whether the message should be processed further.
func (d Decision) Routed() bool {
	return d.Outcome == OutcomeRouted
}

type Config struct {
	CacheTTL  time.Duration
	InviteTTL time.Duration
}

type Gate struct {
	channels  repository.ChannelRepository
	projects  repository.ProjectRepository
	hasher    security.CodeHasher
	transport transport.Transport
	verified  *cache.Cache
	locks     *keylock.Locker
	inviteTTL time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func NewGate(store *repository.Store, hasher security.CodeHasher, tr transport.Transport, cfg Config, log *logger.Logger, opts ...Option) *Gate {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	g := &Gate{
		channels:  store.Channels,
		projects:  store.Projects,
		hasher:    hasher,
		transport: tr,
		verified:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		locks:     keylock.New(),
		inviteTTL: cfg.InviteTTL,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve decides how an inbound message is routed. Verification of a
// channel happens at most once; the stored code is cleared in the same write.
func (g *Gate) Resolve(ctx context.Context, msg *model.InboundMessage) (Decision, error) {
	phone := transport.NormalizePhone(msg.Sender)
	if ch, ok := g.verified.Get(phone); ok {
		return Decision{Outcome: OutcomeRouted, Channel: ch.(*model.Channel)}, nil
	}

	unlock := g.locks.Lock(phone)
	defer unlock()

	ch, err := g.channels.GetActiveByPhone(ctx, phone)
	if stderrors.Is(err, repository.ErrNotFound) {
		return Decision{
			Outcome: OutcomeUnroutable,
			Reply:   ReplyUnknownSender,
			Status:  model.MessageStatusFailed,
			Err:     errors.Unroutable(phone),
		}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("lookup channel for %s: %w", phone, err)
	}

	if ch.Verified {
		g.verified.SetDefault(phone, ch)
		return Decision{Outcome: OutcomeRouted, Channel: ch}, nil
	}

	now := g.now().UTC()
	if !ch.HasPendingCode(now) {
		reply := ReplyReminder
		if ch.CodeHash != nil {
			reply = ReplyCodeExpired
		}
		return g.unverified(ch, phone, reply), nil
	}
	if err := g.hasher.Compare(*ch.CodeHash, msg.Text); err != nil {
		return g.unverified(ch, phone, ReplyReminder), nil
	}

	changed, err := g.channels.MarkVerified(ctx, ch.ID, now)
	if err != nil {
		return Decision{}, fmt.Errorf("mark channel %s verified: %w", ch.ID, err)
	}
	if !changed {
		return g.unverified(ch, phone, ReplyReminder), nil
	}
	ch.Verified = true
	ch.VerifiedAt = &now
	ch.CodeHash = nil
	ch.CodeExpiresAt = nil

	g.logger.WithContext(ctx).Info("Channel verified", "channel_id", ch.ID, "project_id", ch.ProjectID, "sender", phone)
	return Decision{
		Outcome: OutcomeVerified,
		Channel: ch,
		Reply:   fmt.Sprintf(replyVerified, g.projectName(ctx, ch.ProjectID)),
		Status:  model.MessageStatusProcessed,
	}, nil
}

func (g *Gate) unverified(ch *model.Channel, phone, reply string) Decision {
	return Decision{
		Outcome: OutcomeUnverified,
		Channel: ch,
		Reply:   reply,
		Status:  model.MessageStatusFailed,
		Err:     errors.Unverified(phone),
	}
}

func (g *Gate) projectName(ctx context.Context, projectID string) string {
	p, err := g.projects.Get(ctx, projectID)
	if err != nil {
		return projectID
	}
	return p.Name
}

// InviteRequest registers a worker phone on a project.
type InviteRequest struct {
	Phone      string `json:"phone" binding:"required"`
	ProjectID  string `json:"project_id" binding:"required"`
	WorkerName string `json:"worker_name" binding:"required"`
}

// Invite creates an unverified channel with a fresh one-time code and sends
// the code to the worker. The plain code is returned only to the caller.
func (g *Gate) Invite(ctx context.Context, req InviteRequest) (*model.Channel, string, error) {
	phone := transport.NormalizePhone(req.Phone)
	if phone == "" || strings.TrimSpace(req.ProjectID) == "" {
		return nil, "", errors.BadRequest("phone and project_id are required", nil)
	}
	project, err := g.projects.Get(ctx, req.ProjectID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, "", errors.NotFound("project", err)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load project: %w", err)
	}

	code, hash, err := g.newCode()
	if err != nil {
		return nil, "", err
	}
	now := g.now().UTC()
	expires := now.Add(g.inviteTTL)
	ch := &model.Channel{
		Base:          model.Base{ID: uuid.NewString(), CreatedAt: now},
		Phone:         phone,
		ProjectID:     project.ID,
		CompanyID:     project.CompanyID,
		WorkerName:    strings.TrimSpace(req.WorkerName),
		CodeHash:      &hash,
		CodeExpiresAt: &expires,
		Active:        true,
	}
	if err := g.channels.Create(ctx, ch); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, "", errors.NewConflict("phone already has an active channel", err)
		}
		return nil, "", fmt.Errorf("create channel: %w", err)
	}

	g.sendCode(ctx, ch, project.Name, code)
	return ch, code, nil
}

// Reinvite issues a new code for an unverified channel.
func (g *Gate) Reinvite(ctx context.Context, channelID string) (*model.Channel, string, error) {
	ch, err := g.get(ctx, channelID)
	if err != nil {
		return nil, "", err
	}
	if ch.Verified || !ch.Active {
		return nil, "", errors.BadRequest("channel is not awaiting verification", nil)
	}
	code, hash, err := g.newCode()
	if err != nil {
		return nil, "", err
	}
	expires := g.now().UTC().Add(g.inviteTTL)
	if err := g.channels.SetCode(ctx, ch.ID, hash, expires); err != nil {
		return nil, "", fmt.Errorf("store code: %w", err)
	}
	ch.CodeHash = &hash
	ch.CodeExpiresAt = &expires

	g.sendCode(ctx, ch, g.projectName(ctx, ch.ProjectID), code)
	return ch, code, nil
}

// Deactivate retires a channel. Later messages from its phone are unroutable.
func (g *Gate) Deactivate(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := g.get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	now := g.now().UTC()
	if err := g.channels.Deactivate(ctx, ch.ID, now); err != nil {
		return nil, fmt.Errorf("deactivate channel: %w", err)
	}
	g.verified.Delete(ch.Phone)
	if ch.Active {
		ch.Active = false
		ch.DeactivatedAt = &now
	}
	g.logger.WithContext(ctx).Info("Channel deactivated", "channel_id", ch.ID, "project_id", ch.ProjectID)
	return ch, nil
}

func (g *Gate) get(ctx context.Context, id string) (*model.Channel, error) {
	ch, err := g.channels.Get(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("channel", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	return ch, nil
}

func (g *Gate) newCode() (string, string, error) {
	code, err := security.GenerateCode()
	if err != nil {
		return "", "", fmt.Errorf("generate code: %w", err)
	}
	hash, err := g.hasher.Hash(code)
	if err != nil {
		return "", "", fmt.Errorf("hash code: %w", err)
	}
	return code, hash, nil
}

// sendCode delivers the invite. A failed send leaves the channel in place so
// the operator can reinvite.
func (g *Gate) sendCode(ctx context.Context, ch *model.Channel, projectName, code string) {
	if g.transport == nil {
		return
	}
	if err := g.transport.Send(ctx, ch.Phone, fmt.Sprintf(replyInvite, ch.WorkerName, projectName, code)); err != nil {
		g.logger.WithContext(ctx).Error(err, "Failed to send invite code", "channel_id", ch.ID, "sender", ch.Phone)
	}
}
