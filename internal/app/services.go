package app

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/bouwupdate/intake-api/config"
	"github.com/bouwupdate/intake-api/internal/service/advance"
	"github.com/bouwupdate/intake-api/internal/service/classifier"
	"github.com/bouwupdate/intake-api/internal/service/command"
	"github.com/bouwupdate/intake-api/internal/service/intake"
	"github.com/bouwupdate/intake-api/internal/service/issue"
	"github.com/bouwupdate/intake-api/internal/service/media"
	"github.com/bouwupdate/intake-api/internal/service/notification"
	"github.com/bouwupdate/intake-api/internal/service/phase"
	"github.com/bouwupdate/intake-api/internal/service/sender"
	"github.com/bouwupdate/intake-api/internal/service/transcriber"
	"github.com/bouwupdate/intake-api/internal/service/voicenote"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/metrics"
	"github.com/bouwupdate/intake-api/pkg/security"
	"github.com/bouwupdate/intake-api/pkg/worker"
)

type Services struct {
	Gate          *sender.Gate
	Advance       *advance.Controller
	Issues        *issue.Service
	Notifications *notification.Service
	Dispatcher    *intake.Dispatcher
	// Pool runs inbound messages; nil when the dispatcher runs inline.
	Pool *worker.Pool
}

// NewServices builds the pipeline. withPool selects asynchronous processing
// for the webhook; the worker binary only needs notifications and passes
// false.
func NewServices(cfg *config.Config, in *Infra, m *metrics.Metrics, log *logger.Logger, withPool bool) *Services {
	store := in.Store
	engine := phase.NewEngine(store.Documents, cfg.Inference.ToThresholds())
	ctrl := advance.NewController(store.Projects, engine, in.Broker, log, advance.WithMetrics(m))

	notifier := notification.NewService(store, in.Transport, in.Mailer, in.Broker, log,
		notification.WithMetrics(m),
		notification.WithMaxWorkers(cfg.Pipeline.NotifyMaxWorkers),
	)
	issues := issue.NewService(store, notifier, in.Broker, log, issue.WithMetrics(m))

	cls := classifier.NewService(in.Classifier, cfg.Pipeline.AdapterTimeout, m, log)
	tx := transcriber.NewService(in.Transcriber, cfg.Pipeline.AdapterTimeout, m, log)

	var mediaOpts []media.Option
	var voiceOpts []voicenote.Option
	if in.Archive != nil {
		mediaOpts = append(mediaOpts, media.WithArchive(in.Archive))
		voiceOpts = append(voiceOpts, voicenote.WithArchive(in.Archive))
	}
	mediaProc := media.NewProcessor(store, in.Transport, cls, engine, issues, ctrl, media.Config{
		DownloadTimeout: cfg.Pipeline.AdapterTimeout,
		FeedbackDelay:   cfg.Pipeline.FeedbackDelay,
	}, log, mediaOpts...)
	voice := voicenote.NewProcessor(store, in.Transport, tx, voicenote.Config{
		LinkWindow:      cfg.Pipeline.VoiceLinkWindow,
		DownloadTimeout: cfg.Pipeline.AdapterTimeout,
	}, log, voiceOpts...)

	gate := sender.NewGate(store, security.NewBcryptHasher(bcrypt.DefaultCost), in.Transport, sender.Config{
		CacheTTL:  cfg.Pipeline.ChannelCacheTTL,
		InviteTTL: cfg.Pipeline.InviteCodeTTL,
	}, log)

	s := &Services{
		Gate:          gate,
		Advance:       ctrl,
		Issues:        issues,
		Notifications: notifier,
	}
	opts := []intake.Option{intake.WithMetrics(m)}
	if withPool {
		s.Pool = worker.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, log)
		opts = append(opts, intake.WithPool(s.Pool))
	}
	s.Dispatcher = intake.NewDispatcher(store.Messages, gate, mediaProc, voice,
		command.NewInterpreter(ctrl, store.Issues), in.Transport, log, opts...)
	return s
}
