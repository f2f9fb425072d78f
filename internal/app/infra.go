// Package app wires configuration onto concrete adapters and services. Both
// binaries build from it so the API and the worker always agree on drivers.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bouwupdate/intake-api/config"
	"github.com/bouwupdate/intake-api/internal/handler/health"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/internal/repository/memory"
	"github.com/bouwupdate/intake-api/internal/repository/postgres"
	"github.com/bouwupdate/intake-api/pkg/email"
	"github.com/bouwupdate/intake-api/pkg/gemini"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/messaging"
	"github.com/bouwupdate/intake-api/pkg/messaging/redis"
	"github.com/bouwupdate/intake-api/pkg/storage"
	"github.com/bouwupdate/intake-api/pkg/transport"
	"github.com/bouwupdate/intake-api/pkg/worker"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Infra holds every external connection. Optional adapters are nil when
// their section is disabled.
type Infra struct {
	Store       *repository.Store
	DB          *sqlx.DB
	Broker      messaging.Broker
	Redis       *redis.RedisBroker
	Archive     storage.ObjectStore
	Transport   transport.Transport
	Mailer      email.Sender
	Classifier  gemini.Generator
	Transcriber gemini.Generator

	closers []io.Closer
}

// Open connects everything cfg enables. On error the connections opened so
// far are closed.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Infra, err error) {
	in := &Infra{Broker: messaging.NopBroker{}, Mailer: email.Nop{}}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	switch cfg.Storage.Driver {
	case DriverMemory:
		in.Store = memory.New().Store()
		in.Archive = storage.NewMemory("memory://media")
		log.Warn("Using in-memory storage; data is lost on restart")
	default:
		var db *sqlx.DB
		// The database container often starts after the service.
		err := worker.Retry(ctx, connectAttempts, connectDelay, func() error {
			var cerr error
			db, cerr = postgres.NewDB(cfg.Database)
			return cerr
		})
		if err != nil {
			return nil, err
		}
		in.DB = db
		in.closers = append(in.closers, db)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to prepare schema: %w", err)
		}
		in.Store = postgres.NewStore(db)
	}

	if cfg.Storage.S3.Enabled {
		s3, err := storage.NewS3Client(ctx, cfg.Storage.S3.ToStorageConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		in.Archive = s3
	}

	if cfg.Redis.Enabled {
		broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), log)
		if err != nil {
			return nil, err
		}
		in.Redis = broker
		in.Broker = broker
		in.closers = append(in.closers, broker)
	}

	client := transport.NewClient(cfg.WhatsApp.ToTransportConfig())
	if cfg.WhatsApp.AccountSID == "" {
		log.Warn("WhatsApp credentials missing; outbound messages are only logged")
		in.Transport = transport.NewLogTransport(client, log)
	} else {
		in.Transport = client
	}

	if cfg.SMTP.Enabled {
		mailer, err := email.NewSMTPSender(cfg.SMTP.ToEmailConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create smtp sender: %w", err)
		}
		in.Mailer = mailer
	}

	if cfg.Gemini.APIKey != "" {
		cls, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.ClassifierModel)
		if err != nil {
			return nil, err
		}
		in.Classifier = cls
		in.closers = append(in.closers, cls)

		if cfg.Gemini.TranscriberModel == cfg.Gemini.ClassifierModel {
			in.Transcriber = cls
		} else {
			tx, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.TranscriberModel)
			if err != nil {
				return nil, err
			}
			in.Transcriber = tx
			in.closers = append(in.closers, tx)
		}
	} else {
		log.Warn("Gemini API key missing; classification and transcription run degraded")
	}

	return in, nil
}

// Pingers lists the dependencies readiness should check.
func (in *Infra) Pingers() map[string]health.Pinger {
	deps := map[string]health.Pinger{}
	if in.DB != nil {
		deps["database"] = in.DB
	}
	if in.Redis != nil {
		deps["redis"] = in.Redis
	}
	return deps
}

// Close releases connections in reverse order.
func (in *Infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		_ = in.closers[i].Close()
	}
	in.closers = nil
}
