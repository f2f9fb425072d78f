package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/bouwupdate/intake-api/config"
	"github.com/bouwupdate/intake-api/internal/app"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/metrics"
	"github.com/bouwupdate/intake-api/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(ctx context.Context, registry *prometheus.Registry, infra *app.Infra, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		for name, p := range infra.Pingers() {
			if err := p.PingContext(r.Context()); err != nil {
				http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	}).WithFields(map[string]interface{}{"worker_id": workerID()})

	if cfg.Storage.Driver == app.DriverMemory {
		appLog.Fatal(errors.New("memory driver"), "The retry worker needs shared storage; use the postgres driver")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal(err, "Failed to open infrastructure")
	}
	defer infra.Close()

	registry := prometheus.NewRegistry()
	svc := app.NewServices(cfg, infra, metrics.New(registry, "intake_worker"), appLog, false)
	setupHealthCheck(ctx, registry, infra, appLog)

	batch := cfg.Worker.BatchSize
	retry := worker.NewPoller("mention-retry", cfg.Worker.PollInterval, func(ctx context.Context) error {
		_, err := svc.Notifications.RetryPending(ctx, batch)
		return err
	}, appLog)

	recoverAfter := cfg.Pipeline.RecoverAfter
	recovery := worker.NewPoller("message-recovery", cfg.Worker.PollInterval, func(ctx context.Context) error {
		_, err := svc.Dispatcher.Recover(ctx, time.Now().Add(-recoverAfter), batch)
		return err
	}, appLog)

	done := make(chan struct{})
	go func() {
		defer close(done)
		recovery.Start(ctx)
	}()
	retry.Start(ctx)
	<-done
	appLog.Info("Worker stopped")
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
