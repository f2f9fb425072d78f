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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/bouwupdate/intake-api/config"
	"github.com/bouwupdate/intake-api/internal/app"
	channelHandler "github.com/bouwupdate/intake-api/internal/handler/channel"
	"github.com/bouwupdate/intake-api/internal/handler/health"
	issueHandler "github.com/bouwupdate/intake-api/internal/handler/issue"
	mentionHandler "github.com/bouwupdate/intake-api/internal/handler/mention"
	projectHandler "github.com/bouwupdate/intake-api/internal/handler/project"
	promHandler "github.com/bouwupdate/intake-api/internal/handler/prometheus"
	"github.com/bouwupdate/intake-api/internal/handler/webhook"
	"github.com/bouwupdate/intake-api/internal/middleware"
	"github.com/bouwupdate/intake-api/internal/router"
	"github.com/bouwupdate/intake-api/pkg/auth"
	"github.com/bouwupdate/intake-api/pkg/logger"
	"github.com/bouwupdate/intake-api/pkg/metrics"
)

const metricsNamespace = "intake"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLog); err != nil {
		appLog.Fatal(err, "API server stopped with error")
	}
	appLog.Info("Server exited properly")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	infra, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry, metricsNamespace)

	svc := app.NewServices(cfg, infra, m, log, true)

	var validator middleware.TokenValidator
	if cfg.Auth.Enabled {
		v, err := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return fmt.Errorf("failed to create token validator: %w", err)
		}
		validator = v
	} else {
		log.Warn("Operator authentication disabled")
	}

	var limit rate.Limit
	if cfg.RateLimit.Enabled {
		limit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(validator),
		promHandler.New(registry, metricsNamespace),
		router.Handlers{
			Health: health.NewHandler(infra.Pingers()),
			Webhook: webhook.NewHandler(svc.Dispatcher, webhook.Config{
				AuthToken:       cfg.WhatsApp.AuthToken,
				VerifySignature: cfg.WhatsApp.VerifySignature,
				PublicURL:       cfg.WhatsApp.PublicURL,
			}, log),
			Operator: []router.Handler{
				channelHandler.NewHandler(svc.Gate),
				issueHandler.NewHandler(svc.Issues),
				mentionHandler.NewHandler(svc.Notifications),
				projectHandler.NewHandler(svc.Advance),
			},
		},
		log,
		router.RouterConfig{
			Mode:        ginMode(cfg.Server.Mode),
			RateLimit:   limit,
			RateBurst:   cfg.RateLimit.Burst,
			MaxBodySize: middleware.DefaultSizeLimitConfig().MaxBodySize,
		},
	)
	r.Setup()

	// Messages accepted before the last shutdown but never started.
	if _, err := svc.Dispatcher.Recover(ctx, time.Now(), cfg.Worker.BatchSize); err != nil {
		log.Error(err, "Failed to recover received messages")
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting API server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	// Accepted messages finish before connections close.
	if svc.Pool != nil {
		if err := svc.Pool.Stop(shutdownCtx); err != nil {
			log.Error(err, "Message pool did not drain")
		}
	}
	return nil
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}
