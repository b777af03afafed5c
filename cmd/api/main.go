package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hookqueue/hookqueue/internal/auth"
	"github.com/hookqueue/hookqueue/internal/config"
	"github.com/hookqueue/hookqueue/internal/db"
	"github.com/hookqueue/hookqueue/internal/health"
	"github.com/hookqueue/hookqueue/internal/history"
	"github.com/hookqueue/hookqueue/internal/ingress"
	"github.com/hookqueue/hookqueue/internal/logging"
	"github.com/hookqueue/hookqueue/internal/metrics"
	"github.com/hookqueue/hookqueue/internal/queue"
	queuepg "github.com/hookqueue/hookqueue/internal/queue/postgres"
	"github.com/hookqueue/hookqueue/internal/queue/redislist"
	"github.com/hookqueue/hookqueue/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	// Initialize structured logging
	logger := logging.New("hookqueue-api")

	// Initialize OpenTelemetry tracing
	shutdown, err := tracing.InitTracing(ctx, "hookqueue-api")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.ConnectWithRetry(ctx, cfg.DSN(), 2*time.Minute)
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Plain().WithError(err).Fatal("schema migration failed")
	}

	var store queue.Store
	var check health.Checker = pool
	switch cfg.Queue.Backend {
	case "redis":
		rs, err := redislist.NewStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Plain().WithError(err).Fatal("redis connect failed")
		}
		defer rs.Close()
		store = rs
		check = rs
	default:
		store = queuepg.NewStore(pool)
	}

	recorder := history.NewPostgresRecorder(pool)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	var validator *auth.JWTValidator
	if cfg.Ingress.AuthPublicKey != "" {
		validator, err = auth.NewJWTValidator(cfg.Ingress.AuthPublicKey, cfg.Ingress.AuthIssuer, cfg.Ingress.AuthAudience)
		if err != nil {
			logger.Plain().WithError(err).Fatal("invalid auth public key")
		}
		logger.Plain().Info("bearer auth enabled")
	}

	router := ingress.NewRouter(store, recorder, check, reg, validator, logger)
	srv := ingress.Serve(cfg.Ingress.HTTPPort, router)

	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("api server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("api server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down api service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Plain().WithError(err).Error("api shutdown failed")
	}
	logger.Plain().Info("api service stopped")
}
