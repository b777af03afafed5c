package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookqueue/hookqueue/internal/config"
	"github.com/hookqueue/hookqueue/internal/db"
	"github.com/hookqueue/hookqueue/internal/deadletter"
	"github.com/hookqueue/hookqueue/internal/dispatcher"
	"github.com/hookqueue/hookqueue/internal/health"
	"github.com/hookqueue/hookqueue/internal/history"
	"github.com/hookqueue/hookqueue/internal/logging"
	"github.com/hookqueue/hookqueue/internal/metrics"
	"github.com/hookqueue/hookqueue/internal/queue"
	queuepg "github.com/hookqueue/hookqueue/internal/queue/postgres"
	"github.com/hookqueue/hookqueue/internal/queue/redislist"
	"github.com/hookqueue/hookqueue/internal/retry"
	"github.com/hookqueue/hookqueue/internal/sender"
	"github.com/hookqueue/hookqueue/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	// Initialize structured logging
	logger := logging.New("hookqueue-dispatcher")

	// Initialize OpenTelemetry tracing
	shutdown, err := tracing.InitTracing(ctx, "hookqueue-dispatcher")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	// DB connect; history always lives in postgres, the queue may not
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

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// HTTP health/metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(check))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Dispatcher.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("dispatcher HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("dispatcher HTTP server failed")
		}
	}()

	// Dead-letter producer, off by default
	var dlq *deadletter.Publisher
	if cfg.NSQ.PublishDeadLetter {
		dlq, err = deadletter.NewPublisher(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.DeadLetterTopic, logger)
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer for dead letters failed")
		}
		defer dlq.Stop()
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
		Step:        cfg.Dispatcher.RetryStep,
	}
	d := dispatcher.New(store, recorder, sender.New(), policy, dlq, logger, dispatcher.Options{
		PollInterval: cfg.Dispatcher.PollInterval,
		Workers:      cfg.Dispatcher.Workers,
	})

	// Graceful stop
	runCtx, cancel := context.WithCancel(ctx)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-stop
		logger.Plain().Info("Shutting down dispatcher service")
		cancel()
	}()

	d.Run(runCtx)

	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("dispatcher service stopped")
}
