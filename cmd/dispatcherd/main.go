// dispatcherd is the webhook delivery daemon. It consumes event occurrences
// from NSQ, fans them out to matched subscribers, and drives each delivery
// through its retry state machine. A JSON/HTTP management API rides along.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/austindbirch/hookrelay/internal/auth"
	"github.com/austindbirch/hookrelay/internal/config"
	"github.com/austindbirch/hookrelay/internal/db"
	"github.com/austindbirch/hookrelay/internal/dispatch"
	"github.com/austindbirch/hookrelay/internal/event"
	"github.com/austindbirch/hookrelay/internal/health"
	"github.com/austindbirch/hookrelay/internal/logging"
	"github.com/austindbirch/hookrelay/internal/metrics"
	"github.com/austindbirch/hookrelay/internal/ratelimit"
	"github.com/austindbirch/hookrelay/internal/retry"
	"github.com/austindbirch/hookrelay/internal/server"
	"github.com/austindbirch/hookrelay/internal/stats"
	"github.com/austindbirch/hookrelay/internal/store/postgres"
	"github.com/austindbirch/hookrelay/internal/tracing"
	"github.com/austindbirch/hookrelay/internal/webhook"
)

func main() {
	cfg := config.FromEnv()
	log := logging.New(cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, cfg.AppName)
	if err != nil {
		log.Plain().WithError(err).Warn("tracing init failed, continuing without export")
	} else {
		defer shutdownTracing()
	}

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		log.Plain().WithError(err).Fatal("database connect failed")
	}
	defer pool.Close()
	pg := postgres.New(pool)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	executor := webhook.NewExecutor(cfg.Delivery.AttemptTimeout)
	aggregator := stats.NewAggregator(pg)
	scheduler := retry.NewScheduler(pg, executor, aggregator, log)

	publisher, err := event.NewPublisher(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.EventsTopic, cfg.NSQ.ExhaustedTopic, log)
	if err != nil {
		log.Plain().WithError(err).Fatal("nsq producer connect failed")
	}
	defer publisher.Stop()
	if cfg.NSQ.PublishDLQ {
		scheduler.WithDeadLetter(publisher)
	}

	builder := webhook.NewRequestBuilder(cfg.Delivery.UserAgent)
	limiter := ratelimit.New()
	retryDefaults := webhook.RetryPolicy{
		MaxAttempts: cfg.Delivery.DefaultMaxAttempts,
		BaseDelay:   cfg.Delivery.DefaultBaseDelay,
		Multiplier:  cfg.Delivery.DefaultMultiplier,
		MaxDelay:    cfg.Delivery.DefaultMaxDelay,
	}
	svc := dispatch.NewService(pg, pg, builder, scheduler, limiter, executor, retryDefaults, log)

	scheduler.Start(ctx)
	if err := scheduler.Recover(ctx); err != nil {
		log.Plain().WithError(err).Error("retry recovery failed")
	}

	consumer, err := event.NewConsumer(cfg.NSQ.EventsTopic, cfg.NSQ.Channel, event.NewHandler(svc, log))
	if err != nil {
		log.Plain().WithError(err).Fatal("nsq consumer setup failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		log.Plain().WithError(err).Fatal("nsqlookupd connect failed")
	}

	validator := auth.NewValidator(cfg.Auth.TokenSecret, cfg.Auth.Issuer)
	api := server.New(svc, publisher, validator, health.HTTPHandler(pool, scheduler), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Plain().WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Plain().WithError(err).Fatal("http server failed")
		}
	}()

	log.Plain().WithFields(map[string]any{
		"events_topic": cfg.NSQ.EventsTopic,
		"channel":      cfg.NSQ.Channel,
	}).Info("dispatcher running")

	<-ctx.Done()
	log.Plain().Info("shutting down")

	consumer.Stop()
	<-consumer.StopChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Plain().WithError(err).Error("http shutdown failed")
	}

	log.Plain().Info("stopped")
}
