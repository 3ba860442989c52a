package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"social-orchestrator/internal/app"
	"social-orchestrator/internal/infra/config"
	applog "social-orchestrator/internal/infra/log"
	"social-orchestrator/internal/infra/metrics"
	"social-orchestrator/internal/usecase/scheduling"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PGDSN == "" {
		logger.Fatal().Msg("scheduler: PG_DSN обязателен, иначе посты API не видны этому процессу")
	}
	res, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось подключить хранилища")
	}
	defer res.Close()

	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	dispatcher := scheduling.NewDispatcher(res.Store, res.Platforms(), res.Store, scheduling.DispatcherOptions{
		PollInterval:   cfg.Dispatch.PollInterval,
		BatchSize:      cfg.Dispatch.BatchSize,
		PublishTimeout: cfg.Timeouts.Publish,
	}, logger)

	dispatchQueue, err := res.DispatchQueue()
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось открыть очередь публикаций")
	}

	retention := scheduling.NewRetention(res.Store, cfg.Retention(), logger)
	if err := retention.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось запустить очистку")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	if dispatchQueue != nil {
		g.Go(func() error { return dispatcher.Consume(gctx, dispatchQueue) })
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("scheduler: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("scheduler: остановлен")
}
