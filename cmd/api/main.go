package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"social-orchestrator/internal/adapters/httpapi"
	"social-orchestrator/internal/app"
	"social-orchestrator/internal/infra/config"
	httpinfra "social-orchestrator/internal/infra/http"
	applog "social-orchestrator/internal/infra/log"
	"social-orchestrator/internal/infra/metrics"
	"social-orchestrator/internal/usecase/content"
	"social-orchestrator/internal/usecase/scheduling"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось подключить хранилища")
	}
	defer res.Close()

	platforms := res.Platforms()
	documents := res.Documents()
	gens := res.Generators()
	contentService := content.NewService(gens.Text, gens.Images, gens.Ideas, documents, content.Options{ProviderTimeout: cfg.Timeouts.Provider, Trends: res.Trends()}, logger)
	schedulingService := scheduling.NewService(res.Store, platforms, res.Store, nil, logger)

	dispatchQueue, err := res.DispatchQueue()
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось открыть очередь публикаций")
	}

	g, gctx := errgroup.WithContext(ctx)

	if dispatchQueue != nil {
		schedulingService.SetNotifier(scheduling.QueueNotifier{Queue: dispatchQueue})
	}
	if cfg.Dispatch.Embedded {
		dispatcher := scheduling.NewDispatcher(res.Store, platforms, res.Store, scheduling.DispatcherOptions{
			PollInterval:   cfg.Dispatch.PollInterval,
			BatchSize:      cfg.Dispatch.BatchSize,
			PublishTimeout: cfg.Timeouts.Publish,
		}, logger)
		if dispatchQueue == nil {
			schedulingService.SetNotifier(dispatcher)
		} else {
			g.Go(func() error { return dispatcher.Consume(gctx, dispatchQueue) })
		}
		g.Go(func() error { return dispatcher.Run(gctx) })
	} else if dispatchQueue == nil {
		logger.Warn().Msg("api: диспетчер выключен и очередь не задана, посты опубликует только периодический цикл планировщика")
	}

	server := httpinfra.NewServer(logger, httpinfra.Options{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RequestTimeout: cfg.Timeouts.Provider * 5 / 2,
		Limiter:        res.Limiter(),
		LimitWindow:    cfg.HTTP.RateLimitPeriod,
	})
	httpapi.NewHandler(httpapi.Deps{
		Content:    contentService,
		Scheduling: schedulingService,
		Analytics:  scheduling.NewAnalytics(res.Store),
		Platforms:  platforms,
		Documents:  documents,
		Health:     res.Health,
		Production: cfg.Production(),
	}, logger).Register(server.Router)

	g.Go(func() error {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("api: остановлен")
}
