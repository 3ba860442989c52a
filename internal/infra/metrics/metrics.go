package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	GenerationRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_requests_total",
		Help: "Запросы на генерацию контента по типу и исходу",
	}, []string{"kind", "status"})

	GenerationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_seconds",
		Help:    "Время генерации контента",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "post_publish_total",
		Help: "Попытки публикации по платформам",
	}, []string{"platform", "status"})

	PostTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "post_transitions_total",
		Help: "Переходы статусов запланированных постов",
	}, []string{"from", "to"})

	DispatchCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_cycle_seconds",
		Help:    "Длительность цикла диспетчера",
		Buckets: prometheus.DefBuckets,
	})

	DispatchLostClaims = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_lost_claims_total",
		Help: "Посты, которые диспетчер не смог захватить из-за конкурентной смены статуса",
	})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Запросы, отклонённые ограничителем частоты",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		GenerationRequests,
		GenerationSeconds,
		PublishTotal,
		PostTransitions,
		DispatchCycleSeconds,
		DispatchLostClaims,
		RateLimited,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveGeneration записывает исход и длительность генерации.
func ObserveGeneration(kind string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	GenerationRequests.WithLabelValues(kind, status).Inc()
	GenerationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObservePublish записывает исход публикации в платформу.
func ObservePublish(platform string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PublishTotal.WithLabelValues(platform, status).Inc()
}

// ObserveTransition записывает переход статуса поста.
func ObserveTransition(from, to string) {
	PostTransitions.WithLabelValues(from, to).Inc()
}
