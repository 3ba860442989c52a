package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"social-orchestrator/internal/adapters/generator"
	"social-orchestrator/internal/adapters/platform"
	"social-orchestrator/internal/adapters/repo"
	"social-orchestrator/internal/adapters/trends"
	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/cache"
	"social-orchestrator/internal/infra/config"
	"social-orchestrator/internal/infra/db"
	"social-orchestrator/internal/infra/queue"
)

// Store объединяет хранилище постов и журнал переходов.
type Store interface {
	domain.PostStore
	domain.PostEventRepo
}

// Resources держит подключения процесса и закрывает их в обратном порядке.
type Resources struct {
	Store  Store
	Redis  *redis.Client
	Health func(ctx context.Context) error

	cfg     config.AppConfig
	log     zerolog.Logger
	closers []func()
}

// Open подключает Postgres и Redis, если они заданы в конфиге. Без PG_DSN посты
// хранятся в памяти процесса.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Resources, error) {
	r := &Resources{cfg: cfg, log: logger}
	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("подключение к БД: %w", err)
		}
		r.closers = append(r.closers, pool.Close)
		pg := repo.NewPostgres(pool)
		r.Store = pg
		r.Health = pg.Ping
	} else {
		logger.Warn().Msg("PG_DSN не задан, посты хранятся в памяти")
		r.Store = repo.NewMemory()
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			r.Close()
			_ = client.Close()
			return nil, fmt.Errorf("подключение к Redis: %w", err)
		}
		r.Redis = client
		r.closers = append(r.closers, func() { _ = client.Close() })
	}
	return r, nil
}

// Close освобождает подключения.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Platforms собирает реестр площадок. Площадки без токенов регистрируются
// выключенными, чтобы фронтенд видел их в списке.
func (r *Resources) Platforms() *platform.Registry {
	cfg := r.cfg
	client := &http.Client{}
	return platform.NewRegistry(cfg.Timeouts.Publish, r.log,
		platform.NewTwitter(cfg.Twitter.BaseURL, cfg.Twitter.BearerToken, client),
		platform.NewInstagram(cfg.Instagram.BaseURL, cfg.Instagram.AccessToken, cfg.Instagram.AccountID, client),
		platform.NewLinkedIn(cfg.LinkedIn.BaseURL, cfg.LinkedIn.AccessToken, cfg.LinkedIn.AuthorURN, client),
		platform.NewFacebook(cfg.Facebook.BaseURL, cfg.Facebook.PageToken, cfg.Facebook.PageID, client),
	)
}

// DispatchQueue открывает межпроцессную очередь публикаций. Для DISPATCH_QUEUE=none
// возвращает nil.
func (r *Resources) DispatchQueue() (domain.DispatchQueue, error) {
	cfg := r.cfg
	switch cfg.Dispatch.Queue {
	case "", "none":
		return nil, nil
	case "memory":
		return queue.NewMemoryDispatchQueue(256), nil
	case "redis":
		if r.Redis == nil {
			return nil, fmt.Errorf("DISPATCH_QUEUE=redis требует REDIS_ADDR")
		}
		return queue.NewRedisDispatchQueue(r.Redis, cfg.Dispatch.QueueKey), nil
	case "rabbitmq":
		if cfg.RabbitURL == "" {
			return nil, fmt.Errorf("DISPATCH_QUEUE=rabbitmq требует RABBITMQ_URL")
		}
		q, err := queue.NewRabbitDispatchQueue(cfg.RabbitURL, cfg.Dispatch.QueueKey)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func() { _ = q.Close() })
		return q, nil
	default:
		return nil, fmt.Errorf("неизвестная очередь %q", cfg.Dispatch.Queue)
	}
}

// Documents возвращает базу знаний: Redis, если он подключён, иначе память.
func (r *Resources) Documents() domain.DocumentStore {
	if r.Redis != nil {
		return repo.NewRedisDocuments(r.Redis, "docs")
	}
	return repo.NewMemoryDocuments()
}

// Limiter возвращает ограничитель запросов. Вне production ограничение выключено.
func (r *Resources) Limiter() domain.RateLimiter {
	cfg := r.cfg
	if !cfg.Production() {
		return nil
	}
	if r.Redis != nil {
		return cache.NewRedisLimiter(r.Redis, "ratelimit", cfg.HTTP.RateLimitCalls, cfg.HTTP.RateLimitPeriod)
	}
	return cache.NewMemoryLimiter(cfg.HTTP.RateLimitCalls, cfg.HTTP.RateLimitPeriod)
}

// Trends возвращает источник трендов для брейншторма или nil, если он выключен.
func (r *Resources) Trends() domain.TrendingSource {
	cfg := r.cfg
	if !cfg.Trends.Enabled {
		return nil
	}
	return trends.NewReddit(cfg.Trends.RedditURL, cfg.Trends.Subreddits, cfg.Trends.UserAgent, &http.Client{Timeout: cfg.Timeouts.Provider})
}

// Generators — провайдеры генерации контента.
type Generators struct {
	Text   domain.TextGenerator
	Images domain.ImageGenerator
	Ideas  domain.IdeaGenerator
}

// Generators выбирает провайдеров по конфигу. Без OPENAI_API_KEY текст и идеи
// собираются шаблоном.
func (r *Resources) Generators() Generators {
	cfg := r.cfg
	var g Generators
	if cfg.OpenAI.APIKey != "" {
		llm := generator.NewOpenAI(generator.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Timeouts.Provider), cfg.OpenAI.Model)
		g.Text, g.Ideas = llm, llm
	} else {
		r.log.Warn().Msg("OPENAI_API_KEY не задан, используем шаблонный генератор")
		tmpl := generator.NewTemplate()
		g.Text, g.Ideas = tmpl, tmpl
	}

	switch cfg.Images.Provider {
	case "openai":
		if cfg.OpenAI.APIKey != "" {
			g.Images = generator.NewOpenAIImages(generator.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Timeouts.Provider), cfg.OpenAI.ImageModel)
			break
		}
		r.log.Warn().Msg("IMAGE_PROVIDER=openai без ключа, используем заглушки")
		g.Images = generator.NewPlaceholder(cfg.Images.PlaceholderBase)
	case "stable_diffusion":
		g.Images = generator.NewStableDiffusion(cfg.Images.StableDiffusion, &http.Client{Timeout: cfg.Timeouts.Provider})
	default:
		g.Images = generator.NewPlaceholder(cfg.Images.PlaceholderBase)
	}
	return g
}
