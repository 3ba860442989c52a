package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8000"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Dispatch struct {
		Queue         string        `envconfig:"DISPATCH_QUEUE" default:"none"`
		QueueKey      string        `envconfig:"DISPATCH_QUEUE_KEY" default:"dispatch_jobs"`
		PollInterval  time.Duration `envconfig:"DISPATCH_POLL_INTERVAL" default:"30s"`
		BatchSize     int           `envconfig:"DISPATCH_BATCH_SIZE" default:"100"`
		Embedded      bool          `envconfig:"DISPATCH_EMBEDDED" default:"true"`
		RetentionDays int           `envconfig:"RETENTION_DAYS" default:"30"`
	} `envconfig:""`

	Timeouts struct {
		Provider time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`
		Publish  time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"30s"`
	} `envconfig:""`

	OpenAI struct {
		APIKey     string `envconfig:"OPENAI_API_KEY"`
		BaseURL    string `envconfig:"OPENAI_BASE_URL"`
		Model      string `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		ImageModel string `envconfig:"OPENAI_IMAGE_MODEL" default:"dall-e-3"`
	} `envconfig:""`

	Images struct {
		Provider        string `envconfig:"IMAGE_PROVIDER" default:"stable_diffusion"`
		StableDiffusion string `envconfig:"STABLE_DIFFUSION_API_URL" default:"http://localhost:7860"`
		PlaceholderBase string `envconfig:"IMAGE_PLACEHOLDER_BASE_URL" default:"https://placehold.co"`
	} `envconfig:""`

	Trends struct {
		Enabled    bool     `envconfig:"TRENDS_ENABLED" default:"true"`
		RedditURL  string   `envconfig:"REDDIT_API_URL" default:"https://www.reddit.com"`
		Subreddits []string `envconfig:"REDDIT_SUBREDDITS" default:"all"`
		UserAgent  string   `envconfig:"REDDIT_USER_AGENT" default:"social-orchestrator/1.0"`
	} `envconfig:""`

	Twitter struct {
		BearerToken string `envconfig:"TWITTER_BEARER_TOKEN"`
		BaseURL     string `envconfig:"TWITTER_API_URL" default:"https://api.twitter.com"`
	} `envconfig:""`

	Instagram struct {
		AccessToken string `envconfig:"INSTAGRAM_ACCESS_TOKEN"`
		AccountID   string `envconfig:"INSTAGRAM_APP_ID"`
		BaseURL     string `envconfig:"INSTAGRAM_API_URL" default:"https://graph.instagram.com/v18.0"`
	} `envconfig:""`

	LinkedIn struct {
		AccessToken string `envconfig:"LINKEDIN_ACCESS_TOKEN"`
		AuthorURN   string `envconfig:"LINKEDIN_AUTHOR_URN"`
		BaseURL     string `envconfig:"LINKEDIN_API_URL" default:"https://api.linkedin.com/v2"`
	} `envconfig:""`

	Facebook struct {
		PageID    string `envconfig:"FACEBOOK_PAGE_ID"`
		PageToken string `envconfig:"FACEBOOK_PAGE_TOKEN"`
		BaseURL   string `envconfig:"FACEBOOK_API_URL" default:"https://graph.facebook.com/v18.0"`
	} `envconfig:""`

	HTTP struct {
		CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173,http://127.0.0.1:3000,http://127.0.0.1:5173"`
		RateLimitCalls  int           `envconfig:"RATE_LIMIT_CALLS" default:"100"`
		RateLimitPeriod time.Duration `envconfig:"RATE_LIMIT_PERIOD" default:"60s"`
	} `envconfig:""`
}

// Retention возвращает срок хранения завершённых постов.
func (c AppConfig) Retention() time.Duration {
	return time.Duration(c.Dispatch.RetentionDays) * 24 * time.Hour
}

// Production сообщает, что сервис запущен в боевом окружении.
func (c AppConfig) Production() bool {
	return c.AppEnv == "production"
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
