package domain

import (
	"strings"
	"time"
)

// Platform описывает социальную сеть, в которую публикуется пост.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
)

// KnownPlatforms возвращает все поддерживаемые платформы в стабильном порядке.
func KnownPlatforms() []Platform {
	return []Platform{PlatformTwitter, PlatformInstagram, PlatformLinkedIn, PlatformFacebook}
}

// ParsePlatform приводит ввод к Platform.
func ParsePlatform(raw string) (Platform, bool) {
	candidate := Platform(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range KnownPlatforms() {
		if p == candidate {
			return p, true
		}
	}
	return "", false
}

// Capability описывает возможность публикации платформы.
type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityImage Capability = "image"
)

// PlatformInfo описывает настроенную платформу для селектора на фронтенде.
type PlatformInfo struct {
	Name          Platform     `json:"name"`
	Enabled       bool         `json:"enabled"`
	Capabilities  []Capability `json:"capabilities"`
	RequiresImage bool         `json:"requires_image"`
}

// Supports сообщает, есть ли у платформы указанная возможность.
func (p PlatformInfo) Supports(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// GenerationRequest описывает запрос на генерацию поста.
type GenerationRequest struct {
	Topic        string   `json:"topic"`
	Platform     Platform `json:"platform"`
	Tone         string   `json:"tone,omitempty"`
	BrandContext string   `json:"brand_context,omitempty"`
	Length       int      `json:"length,omitempty"`
	IncludeImage bool     `json:"include_image"`
	ImageStyle   string   `json:"image_style,omitempty"`
}

// ContentStatus — статус сгенерированного контента.
type ContentStatus string

const ContentStatusDraft ContentStatus = "draft"

// Warning — некритичное предупреждение частичного успеха.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarningImageGenerationFailed = "image_generation_failed"
	WarningBrandContextFailed    = "brand_context_unavailable"
)

// GenerationResult — результат генерации. Текст присутствует всегда, когда
// результат возвращён без ошибки; изображение может отсутствовать.
type GenerationResult struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	ImageURL  *string       `json:"image_url"`
	Platform  Platform      `json:"platform"`
	Status    ContentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	Warnings  []Warning     `json:"warnings"`
}

// Partial сообщает, что результат получен с предупреждениями.
func (r GenerationResult) Partial() bool {
	return len(r.Warnings) > 0
}

// TextPrompt — вход провайдера генерации текста.
type TextPrompt struct {
	Topic        string
	Platform     Platform
	Tone         string
	BrandContext string
	Length       int
}

// ImagePrompt — вход провайдера генерации изображений.
type ImagePrompt struct {
	Prompt         string `json:"prompt"`
	Style          string `json:"style,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Count          int    `json:"num_images"`
}

// Idea — идея для контента из брейншторма.
type Idea struct {
	Title    string   `json:"title"`
	Hook     string   `json:"hook"`
	Hashtags []string `json:"hashtags"`
}

// BrainstormRequest описывает запрос на генерацию идей.
type BrainstormRequest struct {
	Platform Platform `json:"platform"`
	Count    int      `json:"count"`
	Topics   []string `json:"topics,omitempty"`
	// Trends подмешиваются в промпт сервисом, клиент их не передаёт.
	Trends []TrendingTopic `json:"-"`
}

// TrendingTopic — тема, набирающая популярность во внешнем источнике.
type TrendingTopic struct {
	Keyword    string  `json:"keyword"`
	TrendScore float64 `json:"trend_score"`
	Platform   string  `json:"platform"`
	Source     string  `json:"source"`
}

// BrainstormResult — идеи вместе с трендами, на которые они опирались.
type BrainstormResult struct {
	Ideas          []Idea          `json:"ideas"`
	TrendingTopics []TrendingTopic `json:"trending_topics"`
}

// PostStatus — статус запланированного поста.
type PostStatus string

const (
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusCancelled  PostStatus = "cancelled"
)

var transitions = map[PostStatus][]PostStatus{
	PostStatusScheduled:  {PostStatusPublishing, PostStatusCancelled},
	PostStatusPublishing: {PostStatusPublished, PostStatusFailed},
}

// CanTransition проверяет допустимость перехода статуса.
func CanTransition(from, to PostStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPublished || s == PostStatusFailed || s == PostStatusCancelled
}

// ScheduledPost — пост, которым владеет движок планирования.
type ScheduledPost struct {
	ID            string     `json:"id"`
	Content       string     `json:"content"`
	Platform      Platform   `json:"platform"`
	ImageURL      *string    `json:"image_url,omitempty"`
	ScheduleFor   *time.Time `json:"scheduled_for,omitempty"`
	Status        PostStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	FailureReason *string    `json:"error,omitempty"`
	PostURL       *string    `json:"post_url,omitempty"`
}

// DueAt возвращает момент, начиная с которого пост можно публиковать.
func (p ScheduledPost) DueAt() time.Time {
	if p.ScheduleFor == nil {
		return p.CreatedAt
	}
	return *p.ScheduleFor
}

// Due сообщает, что пост пора публиковать.
func (p ScheduledPost) Due(now time.Time) bool {
	return !p.DueAt().After(now)
}

// ScheduleRequest описывает запрос на планирование поста.
type ScheduleRequest struct {
	Content     string     `json:"content"`
	Platform    Platform   `json:"platform"`
	ImageURL    *string    `json:"image_url,omitempty"`
	ScheduleFor *time.Time `json:"schedule_for,omitempty"`
}

// StatusPatch содержит поля, записываемые вместе со сменой статуса.
type StatusPatch struct {
	LastAttemptAt *time.Time
	PublishedAt   *time.Time
	FailureReason *string
	PostURL       *string
}

// PublishReceipt — ответ платформы об успешной публикации.
type PublishReceipt struct {
	Platform    Platform  `json:"platform"`
	RemoteID    string    `json:"remote_id,omitempty"`
	PostURL     string    `json:"post_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Document — документ базы знаний.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// SearchResult — найденный документ с оценкой релевантности.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// PlatformStats — агрегаты по постам платформы за период.
type PlatformStats struct {
	Platform Platform           `json:"platform"`
	From     time.Time          `json:"from"`
	To       time.Time          `json:"to"`
	Total    int                `json:"total"`
	ByStatus map[PostStatus]int `json:"by_status"`
}
