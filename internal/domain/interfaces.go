package domain

import (
	"context"
	"time"
)

// TextGenerator генерирует текст поста.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt TextPrompt) (string, error)
}

// ImageGenerator генерирует изображения и возвращает их URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt ImagePrompt) ([]string, error)
}

// IdeaGenerator генерирует пачку идей одним запросом.
type IdeaGenerator interface {
	Brainstorm(ctx context.Context, req BrainstormRequest) ([]Idea, error)
}

// TrendingSource отдаёт актуальные темы, не больше limit.
type TrendingSource interface {
	Trending(ctx context.Context, limit int) ([]TrendingTopic, error)
}

// Publisher публикует пост в конкретную платформу.
type Publisher interface {
	Platform() Platform
	Info() PlatformInfo
	Publish(ctx context.Context, content string, imageURL *string) (PublishReceipt, error)
}

// PlatformDirectory публикует в любую зарегистрированную платформу.
type PlatformDirectory interface {
	Publish(ctx context.Context, platform Platform, content string, imageURL *string) (PublishReceipt, error)
	Lookup(platform Platform) (PlatformInfo, error)
	GetPlatforms() []PlatformInfo
}

// PostStore — узкий интерфейс хранилища постов. Смена статуса возможна только
// через CompareAndSwapStatus.
type PostStore interface {
	Insert(ctx context.Context, post ScheduledPost) error
	Get(ctx context.Context, id string) (ScheduledPost, error)
	List(ctx context.Context) ([]ScheduledPost, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledPost, error)
	ListStale(ctx context.Context, status PostStatus, attemptedBefore time.Time) ([]ScheduledPost, error)
	// CompareAndSwapStatus меняет статус, только если текущий равен expected.
	// Возвращает false без ошибки, если запись уже в другом статусе.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next PostStatus, patch StatusPatch) (bool, error)
	DeleteIfCancellable(ctx context.Context, id string) (bool, error)
	PurgeTerminal(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context, platform Platform, from, to time.Time) (map[PostStatus]int, error)
}

// DocumentStore — непрозрачное хранилище документов базы знаний.
type DocumentStore interface {
	Add(ctx context.Context, content string, metadata map[string]any) (Document, error)
	Search(ctx context.Context, query string, topK int) ([]SearchResult, error)
	Delete(ctx context.Context, id string) error
}

// RateLimiter ограничивает частоту запросов по ключу.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
