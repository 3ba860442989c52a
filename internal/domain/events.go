package domain

import (
	"context"
	"time"
)

// PostEvent описывает переход статуса поста, который сохраняется для последующего анализа.
type PostEvent struct {
	PostID     string
	Platform   Platform
	From       PostStatus
	To         PostStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// PostEventMetaReason — причина неуспешной публикации.
	PostEventMetaReason = "reason"
	// PostEventMetaPostURL — ссылка на опубликованный пост.
	PostEventMetaPostURL = "post_url"
)

// PostEventRepo сохраняет историю переходов. Запись событий best-effort и не
// влияет на сам переход.
type PostEventRepo interface {
	RecordPostEvent(ctx context.Context, event PostEvent) error
}
