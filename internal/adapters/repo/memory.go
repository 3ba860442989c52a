package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"social-orchestrator/internal/domain"
)

// Memory — хранилище постов в памяти процесса для dev-режима без БД и тестов.
type Memory struct {
	mu     sync.Mutex
	posts  map[string]domain.ScheduledPost
	events []domain.PostEvent
}

var (
	_ domain.PostStore     = (*Memory)(nil)
	_ domain.PostEventRepo = (*Memory)(nil)
)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{posts: make(map[string]domain.ScheduledPost)}
}

// Insert сохраняет новый пост.
func (m *Memory) Insert(_ context.Context, post domain.ScheduledPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[post.ID]; ok {
		return domain.InvalidState("insert post", "post already exists")
	}
	m.posts[post.ID] = post
	return nil
}

// Get возвращает копию поста.
func (m *Memory) Get(_ context.Context, id string) (domain.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return domain.ScheduledPost{}, domain.NotFound("get post", fmt.Sprintf("post %s not found", id))
	}
	return post, nil
}

// List возвращает все посты по времени публикации.
func (m *Memory) List(_ context.Context) ([]domain.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(domain.ScheduledPost) bool { return true }), nil
}

// ListDue возвращает готовые к публикации посты в статусе scheduled.
func (m *Memory) ListDue(_ context.Context, now time.Time, limit int) ([]domain.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(func(p domain.ScheduledPost) bool {
		return p.Status == domain.PostStatusScheduled && p.Due(now)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListStale возвращает посты в статусе status с попыткой раньше отсечки.
func (m *Memory) ListStale(_ context.Context, status domain.PostStatus, attemptedBefore time.Time) ([]domain.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(p domain.ScheduledPost) bool {
		return p.Status == status && (p.LastAttemptAt == nil || p.LastAttemptAt.Before(attemptedBefore))
	}), nil
}

// CompareAndSwapStatus атомарно меняет статус под мьютексом.
func (m *Memory) CompareAndSwapStatus(_ context.Context, id string, expected, next domain.PostStatus, patch domain.StatusPatch) (bool, error) {
	if !domain.CanTransition(expected, next) {
		return false, domain.InvalidState("change status", fmt.Sprintf("transition %s -> %s is not allowed", expected, next))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return false, domain.NotFound("change status", fmt.Sprintf("post %s not found", id))
	}
	if post.Status != expected {
		return false, nil
	}
	post.Status = next
	if patch.LastAttemptAt != nil {
		post.LastAttemptAt = patch.LastAttemptAt
	}
	if patch.PublishedAt != nil {
		post.PublishedAt = patch.PublishedAt
	}
	if patch.FailureReason != nil {
		post.FailureReason = patch.FailureReason
	}
	if patch.PostURL != nil {
		post.PostURL = patch.PostURL
	}
	m.posts[id] = post
	return true, nil
}

// DeleteIfCancellable удаляет пост, пока он в статусе scheduled.
func (m *Memory) DeleteIfCancellable(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok || post.Status != domain.PostStatusScheduled {
		return false, nil
	}
	delete(m.posts, id)
	return true, nil
}

// PurgeTerminal удаляет терминальные посты, созданные раньше отсечки.
func (m *Memory) PurgeTerminal(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, post := range m.posts {
		if post.Status.Terminal() && post.CreatedAt.Before(before) {
			delete(m.posts, id)
			purged++
		}
	}
	return purged, nil
}

// CountByStatus считает посты платформы по статусам.
func (m *Memory) CountByStatus(_ context.Context, platform domain.Platform, from, to time.Time) (map[domain.PostStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.PostStatus]int)
	for _, post := range m.posts {
		if post.Platform != platform || post.CreatedAt.Before(from) || !post.CreatedAt.Before(to) {
			continue
		}
		out[post.Status]++
	}
	return out, nil
}

// RecordPostEvent добавляет событие в журнал.
func (m *Memory) RecordPostEvent(_ context.Context, event domain.PostEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events возвращает копию журнала событий.
func (m *Memory) Events() []domain.PostEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PostEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) filter(keep func(domain.ScheduledPost) bool) []domain.ScheduledPost {
	out := make([]domain.ScheduledPost, 0, len(m.posts))
	for _, post := range m.posts {
		if keep(post) {
			out = append(out, post)
		}
	}
	sortPosts(out)
	return out
}

// sortPosts упорядочивает посты по моменту публикации, затем по созданию.
func sortPosts(posts []domain.ScheduledPost) {
	sort.SliceStable(posts, func(i, j int) bool {
		di, dj := posts[i].DueAt(), posts[j].DueAt()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
}
