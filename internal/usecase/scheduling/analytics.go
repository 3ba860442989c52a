package scheduling

import (
	"context"
	"fmt"
	"time"

	"social-orchestrator/internal/domain"
)

const maxAnalyticsDays = 365

// Analytics считает статистику публикаций по данным хранилища.
type Analytics struct {
	store domain.PostStore
	now   func() time.Time
}

// NewAnalytics создаёт сервис аналитики.
func NewAnalytics(store domain.PostStore) *Analytics {
	return &Analytics{store: store, now: time.Now}
}

// PlatformStats возвращает число постов платформы по статусам за последние days дней.
func (a *Analytics) PlatformStats(ctx context.Context, platform domain.Platform, days int) (domain.PlatformStats, error) {
	const op = "platform stats"
	p, ok := domain.ParsePlatform(string(platform))
	if !ok {
		return domain.PlatformStats{}, domain.Unsupported(op, platform)
	}
	if days < 1 || days > maxAnalyticsDays {
		return domain.PlatformStats{}, domain.Validation(op, fmt.Sprintf("days must be between 1 and %d", maxAnalyticsDays))
	}
	to := a.now().UTC()
	from := to.AddDate(0, 0, -days)
	counts, err := a.store.CountByStatus(ctx, p, from, to)
	if err != nil {
		return domain.PlatformStats{}, fmt.Errorf("подсчёт постов: %w", err)
	}
	stats := domain.PlatformStats{Platform: p, From: from, To: to, ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}
