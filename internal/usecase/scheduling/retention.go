package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"social-orchestrator/internal/domain"
)

// Retention периодически удаляет посты в терминальных статусах.
type Retention struct {
	store domain.PostStore
	keep  time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewRetention создаёт задачу очистки; keep — сколько хранить завершённые посты.
func NewRetention(store domain.PostStore, keep time.Duration, logger zerolog.Logger) *Retention {
	return &Retention{store: store, keep: keep, now: time.Now, log: logger.With().Str("component", "retention").Logger()}
}

// Purge удаляет терминальные посты старше срока хранения.
func (r *Retention) Purge(ctx context.Context) (int64, error) {
	if r.keep <= 0 {
		return 0, nil
	}
	return r.store.PurgeTerminal(ctx, r.now().UTC().Add(-r.keep))
}

// Start запускает ежедневную очистку в 03:00 UTC и останавливает её при отмене ctx.
func (r *Retention) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create retention scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			purgeCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			purged, err := r.Purge(purgeCtx)
			if err != nil {
				r.log.Error().Err(err).Msg("Не удалось очистить старые посты")
				return
			}
			r.log.Info().Int64("purged", purged).Msg("Очистка старых постов завершена")
		}),
	)
	if err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	scheduler.Start()

	go func() {
		<-ctx.Done()
		if err := scheduler.Shutdown(); err != nil {
			r.log.Error().Err(err).Msg("Не удалось остановить планировщик очистки")
		}
	}()
	return nil
}
