package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultBatchSize    = 100
	finalizeTimeout     = 10 * time.Second
	// Причина, с которой закрываются посты, оставшиеся в publishing после падения процесса.
	interruptedReason = "publish interrupted"
)

// DispatcherOptions задаёт параметры диспетчера.
type DispatcherOptions struct {
	PollInterval time.Duration
	BatchSize    int
	// PublishTimeout — верхняя граница одной публикации; посты в publishing
	// старше двух таких интервалов считаются брошенными.
	PublishTimeout time.Duration
	// RetryBackoff — пауза перед возвратом задачи в очередь после ошибки.
	RetryBackoff time.Duration
}

// Dispatcher публикует посты, время которых наступило. Пост захватывается
// переходом scheduled -> publishing до вызова платформы, поэтому каждая
// публикация выполняется не более одного раза.
type Dispatcher struct {
	store     domain.PostStore
	platforms domain.PlatformDirectory
	events    domain.PostEventRepo
	opts      DispatcherOptions
	kicks     chan domain.DispatchJob
	now       func() time.Time
	log       zerolog.Logger
}

// NewDispatcher создаёт диспетчер.
func NewDispatcher(store domain.PostStore, platforms domain.PlatformDirectory, events domain.PostEventRepo, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 30 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Dispatcher{
		store:     store,
		platforms: platforms,
		events:    events,
		opts:      opts,
		kicks:     make(chan domain.DispatchJob, 256),
		now:       time.Now,
		log:       logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Kick передаёт задачу в цикл диспетчера без блокировки. При переполненном
// буфере задача отбрасывается: пост подхватит ближайший периодический цикл.
func (d *Dispatcher) Kick(job domain.DispatchJob) bool {
	select {
	case d.kicks <- job:
		return true
	default:
		d.log.Warn().Str("post_id", job.PostID).Msg("Буфер диспетчера переполнен, пост будет обработан по таймеру")
		return false
	}
}

// Notify реализует Notifier для встроенного диспетчера.
func (d *Dispatcher) Notify(_ context.Context, job domain.DispatchJob) error {
	d.Kick(job)
	return nil
}

// Run закрывает брошенные публикации и обрабатывает посты по таймеру и по сигналам
// до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) error {
	if _, err := d.RecoverStale(ctx); err != nil {
		d.log.Error().Err(err).Msg("Не удалось закрыть брошенные публикации")
	}
	if _, err := d.RunCycle(ctx); err != nil {
		d.log.Error().Err(err).Msg("Ошибка цикла диспетчера")
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	d.log.Info().Dur("poll_interval", d.opts.PollInterval).Msg("Диспетчер запущен")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("Диспетчер остановлен")
			return nil
		case <-ticker.C:
			if _, err := d.RunCycle(ctx); err != nil {
				d.log.Error().Err(err).Msg("Ошибка цикла диспетчера")
			}
		case job := <-d.kicks:
			if _, err := d.Process(ctx, job); err != nil {
				d.log.Error().Err(err).Str("post_id", job.PostID).Msg("Ошибка обработки поста")
			}
		}
	}
}

// RunCycle обрабатывает пачку готовых постов в порядке времени публикации и
// возвращает число постов, которые были захвачены для публикации.
func (d *Dispatcher) RunCycle(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.DispatchCycleSeconds.Observe(time.Since(start).Seconds()) }()

	due, err := d.store.ListDue(ctx, d.now().UTC(), d.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	attempted := 0
	for _, post := range due {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}
		ok, err := d.Process(ctx, domain.DispatchJob{PostID: post.ID, RequestedAt: start, Cause: domain.DispatchCauseImmediate})
		if err != nil {
			d.log.Error().Err(err).Str("post_id", post.ID).Msg("Ошибка обработки поста")
			continue
		}
		if ok {
			attempted++
		}
	}
	return attempted, nil
}

// Process перечитывает пост из хранилища, захватывает его и публикует. Возвращает
// false без ошибки, если пост уже не в статусе scheduled, ещё не готов или
// захвачен другим исполнителем.
func (d *Dispatcher) Process(ctx context.Context, job domain.DispatchJob) (bool, error) {
	post, err := d.store.Get(ctx, job.PostID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if post.Status != domain.PostStatusScheduled {
		d.log.Debug().Str("post_id", post.ID).Str("status", string(post.Status)).Msg("Пост уже не ожидает публикации")
		return false, nil
	}
	now := d.now().UTC()
	if job.Cause != domain.DispatchCauseManual && !post.Due(now) {
		return false, nil
	}

	claimed, err := d.store.CompareAndSwapStatus(ctx, post.ID, domain.PostStatusScheduled, domain.PostStatusPublishing, domain.StatusPatch{LastAttemptAt: &now})
	if err != nil {
		return false, err
	}
	if !claimed {
		metrics.DispatchLostClaims.Inc()
		d.log.Info().Str("post_id", post.ID).Msg("Пост перехвачен другим исполнителем или отменён")
		return false, nil
	}
	recordTransition(ctx, d.events, d.log, post, domain.PostStatusPublishing, nil)
	post.Status = domain.PostStatusPublishing

	receipt, publishErr := d.platforms.Publish(ctx, post.Platform, post.Content, post.ImageURL)

	// Итог публикации фиксируется даже при остановке процесса.
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	finished := d.now().UTC()
	if publishErr != nil {
		reason := publishErr.Error()
		d.finish(finalizeCtx, post, domain.PostStatusFailed, domain.StatusPatch{LastAttemptAt: &finished, FailureReason: &reason},
			map[string]any{domain.PostEventMetaReason: reason})
		d.log.Warn().Err(publishErr).Str("post_id", post.ID).Str("platform", string(post.Platform)).Msg("Публикация завершилась ошибкой")
		return true, nil
	}
	publishedAt := receipt.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = finished
	}
	patch := domain.StatusPatch{LastAttemptAt: &finished, PublishedAt: &publishedAt}
	meta := map[string]any{}
	if receipt.PostURL != "" {
		patch.PostURL = &receipt.PostURL
		meta[domain.PostEventMetaPostURL] = receipt.PostURL
	}
	d.finish(finalizeCtx, post, domain.PostStatusPublished, patch, meta)
	d.log.Info().Str("post_id", post.ID).Str("platform", string(post.Platform)).Str("post_url", receipt.PostURL).Msg("Пост опубликован")
	return true, nil
}

func (d *Dispatcher) finish(ctx context.Context, post domain.ScheduledPost, to domain.PostStatus, patch domain.StatusPatch, meta map[string]any) {
	ok, err := d.store.CompareAndSwapStatus(ctx, post.ID, domain.PostStatusPublishing, to, patch)
	if err != nil {
		d.log.Error().Err(err).Str("post_id", post.ID).Str("status", string(to)).Msg("Не удалось сохранить итог публикации")
		return
	}
	if !ok {
		d.log.Error().Str("post_id", post.ID).Str("status", string(to)).Msg("Пост покинул статус publishing во время публикации")
		return
	}
	recordTransition(ctx, d.events, d.log, post, to, meta)
}

// RecoverStale закрывает как failed посты, оставшиеся в publishing после
// падения процесса. Повторная публикация не выполняется.
func (d *Dispatcher) RecoverStale(ctx context.Context) (int, error) {
	cutoff := d.now().UTC().Add(-2 * d.opts.PublishTimeout)
	stale, err := d.store.ListStale(ctx, domain.PostStatusPublishing, cutoff)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, post := range stale {
		now := d.now().UTC()
		reason := interruptedReason
		ok, err := d.store.CompareAndSwapStatus(ctx, post.ID, domain.PostStatusPublishing, domain.PostStatusFailed, domain.StatusPatch{LastAttemptAt: &now, FailureReason: &reason})
		if err != nil {
			d.log.Error().Err(err).Str("post_id", post.ID).Msg("Не удалось закрыть брошенную публикацию")
			continue
		}
		if ok {
			recovered++
			recordTransition(ctx, d.events, d.log, post, domain.PostStatusFailed, map[string]any{domain.PostEventMetaReason: reason})
		}
	}
	if recovered > 0 {
		d.log.Warn().Int("count", recovered).Msg("Брошенные публикации помечены как failed")
	}
	return recovered, nil
}

// Consume обрабатывает задачи из межпроцессной очереди до отмены контекста.
// Задача возвращается в очередь, только если хранилище недоступно.
func (d *Dispatcher) Consume(ctx context.Context, queue domain.DispatchQueue) error {
	for {
		job, ack, err := queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Error().Err(err).Msg("Ошибка чтения очереди публикаций")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		_, procErr := d.Process(ctx, job)
		if procErr != nil {
			d.log.Error().Err(procErr).Str("post_id", job.PostID).Msg("Ошибка обработки задачи из очереди")
			select {
			case <-ctx.Done():
			case <-time.After(d.opts.RetryBackoff):
			}
		}
		if err := ack(procErr == nil); err != nil {
			d.log.Error().Err(err).Str("post_id", job.PostID).Msg("Не удалось подтвердить задачу")
		}
	}
}
