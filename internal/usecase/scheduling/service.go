package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

// Notifier передаёт диспетчеру сигнал о посте, который пора публиковать.
type Notifier interface {
	Notify(ctx context.Context, job domain.DispatchJob) error
}

// QueueNotifier отправляет сигналы через межпроцессную очередь.
type QueueNotifier struct {
	Queue domain.DispatchQueue
}

// Notify кладёт задачу в очередь.
func (n QueueNotifier) Notify(ctx context.Context, job domain.DispatchJob) error {
	return n.Queue.Enqueue(ctx, job)
}

// Service — движок планирования: владеет жизненным циклом запланированных постов.
type Service struct {
	store     domain.PostStore
	platforms domain.PlatformDirectory
	events    domain.PostEventRepo
	notifier  Notifier
	now       func() time.Time
	log       zerolog.Logger
}

// NewService создаёт движок. events и notifier могут быть nil: без notifier
// посты подхватываются только периодическим циклом диспетчера.
func NewService(store domain.PostStore, platforms domain.PlatformDirectory, events domain.PostEventRepo, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		platforms: platforms,
		events:    events,
		notifier:  notifier,
		now:       time.Now,
		log:       logger.With().Str("component", "scheduling").Logger(),
	}
}

// SetNotifier подключает notifier после создания диспетчера.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Schedule проверяет запрос, синхронно сохраняет пост и, если время уже
// наступило, сразу передаёт его диспетчеру.
func (s *Service) Schedule(ctx context.Context, req domain.ScheduleRequest) (domain.ScheduledPost, error) {
	const op = "schedule post"
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return domain.ScheduledPost{}, domain.Validation(op, "content is empty")
	}
	platform, ok := domain.ParsePlatform(string(req.Platform))
	if !ok {
		return domain.ScheduledPost{}, domain.Unsupported(op, req.Platform)
	}
	info, err := s.platforms.Lookup(platform)
	if err != nil {
		return domain.ScheduledPost{}, err
	}
	var imageURL *string
	if req.ImageURL != nil && strings.TrimSpace(*req.ImageURL) != "" {
		trimmed := strings.TrimSpace(*req.ImageURL)
		imageURL = &trimmed
	}
	if info.RequiresImage && imageURL == nil {
		return domain.ScheduledPost{}, domain.Validation(op, fmt.Sprintf("%s requires an image", platform))
	}

	now := s.now().UTC()
	post := domain.ScheduledPost{
		ID:        uuid.NewString(),
		Content:   content,
		Platform:  platform,
		ImageURL:  imageURL,
		Status:    domain.PostStatusScheduled,
		CreatedAt: now,
	}
	if req.ScheduleFor != nil {
		at := req.ScheduleFor.UTC()
		post.ScheduleFor = &at
	}
	if err := s.store.Insert(ctx, post); err != nil {
		return domain.ScheduledPost{}, fmt.Errorf("сохранение поста: %w", err)
	}
	s.log.Info().Str("post_id", post.ID).Str("platform", string(platform)).Time("due_at", post.DueAt()).Msg("Пост запланирован")

	if post.Due(now) && s.notifier != nil {
		job := domain.DispatchJob{PostID: post.ID, RequestedAt: now, Cause: domain.DispatchCauseImmediate}
		if err := s.notifier.Notify(ctx, job); err != nil {
			// Пост уже сохранён, его подхватит периодический цикл.
			s.log.Warn().Err(err).Str("post_id", post.ID).Msg("Не удалось передать пост диспетчеру")
		}
	}
	return post, nil
}

// Cancel переводит пост из scheduled в cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	const op = "cancel post"
	post, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if post.Status != domain.PostStatusScheduled {
		return domain.InvalidState(op, fmt.Sprintf("post is %s", post.Status))
	}
	ok, err := s.store.CompareAndSwapStatus(ctx, id, domain.PostStatusScheduled, domain.PostStatusCancelled, domain.StatusPatch{})
	if err != nil {
		return err
	}
	if !ok {
		return domain.InvalidState(op, "post is no longer scheduled")
	}
	recordTransition(ctx, s.events, s.log, post, domain.PostStatusCancelled, nil)
	s.log.Info().Str("post_id", id).Msg("Публикация отменена")
	return nil
}

// Delete физически удаляет пост, пока он не начал публиковаться.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "delete post"
	deleted, err := s.store.DeleteIfCancellable(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		post, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		return domain.InvalidState(op, fmt.Sprintf("post is %s", post.Status))
	}
	s.log.Info().Str("post_id", id).Msg("Пост удалён")
	return nil
}

// PublishNow просит диспетчер опубликовать пост, не дожидаясь его времени.
func (s *Service) PublishNow(ctx context.Context, id string) error {
	const op = "publish now"
	post, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if post.Status != domain.PostStatusScheduled {
		return domain.InvalidState(op, fmt.Sprintf("post is %s", post.Status))
	}
	if s.notifier == nil {
		return domain.InvalidState(op, "dispatcher is not available")
	}
	job := domain.DispatchJob{PostID: id, RequestedAt: s.now().UTC(), Cause: domain.DispatchCauseManual}
	if err := s.notifier.Notify(ctx, job); err != nil {
		return fmt.Errorf("передача поста диспетчеру: %w", err)
	}
	return nil
}

// ListScheduled возвращает все посты по времени публикации, затем по созданию.
func (s *Service) ListScheduled(ctx context.Context) ([]domain.ScheduledPost, error) {
	posts, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение постов: %w", err)
	}
	if posts == nil {
		posts = []domain.ScheduledPost{}
	}
	return posts, nil
}

// Get возвращает пост по id.
func (s *Service) Get(ctx context.Context, id string) (domain.ScheduledPost, error) {
	return s.store.Get(ctx, id)
}

// recordTransition пишет событие перехода. Ошибка журнала не влияет на переход.
func recordTransition(ctx context.Context, events domain.PostEventRepo, logger zerolog.Logger, post domain.ScheduledPost, to domain.PostStatus, meta map[string]any) {
	metrics.ObserveTransition(string(post.Status), string(to))
	if events == nil {
		return
	}
	event := domain.PostEvent{
		PostID:     post.ID,
		Platform:   post.Platform,
		From:       post.Status,
		To:         to,
		Metadata:   meta,
		OccurredAt: time.Now().UTC(),
	}
	if err := events.RecordPostEvent(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn().Err(err).Str("post_id", post.ID).Msg("Не удалось записать событие поста")
	}
}
