package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"social-orchestrator/internal/adapters/repo"
	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/queue"
)

type fakePlatforms struct {
	mu        sync.Mutex
	published []string
	err       error
	started   chan string
	release   chan struct{}
}

func (f *fakePlatforms) Publish(ctx context.Context, platform domain.Platform, content string, _ *string) (domain.PublishReceipt, error) {
	if f.started != nil {
		f.started <- content
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.PublishReceipt{}, f.err
	}
	f.published = append(f.published, content)
	return domain.PublishReceipt{Platform: platform, PostURL: "https://example.com/" + content, PublishedAt: time.Now().UTC()}, nil
}

func (f *fakePlatforms) Lookup(platform domain.Platform) (domain.PlatformInfo, error) {
	return domain.PlatformInfo{Name: platform, Enabled: true, RequiresImage: platform == domain.PlatformInstagram}, nil
}

func (f *fakePlatforms) GetPlatforms() []domain.PlatformInfo { return nil }

func (f *fakePlatforms) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.published))
	copy(out, f.published)
	return out
}

type recordingNotifier struct {
	jobs []domain.DispatchJob
}

func (n *recordingNotifier) Notify(_ context.Context, job domain.DispatchJob) error {
	n.jobs = append(n.jobs, job)
	return nil
}

func setup(platforms *fakePlatforms) (*Service, *Dispatcher, *repo.Memory) {
	store := repo.NewMemory()
	dispatcher := NewDispatcher(store, platforms, store, DispatcherOptions{PollInterval: time.Hour, PublishTimeout: time.Second}, zerolog.Nop())
	svc := NewService(store, platforms, store, dispatcher, zerolog.Nop())
	return svc, dispatcher, store
}

func ptr[T any](v T) *T { return &v }

func TestScheduleValidation(t *testing.T) {
	svc, _, store := setup(&fakePlatforms{})
	ctx := context.Background()

	_, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "  ", Platform: domain.PlatformTwitter})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Schedule(ctx, domain.ScheduleRequest{Content: "hi", Platform: "myspace"})
	require.ErrorIs(t, err, domain.ErrUnsupportedPlatform)

	_, err = svc.Schedule(ctx, domain.ScheduleRequest{Content: "hi", Platform: domain.PlatformInstagram})
	require.ErrorIs(t, err, domain.ErrValidation)

	posts, err := store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, posts, "невалидный запрос не должен ничего сохранять")
}

func TestScheduleNotifiesOnlyDuePosts(t *testing.T) {
	store := repo.NewMemory()
	notifier := &recordingNotifier{}
	svc := NewService(store, &fakePlatforms{}, store, notifier, zerolog.Nop())
	ctx := context.Background()

	now, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "now", Platform: domain.PlatformTwitter})
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusScheduled, now.Status)

	_, err = svc.Schedule(ctx, domain.ScheduleRequest{Content: "later", Platform: domain.PlatformTwitter, ScheduleFor: ptr(time.Now().Add(time.Hour))})
	require.NoError(t, err)

	past, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "past", Platform: domain.PlatformTwitter, ScheduleFor: ptr(time.Now().Add(-time.Hour))})
	require.NoError(t, err)

	require.Len(t, notifier.jobs, 2)
	require.Equal(t, now.ID, notifier.jobs[0].PostID)
	require.Equal(t, past.ID, notifier.jobs[1].PostID)
	require.Equal(t, domain.DispatchCauseImmediate, notifier.jobs[0].Cause)
}

func TestCancel(t *testing.T) {
	svc, _, store := setup(&fakePlatforms{})
	ctx := context.Background()
	svc.SetNotifier(nil)

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "hi", Platform: domain.PlatformTwitter, ScheduleFor: ptr(time.Now().Add(time.Hour))})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, post.ID))
	got, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusCancelled, got.Status)

	require.ErrorIs(t, svc.Cancel(ctx, post.ID), domain.ErrInvalidState)
	require.ErrorIs(t, svc.Cancel(ctx, "missing"), domain.ErrNotFound)

	events := store.Events()
	require.Len(t, events, 1)
	require.Equal(t, domain.PostStatusCancelled, events[0].To)
}

func TestCancelTerminalDoesNotMutate(t *testing.T) {
	svc, dispatcher, store := setup(&fakePlatforms{})
	ctx := context.Background()
	svc.SetNotifier(nil)

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "hi", Platform: domain.PlatformTwitter})
	require.NoError(t, err)
	_, err = dispatcher.RunCycle(ctx)
	require.NoError(t, err)

	before, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusPublished, before.Status)

	require.ErrorIs(t, svc.Cancel(ctx, post.ID), domain.ErrInvalidState)
	after, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestDelete(t *testing.T) {
	svc, _, store := setup(&fakePlatforms{})
	ctx := context.Background()
	svc.SetNotifier(nil)

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "hi", Platform: domain.PlatformTwitter, ScheduleFor: ptr(time.Now().Add(time.Hour))})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, post.ID))
	require.ErrorIs(t, svc.Delete(ctx, post.ID), domain.ErrInvalidState)

	other, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "bye", Platform: domain.PlatformTwitter, ScheduleFor: ptr(time.Now().Add(time.Hour))})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, other.ID))
	_, err = store.Get(ctx, other.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, other.ID), domain.ErrNotFound)
}

func TestListScheduledOrdering(t *testing.T) {
	svc, _, _ := setup(&fakePlatforms{})
	ctx := context.Background()
	svc.SetNotifier(nil)

	base := time.Now()
	_, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "third", Platform: domain.PlatformTwitter, ScheduleFor: ptr(base.Add(3 * time.Hour))})
	require.NoError(t, err)
	_, err = svc.Schedule(ctx, domain.ScheduleRequest{Content: "first", Platform: domain.PlatformTwitter, ScheduleFor: ptr(base.Add(-time.Hour))})
	require.NoError(t, err)
	_, err = svc.Schedule(ctx, domain.ScheduleRequest{Content: "second", Platform: domain.PlatformTwitter, ScheduleFor: ptr(base.Add(time.Hour))})
	require.NoError(t, err)

	posts, err := svc.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Equal(t, "first", posts[0].Content)
	require.Equal(t, "second", posts[1].Content)
	require.Equal(t, "third", posts[2].Content)
}

func TestPublishNowRequiresScheduled(t *testing.T) {
	svc, _, _ := setup(&fakePlatforms{})
	ctx := context.Background()

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "hi", Platform: domain.PlatformTwitter, ScheduleFor: ptr(time.Now().Add(time.Hour))})
	require.NoError(t, err)
	require.NoError(t, svc.PublishNow(ctx, post.ID))

	require.NoError(t, svc.Cancel(ctx, post.ID))
	require.ErrorIs(t, svc.PublishNow(ctx, post.ID), domain.ErrInvalidState)
}

func TestScheduleNotifierErrorKeepsPost(t *testing.T) {
	store := repo.NewMemory()
	q := failingNotifier{err: errors.New("queue down")}
	svc := NewService(store, &fakePlatforms{}, nil, q, zerolog.Nop())

	post, err := svc.Schedule(context.Background(), domain.ScheduleRequest{Content: "hi", Platform: domain.PlatformTwitter})
	require.NoError(t, err)
	_, err = store.Get(context.Background(), post.ID)
	require.NoError(t, err)
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, domain.DispatchJob) error { return f.err }

func TestQueueNotifier(t *testing.T) {
	q := queue.NewMemoryDispatchQueue(1)
	n := QueueNotifier{Queue: q}
	require.NoError(t, n.Notify(context.Background(), domain.DispatchJob{PostID: "p"}))
	job, _, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "p", job.PostID)
}

func TestAnalyticsPlatformStats(t *testing.T) {
	svc, dispatcher, store := setup(&fakePlatforms{})
	ctx := context.Background()
	svc.SetNotifier(nil)
	for i := 0; i < 3; i++ {
		_, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: fmt.Sprintf("p%d", i), Platform: domain.PlatformTwitter})
		require.NoError(t, err)
	}
	_, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "later", Platform: domain.PlatformTwitter, ScheduleFor: ptr(time.Now().Add(time.Hour))})
	require.NoError(t, err)
	_, err = dispatcher.RunCycle(ctx)
	require.NoError(t, err)

	stats, err := NewAnalytics(store).PlatformStats(ctx, domain.PlatformTwitter, 7)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 3, stats.ByStatus[domain.PostStatusPublished])
	require.Equal(t, 1, stats.ByStatus[domain.PostStatusScheduled])

	_, err = NewAnalytics(store).PlatformStats(ctx, domain.PlatformTwitter, 0)
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = NewAnalytics(store).PlatformStats(ctx, "myspace", 7)
	require.ErrorIs(t, err, domain.ErrUnsupportedPlatform)
}

func TestRetentionPurge(t *testing.T) {
	store := repo.NewMemory()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Insert(ctx, domain.ScheduledPost{ID: "a", Content: "a", Platform: domain.PlatformTwitter, Status: domain.PostStatusPublished, CreatedAt: old}))
	require.NoError(t, store.Insert(ctx, domain.ScheduledPost{ID: "b", Content: "b", Platform: domain.PlatformTwitter, Status: domain.PostStatusScheduled, CreatedAt: old}))

	purged, err := NewRetention(store, 24*time.Hour, zerolog.Nop()).Purge(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	disabled, err := NewRetention(store, 0, zerolog.Nop()).Purge(ctx)
	require.NoError(t, err)
	require.Zero(t, disabled)
}
