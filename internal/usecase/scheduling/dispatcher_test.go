package scheduling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"social-orchestrator/internal/adapters/repo"
	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/queue"
)

func waitStatus(t *testing.T, store interface {
	Get(context.Context, string) (domain.ScheduledPost, error)
}, id string, want domain.PostStatus) domain.ScheduledPost {
	t.Helper()
	var post domain.ScheduledPost
	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		post = got
		return got.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return post
}

func TestDispatcherPublishesImmediatelyWithoutWaitingForTicker(t *testing.T) {
	platforms := &fakePlatforms{}
	svc, dispatcher, store := setup(platforms)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = dispatcher.Run(ctx)
		close(done)
	}()

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "now", Platform: domain.PlatformTwitter})
	require.NoError(t, err)

	published := waitStatus(t, store, post.ID, domain.PostStatusPublished)
	require.NotNil(t, published.PublishedAt)
	require.NotNil(t, published.LastAttemptAt)
	require.Equal(t, "https://example.com/now", *published.PostURL)

	cancel()
	<-done
}

func TestDispatcherFailureRecordsReason(t *testing.T) {
	platforms := &fakePlatforms{err: domain.PlatformFailure("publish", errors.New("rate limited"))}
	svc, dispatcher, store := setup(platforms)
	ctx := context.Background()
	svc.SetNotifier(nil)

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "x", Platform: domain.PlatformTwitter})
	require.NoError(t, err)
	attempted, err := dispatcher.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, attempted)

	got, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusFailed, got.Status)
	require.Contains(t, *got.FailureReason, "rate limited")
	require.NotNil(t, got.LastAttemptAt)
	require.Nil(t, got.PublishedAt)

	// Повторный цикл не трогает терминальный пост.
	attempted, err = dispatcher.RunCycle(ctx)
	require.NoError(t, err)
	require.Zero(t, attempted)
}

func TestDispatcherSkipsFuturePosts(t *testing.T) {
	platforms := &fakePlatforms{}
	svc, dispatcher, _ := setup(platforms)
	ctx := context.Background()
	svc.SetNotifier(nil)

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "later", Platform: domain.PlatformTwitter, ScheduleFor: ptr(time.Now().Add(time.Hour))})
	require.NoError(t, err)

	attempted, err := dispatcher.RunCycle(ctx)
	require.NoError(t, err)
	require.Zero(t, attempted)

	ok, err := dispatcher.Process(ctx, domain.DispatchJob{PostID: post.ID, Cause: domain.DispatchCauseImmediate})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = dispatcher.Process(ctx, domain.DispatchJob{PostID: post.ID, Cause: domain.DispatchCauseManual})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"later"}, platforms.calls())
}

func TestDispatcherOrdersByDueTime(t *testing.T) {
	platforms := &fakePlatforms{}
	svc, dispatcher, _ := setup(platforms)
	ctx := context.Background()
	svc.SetNotifier(nil)

	base := time.Now()
	for _, item := range []struct {
		content string
		at      time.Time
	}{
		{"c", base.Add(-time.Minute)},
		{"a", base.Add(-time.Hour)},
		{"b", base.Add(-30 * time.Minute)},
	} {
		_, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: item.content, Platform: domain.PlatformTwitter, ScheduleFor: ptr(item.at)})
		require.NoError(t, err)
	}

	attempted, err := dispatcher.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, attempted)
	require.Equal(t, []string{"a", "b", "c"}, platforms.calls())
}

func TestCancelDuringPublishIsRejected(t *testing.T) {
	platforms := &fakePlatforms{started: make(chan string, 1), release: make(chan struct{})}
	svc, dispatcher, store := setup(platforms)
	ctx := context.Background()
	svc.SetNotifier(nil)

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "slow", Platform: domain.PlatformTwitter})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = dispatcher.Process(ctx, domain.DispatchJob{PostID: post.ID})
		close(done)
	}()
	<-platforms.started

	require.ErrorIs(t, svc.Cancel(ctx, post.ID), domain.ErrInvalidState)
	close(platforms.release)
	<-done

	got, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusPublished, got.Status)
}

func TestConcurrentCancelAndDispatchSingleOutcome(t *testing.T) {
	for i := 0; i < 50; i++ {
		platforms := &fakePlatforms{}
		svc, dispatcher, store := setup(platforms)
		ctx := context.Background()
		svc.SetNotifier(nil)

		post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "race", Platform: domain.PlatformTwitter})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			cancelErr error
		)
		wg.Add(3)
		go func() {
			defer wg.Done()
			cancelErr = svc.Cancel(ctx, post.ID)
		}()
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				_, _ = dispatcher.RunCycle(ctx)
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, post.ID)
		require.NoError(t, err)
		calls := platforms.calls()
		switch got.Status {
		case domain.PostStatusCancelled:
			require.NoError(t, cancelErr)
			require.Empty(t, calls, "отменённый пост не должен публиковаться")
		case domain.PostStatusPublished:
			require.ErrorIs(t, cancelErr, domain.ErrInvalidState)
			require.Len(t, calls, 1, "пост публикуется не более одного раза")
		default:
			t.Fatalf("неожиданный итоговый статус %s", got.Status)
		}
	}
}

func TestRecoverStaleMarksInterruptedPublishesFailed(t *testing.T) {
	platforms := &fakePlatforms{}
	_, dispatcher, store := setup(platforms)
	ctx := context.Background()

	attempt := time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, domain.ScheduledPost{
		ID: "stuck", Content: "stuck", Platform: domain.PlatformTwitter,
		Status: domain.PostStatusPublishing, CreatedAt: attempt, LastAttemptAt: &attempt,
	}))
	fresh := time.Now()
	require.NoError(t, store.Insert(ctx, domain.ScheduledPost{
		ID: "fresh", Content: "fresh", Platform: domain.PlatformTwitter,
		Status: domain.PostStatusPublishing, CreatedAt: fresh, LastAttemptAt: &fresh,
	}))

	recovered, err := dispatcher.RecoverStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	stuck, err := store.Get(ctx, "stuck")
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusFailed, stuck.Status)
	require.Equal(t, interruptedReason, *stuck.FailureReason)

	still, err := store.Get(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusPublishing, still.Status)
	require.Empty(t, platforms.calls(), "брошенные публикации не повторяются")
}

func TestConsumeProcessesQueuedJobs(t *testing.T) {
	platforms := &fakePlatforms{}
	q := queue.NewMemoryDispatchQueue(4)
	_, dispatcher, store := setup(platforms)
	svc := NewService(store, platforms, store, QueueNotifier{Queue: q}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = dispatcher.Consume(ctx, q)
		close(done)
	}()

	post, err := svc.Schedule(ctx, domain.ScheduleRequest{Content: "queued", Platform: domain.PlatformTwitter})
	require.NoError(t, err)
	waitStatus(t, store, post.ID, domain.PostStatusPublished)

	cancel()
	<-done
}

type flakyStore struct {
	domain.PostStore
	gets atomic.Int32
}

func (s *flakyStore) Get(context.Context, string) (domain.ScheduledPost, error) {
	s.gets.Add(1)
	return domain.ScheduledPost{}, errors.New("connection reset")
}

func TestConsumeBacksOffBeforeRequeue(t *testing.T) {
	store := &flakyStore{PostStore: repo.NewMemory()}
	q := queue.NewMemoryDispatchQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), domain.DispatchJob{PostID: "p1"}))
	dispatcher := NewDispatcher(store, &fakePlatforms{}, nil, DispatcherOptions{PollInterval: time.Hour, RetryBackoff: 100 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	require.NoError(t, dispatcher.Consume(ctx, q))

	gets := store.gets.Load()
	require.GreaterOrEqual(t, gets, int32(2), "задача возвращается в очередь")
	require.LessOrEqual(t, gets, int32(3), "между попытками выдерживается пауза")

	job, _, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "p1", job.PostID)
}

func TestKickIsNonBlocking(t *testing.T) {
	_, dispatcher, _ := setup(&fakePlatforms{})
	for i := 0; i < cap(dispatcher.kicks); i++ {
		require.True(t, dispatcher.Kick(domain.DispatchJob{PostID: "p"}))
	}
	require.False(t, dispatcher.Kick(domain.DispatchJob{PostID: "overflow"}))
}
