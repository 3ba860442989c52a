package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var postColumns = []string{
	"id::text", "content", "platform", "image_url", "schedule_for", "status",
	"created_at", "last_attempt_at", "published_at", "failure_reason", "post_url",
}

// Postgres реализует хранилище постов и журнал событий на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.PostStore     = (*Postgres)(nil)
	_ domain.PostEventRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Ping проверяет доступность БД.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Insert сохраняет новый пост.
func (p *Postgres) Insert(ctx context.Context, post domain.ScheduledPost) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := psql.Insert("scheduled_posts").
		Columns("id", "content", "platform", "image_url", "schedule_for", "due_at", "status", "created_at").
		Values(post.ID, post.Content, string(post.Platform), post.ImageURL, post.ScheduleFor, post.DueAt(), string(post.Status), post.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	start := time.Now()
	_, err = p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "scheduled_posts", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.InvalidState("insert post", "post already exists")
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// Get возвращает пост по id.
func (p *Postgres) Get(ctx context.Context, id string) (domain.ScheduledPost, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ScheduledPost{}, domain.NotFound("get post", fmt.Sprintf("post %s not found", id))
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := psql.Select(postColumns...).
		From("scheduled_posts").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.ScheduledPost{}, fmt.Errorf("build select: %w", err)
	}
	post, err := scanPost(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScheduledPost{}, domain.NotFound("get post", fmt.Sprintf("post %s not found", id))
	}
	if err != nil {
		return domain.ScheduledPost{}, fmt.Errorf("select post: %w", err)
	}
	return post, nil
}

// List возвращает все посты в порядке времени публикации.
func (p *Postgres) List(ctx context.Context) ([]domain.ScheduledPost, error) {
	query, args, err := psql.Select(postColumns...).
		From("scheduled_posts").
		OrderBy("due_at ASC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	return p.queryPosts(ctx, "posts_list", query, args...)
}

// ListDue возвращает посты в статусе scheduled, время которых наступило.
func (p *Postgres) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledPost, error) {
	builder := psql.Select(postColumns...).
		From("scheduled_posts").
		Where(sq.Eq{"status": string(domain.PostStatusScheduled)}).
		Where(sq.LtOrEq{"due_at": now}).
		OrderBy("due_at ASC", "created_at ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due: %w", err)
	}
	return p.queryPosts(ctx, "posts_due", query, args...)
}

// ListStale возвращает посты, застрявшие в статусе дольше отсечки.
func (p *Postgres) ListStale(ctx context.Context, status domain.PostStatus, attemptedBefore time.Time) ([]domain.ScheduledPost, error) {
	query, args, err := psql.Select(postColumns...).
		From("scheduled_posts").
		Where(sq.Eq{"status": string(status)}).
		Where(sq.Or{sq.Eq{"last_attempt_at": nil}, sq.Lt{"last_attempt_at": attemptedBefore}}).
		OrderBy("due_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale: %w", err)
	}
	return p.queryPosts(ctx, "posts_stale", query, args...)
}

// CompareAndSwapStatus меняет статус одной командой UPDATE ... WHERE status = expected.
func (p *Postgres) CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.PostStatus, patch domain.StatusPatch) (bool, error) {
	if !domain.CanTransition(expected, next) {
		return false, domain.InvalidState("change status", fmt.Sprintf("transition %s -> %s is not allowed", expected, next))
	}
	if _, err := uuid.Parse(id); err != nil {
		return false, domain.NotFound("change status", fmt.Sprintf("post %s not found", id))
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	builder := psql.Update("scheduled_posts").
		Set("status", string(next)).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": string(expected)})
	if patch.LastAttemptAt != nil {
		builder = builder.Set("last_attempt_at", *patch.LastAttemptAt)
	}
	if patch.PublishedAt != nil {
		builder = builder.Set("published_at", *patch.PublishedAt)
	}
	if patch.FailureReason != nil {
		builder = builder.Set("failure_reason", *patch.FailureReason)
	}
	if patch.PostURL != nil {
		builder = builder.Set("post_url", *patch.PostURL)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("build cas: %w", err)
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "posts_cas", "scheduled_posts", start, err)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := p.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteIfCancellable удаляет пост, только пока он в статусе scheduled.
func (p *Postgres) DeleteIfCancellable(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := psql.Delete("scheduled_posts").
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": string(domain.PostStatusScheduled)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeTerminal удаляет посты в терминальных статусах, созданные раньше отсечки.
func (p *Postgres) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := psql.Delete("scheduled_posts").
		Where(sq.Eq{"status": []string{
			string(domain.PostStatusPublished),
			string(domain.PostStatusFailed),
			string(domain.PostStatusCancelled),
		}}).
		Where(sq.Lt{"created_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge: %w", err)
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "posts_purge", "scheduled_posts", start, err)
	if err != nil {
		return 0, fmt.Errorf("purge posts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus считает посты платформы по статусам за период создания.
func (p *Postgres) CountByStatus(ctx context.Context, platform domain.Platform, from, to time.Time) (map[domain.PostStatus]int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query, args, err := psql.Select("status", "COUNT(*)").
		From("scheduled_posts").
		Where(sq.Eq{"platform": string(platform)}).
		Where(sq.GtOrEq{"created_at": from}).
		Where(sq.Lt{"created_at": to}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.PostStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[domain.PostStatus(status)] = count
	}
	return out, rows.Err()
}

// RecordPostEvent сохраняет переход статуса в журнал.
func (p *Postgres) RecordPostEvent(ctx context.Context, event domain.PostEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var payload []byte
	if event.Metadata != nil {
		if data, err := json.Marshal(event.Metadata); err == nil {
			payload = data
		}
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO post_events (post_id, platform, from_status, to_status, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, event.PostID, string(event.Platform), string(event.From), string(event.To), payload, event.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "post_events_insert", "post_events", start, err)
	return err
}

func (p *Postgres) queryPosts(ctx context.Context, operation, query string, args ...any) ([]domain.ScheduledPost, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", operation, "scheduled_posts", start, err)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func scanPost(row pgx.Row) (domain.ScheduledPost, error) {
	var (
		post     domain.ScheduledPost
		platform string
		status   string
	)
	err := row.Scan(
		&post.ID, &post.Content, &platform, &post.ImageURL, &post.ScheduleFor, &status,
		&post.CreatedAt, &post.LastAttemptAt, &post.PublishedAt, &post.FailureReason, &post.PostURL,
	)
	if err != nil {
		return domain.ScheduledPost{}, err
	}
	post.Platform = domain.Platform(platform)
	post.Status = domain.PostStatus(status)
	return post, nil
}
