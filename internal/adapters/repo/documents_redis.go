package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

// RedisDocuments хранит документы в хэшах и держит обратный индекс слов в множествах.
type RedisDocuments struct {
	client *redis.Client
	prefix string
}

var _ domain.DocumentStore = (*RedisDocuments)(nil)

// NewRedisDocuments создаёт хранилище с префиксом ключей.
func NewRedisDocuments(client *redis.Client, prefix string) *RedisDocuments {
	if prefix == "" {
		prefix = "rag"
	}
	return &RedisDocuments{client: client, prefix: prefix}
}

func (r *RedisDocuments) docKey(id string) string    { return r.prefix + ":doc:" + id }
func (r *RedisDocuments) termKey(term string) string { return r.prefix + ":term:" + term }

// Add сохраняет документ и индексирует его слова.
func (r *RedisDocuments) Add(ctx context.Context, content string, metadata map[string]any) (domain.Document, error) {
	doc := domain.Document{ID: uuid.NewString(), Content: content, Metadata: metadata, CreatedAt: time.Now().UTC()}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return domain.Document{}, fmt.Errorf("marshal metadata: %w", err)
	}
	start := time.Now()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.docKey(doc.ID), map[string]any{
			"content":    content,
			"metadata":   string(meta),
			"created_at": doc.CreatedAt.Format(time.RFC3339Nano),
		})
		for _, t := range terms(content) {
			pipe.SAdd(ctx, r.termKey(t), doc.ID)
		}
		return nil
	})
	metrics.ObserveNetworkRequest("redis", "rag_add", r.prefix, start, err)
	if err != nil {
		return domain.Document{}, fmt.Errorf("store document: %w", err)
	}
	return doc, nil
}

// Search считает совпадения слов запроса по обратному индексу.
func (r *RedisDocuments) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	queryTerms := terms(query)
	if len(queryTerms) == 0 {
		return []domain.SearchResult{}, nil
	}
	start := time.Now()
	cmds := make([]*redis.StringSliceCmd, 0, len(queryTerms))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range queryTerms {
			cmds = append(cmds, pipe.SMembers(ctx, r.termKey(t)))
		}
		return nil
	})
	metrics.ObserveNetworkRequest("redis", "rag_search", r.prefix, start, err)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("search index: %w", err)
	}
	hits := make(map[string]int)
	for _, cmd := range cmds {
		for _, id := range cmd.Val() {
			hits[id]++
		}
	}
	if len(hits) == 0 {
		return []domain.SearchResult{}, nil
	}

	ids := make([]string, 0, len(hits))
	loads := make([]*redis.MapStringStringCmd, 0, len(hits))
	start = time.Now()
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for id := range hits {
			ids = append(ids, id)
			loads = append(loads, pipe.HGetAll(ctx, r.docKey(id)))
		}
		return nil
	})
	metrics.ObserveNetworkRequest("redis", "rag_load", r.prefix, start, err)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(ids))
	for i, id := range ids {
		fields := loads[i].Val()
		if len(fields) == 0 {
			continue
		}
		doc, err := decodeDocument(id, fields)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.SearchResult{Document: doc, Score: float64(hits[id]) / float64(len(queryTerms))})
	}
	return rankResults(results, topK), nil
}

// Delete удаляет документ и его записи в индексе.
func (r *RedisDocuments) Delete(ctx context.Context, id string) error {
	doc, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range terms(doc.Content) {
			pipe.SRem(ctx, r.termKey(t), id)
		}
		pipe.Del(ctx, r.docKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *RedisDocuments) load(ctx context.Context, id string) (domain.Document, error) {
	fields, err := r.client.HGetAll(ctx, r.docKey(id)).Result()
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if len(fields) == 0 {
		return domain.Document{}, domain.NotFound("load document", fmt.Sprintf("document %s not found", id))
	}
	return decodeDocument(id, fields)
}

func decodeDocument(id string, fields map[string]string) (domain.Document, error) {
	doc := domain.Document{ID: id, Content: fields["content"]}
	if raw := fields["metadata"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
			return domain.Document{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		doc.CreatedAt = ts
	}
	return doc, nil
}
