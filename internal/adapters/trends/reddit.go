package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

// Reddit берёт горячие посты сабреддитов как тренды.
type Reddit struct {
	baseURL    string
	subreddits []string
	userAgent  string
	http       *http.Client
}

// NewReddit создаёт источник. Без сабреддитов читается r/all.
func NewReddit(baseURL string, subreddits []string, userAgent string, httpClient *http.Client) *Reddit {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	subs := make([]string, 0, len(subreddits))
	for _, sub := range subreddits {
		if sub = strings.TrimSpace(sub); sub != "" {
			subs = append(subs, sub)
		}
	}
	if len(subs) == 0 {
		subs = []string{"all"}
	}
	if userAgent == "" {
		userAgent = "social-orchestrator/1.0"
	}
	return &Reddit{
		baseURL:    strings.TrimRight(baseURL, "/"),
		subreddits: subs,
		userAgent:  userAgent,
		http:       httpClient,
	}
}

type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title string  `json:"title"`
				Score float64 `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Trending опрашивает сабреддиты параллельно. Ошибка возвращается, только если
// не ответил ни один сабреддит.
func (r *Reddit) Trending(ctx context.Context, limit int) ([]domain.TrendingTopic, error) {
	if limit <= 0 {
		limit = 10
	}
	var (
		mu     sync.Mutex
		topics []domain.TrendingTopic
		errs   []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range r.subreddits {
		g.Go(func() error {
			got, err := r.hot(gctx, sub, limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			topics = append(topics, got...)
			return nil
		})
	}
	_ = g.Wait()
	if len(topics) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return topics, nil
}

func (r *Reddit) hot(ctx context.Context, sub string, limit int) ([]domain.TrendingTopic, error) {
	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", r.baseURL, url.PathEscape(sub), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("reddit: build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("reddit", "hot", sub, start, err)
		return nil, fmt.Errorf("reddit r/%s: %w", sub, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("reddit r/%s: status %d", sub, resp.StatusCode)
		metrics.ObserveNetworkRequest("reddit", "hot", sub, start, err)
		return nil, err
	}
	var payload listing
	err = json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&payload)
	metrics.ObserveNetworkRequest("reddit", "hot", sub, start, err)
	if err != nil {
		return nil, fmt.Errorf("reddit r/%s: decode: %w", sub, err)
	}

	topics := make([]domain.TrendingTopic, 0, len(payload.Data.Children))
	for _, child := range payload.Data.Children {
		title := strings.TrimSpace(child.Data.Title)
		if title == "" {
			continue
		}
		topics = append(topics, domain.TrendingTopic{
			Keyword:    title,
			TrendScore: child.Data.Score,
			Platform:   "reddit",
			Source:     "r/" + sub,
		})
	}
	return topics, nil
}
