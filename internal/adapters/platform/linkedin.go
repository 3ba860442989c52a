package platform

import (
	"context"
	"net/http"
	"strings"
	"time"

	"social-orchestrator/internal/domain"
)

// LinkedIn публикует посты через ugcPosts.
type LinkedIn struct {
	api       apiClient
	authorURN string
	enabled   bool
}

// NewLinkedIn создаёт адаптер. authorURN — urn:li:person:... или urn:li:organization:...
func NewLinkedIn(baseURL, accessToken, authorURN string, httpClient *http.Client) *LinkedIn {
	return &LinkedIn{
		api:       newAPIClient("linkedin", baseURL, accessToken, httpClient),
		authorURN: authorURN,
		enabled:   accessToken != "" && authorURN != "",
	}
}

func (l *LinkedIn) Platform() domain.Platform { return domain.PlatformLinkedIn }

func (l *LinkedIn) Info() domain.PlatformInfo {
	return domain.PlatformInfo{
		Name:         domain.PlatformLinkedIn,
		Enabled:      l.enabled,
		Capabilities: []domain.Capability{domain.CapabilityText, domain.CapabilityImage},
	}
}

// Publish публикует пост. Изображение передаётся как ссылка-вложение.
func (l *LinkedIn) Publish(ctx context.Context, content string, imageURL *string) (domain.PublishReceipt, error) {
	share := map[string]any{
		"shareCommentary":    map[string]any{"text": content},
		"shareMediaCategory": "NONE",
	}
	if imageURL != nil && *imageURL != "" {
		share["shareMediaCategory"] = "ARTICLE"
		share["media"] = []map[string]any{{"status": "READY", "originalUrl": *imageURL}}
	}
	body := map[string]any{
		"author":          l.authorURN,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": share},
		"visibility":      map[string]any{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}
	var resp struct {
		ID string `json:"id"`
	}
	headers, err := l.api.postJSON(ctx, "ugc_posts", "/ugcPosts", body, map[string]string{"X-Restli-Protocol-Version": "2.0.0"}, &resp)
	if err != nil {
		return domain.PublishReceipt{}, err
	}
	id := resp.ID
	if id == "" {
		id = headers.Get("X-RestLi-Id")
	}
	receipt := domain.PublishReceipt{
		Platform:    domain.PlatformLinkedIn,
		RemoteID:    id,
		PublishedAt: time.Now().UTC(),
	}
	if id != "" {
		receipt.PostURL = "https://www.linkedin.com/feed/update/" + id + "/"
		if idx := strings.LastIndex(id, ":"); idx >= 0 {
			receipt.RemoteID = id[idx+1:]
		}
	}
	return receipt, nil
}
