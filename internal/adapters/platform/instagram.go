package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"social-orchestrator/internal/domain"
)

// Instagram публикует фото через Graph API: сначала контейнер, затем media_publish.
type Instagram struct {
	api       apiClient
	accountID string
	enabled   bool
}

// NewInstagram создаёт адаптер.
func NewInstagram(baseURL, accessToken, accountID string, httpClient *http.Client) *Instagram {
	return &Instagram{
		api:       newAPIClient("instagram", baseURL, accessToken, httpClient),
		accountID: accountID,
		enabled:   accessToken != "" && accountID != "",
	}
}

func (i *Instagram) Platform() domain.Platform { return domain.PlatformInstagram }

func (i *Instagram) Info() domain.PlatformInfo {
	return domain.PlatformInfo{
		Name:          domain.PlatformInstagram,
		Enabled:       i.enabled,
		Capabilities:  []domain.Capability{domain.CapabilityImage},
		RequiresImage: true,
	}
}

type graphIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Publish создаёт медиаконтейнер и публикует его.
func (i *Instagram) Publish(ctx context.Context, content string, imageURL *string) (domain.PublishReceipt, error) {
	if imageURL == nil || *imageURL == "" {
		return domain.PublishReceipt{}, domain.Validation("instagram publish", "instagram requires an image")
	}
	var container graphIDResponse
	body := map[string]any{"caption": content, "image_url": *imageURL}
	if _, err := i.api.postJSON(ctx, "create_media", fmt.Sprintf("/%s/media", i.accountID), body, nil, &container); err != nil {
		return domain.PublishReceipt{}, err
	}
	if container.ID == "" {
		return domain.PublishReceipt{}, errors.New("instagram: empty container id")
	}
	var published graphIDResponse
	if _, err := i.api.postJSON(ctx, "media_publish", fmt.Sprintf("/%s/media_publish", i.accountID), map[string]any{"creation_id": container.ID}, nil, &published); err != nil {
		return domain.PublishReceipt{}, err
	}
	if published.ID == "" {
		return domain.PublishReceipt{}, errors.New("instagram: empty media id")
	}
	return domain.PublishReceipt{
		Platform:    domain.PlatformInstagram,
		RemoteID:    published.ID,
		PostURL:     fmt.Sprintf("https://www.instagram.com/p/%s/", published.ID),
		PublishedAt: time.Now().UTC(),
	}, nil
}
