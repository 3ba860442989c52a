package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"social-orchestrator/internal/domain"
)

// Facebook публикует записи на странице через Graph API.
type Facebook struct {
	api     apiClient
	pageID  string
	enabled bool
}

// NewFacebook создаёт адаптер страницы.
func NewFacebook(baseURL, pageToken, pageID string, httpClient *http.Client) *Facebook {
	return &Facebook{
		api:     newAPIClient("facebook", baseURL, pageToken, httpClient),
		pageID:  pageID,
		enabled: pageToken != "" && pageID != "",
	}
}

func (f *Facebook) Platform() domain.Platform { return domain.PlatformFacebook }

func (f *Facebook) Info() domain.PlatformInfo {
	return domain.PlatformInfo{
		Name:         domain.PlatformFacebook,
		Enabled:      f.enabled,
		Capabilities: []domain.Capability{domain.CapabilityText, domain.CapabilityImage},
	}
}

// Publish публикует текст в ленту или фото с подписью.
func (f *Facebook) Publish(ctx context.Context, content string, imageURL *string) (domain.PublishReceipt, error) {
	var resp graphIDResponse
	var err error
	if imageURL != nil && *imageURL != "" {
		_, err = f.api.postJSON(ctx, "page_photos", fmt.Sprintf("/%s/photos", f.pageID), map[string]any{"url": *imageURL, "caption": content}, nil, &resp)
	} else {
		_, err = f.api.postJSON(ctx, "page_feed", fmt.Sprintf("/%s/feed", f.pageID), map[string]any{"message": content}, nil, &resp)
	}
	if err != nil {
		return domain.PublishReceipt{}, err
	}
	id := resp.PostID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return domain.PublishReceipt{}, errors.New("facebook: empty post id")
	}
	return domain.PublishReceipt{
		Platform:    domain.PlatformFacebook,
		RemoteID:    id,
		PostURL:     "https://www.facebook.com/" + id,
		PublishedAt: time.Now().UTC(),
	}, nil
}
