package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"time"

	"social-orchestrator/internal/domain"
)

// Twitter публикует твиты через API v2.
type Twitter struct {
	api     apiClient
	enabled bool
}

// NewTwitter создаёт адаптер. Без токена адаптер считается выключенным.
func NewTwitter(baseURL, bearerToken string, httpClient *http.Client) *Twitter {
	return &Twitter{
		api:     newAPIClient("twitter", baseURL, bearerToken, httpClient),
		enabled: bearerToken != "",
	}
}

func (t *Twitter) Platform() domain.Platform { return domain.PlatformTwitter }

func (t *Twitter) Info() domain.PlatformInfo {
	return domain.PlatformInfo{
		Name:         domain.PlatformTwitter,
		Enabled:      t.enabled,
		Capabilities: []domain.Capability{domain.CapabilityText, domain.CapabilityImage},
	}
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type mediaUploadResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	MediaIDString string `json:"media_id_string"`
}

// twitterImageLimit — предел размера изображения для загрузки в твит.
const twitterImageLimit = 5 << 20

// Publish публикует твит. Изображение скачивается и загружается как медиа,
// его id прикрепляется к твиту.
func (t *Twitter) Publish(ctx context.Context, content string, imageURL *string) (domain.PublishReceipt, error) {
	body := map[string]any{"text": content}
	if imageURL != nil && *imageURL != "" {
		mediaID, err := t.uploadImage(ctx, *imageURL)
		if err != nil {
			return domain.PublishReceipt{}, err
		}
		body["media"] = map[string]any{"media_ids": []string{mediaID}}
	}
	var resp tweetResponse
	if _, err := t.api.postJSON(ctx, "create_tweet", "/2/tweets", body, nil, &resp); err != nil {
		return domain.PublishReceipt{}, err
	}
	if resp.Data.ID == "" {
		return domain.PublishReceipt{}, errors.New("twitter: empty tweet id")
	}
	return domain.PublishReceipt{
		Platform:    domain.PlatformTwitter,
		RemoteID:    resp.Data.ID,
		PostURL:     "https://twitter.com/i/web/status/" + resp.Data.ID,
		PublishedAt: time.Now().UTC(),
	}, nil
}

func (t *Twitter) uploadImage(ctx context.Context, imageURL string) (string, error) {
	data, err := t.api.download(ctx, imageURL, twitterImageLimit)
	if err != nil {
		return "", err
	}
	name := "image"
	if u, err := url.Parse(imageURL); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." {
			name = base
		}
	}
	var resp mediaUploadResponse
	fields := map[string]string{"media_category": "tweet_image"}
	if _, err := t.api.postMultipart(ctx, "upload_media", "/2/media/upload", fields, "media", name, data, &resp); err != nil {
		return "", err
	}
	id := resp.Data.ID
	if id == "" {
		id = resp.MediaIDString
	}
	if id == "" {
		return "", errors.New("twitter: empty media id")
	}
	return id, nil
}
