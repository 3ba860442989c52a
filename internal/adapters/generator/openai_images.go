package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

type imageClient interface {
	CreateImage(ctx context.Context, request goopenai.ImageRequest) (goopenai.ImageResponse, error)
}

// OpenAIImages генерирует изображения через OpenAI Images API.
type OpenAIImages struct {
	client imageClient
	model  string
}

// NewOpenAIImages создаёт генератор изображений.
func NewOpenAIImages(client imageClient, model string) *OpenAIImages {
	if model == "" {
		model = goopenai.CreateImageModelDallE3
	}
	return &OpenAIImages{client: client, model: model}
}

// GenerateImage возвращает URL изображений. dall-e-3 принимает только n=1,
// поэтому для него запросы выполняются по одному.
func (g *OpenAIImages) GenerateImage(ctx context.Context, prompt domain.ImagePrompt) ([]string, error) {
	count := prompt.Count
	if count <= 0 {
		count = 1
	}
	text := prompt.Prompt
	if style := strings.TrimSpace(prompt.Style); style != "" {
		text = fmt.Sprintf("%s, %s style", text, style)
	}
	perCall := count
	if g.model == goopenai.CreateImageModelDallE3 {
		perCall = 1
	}
	urls := make([]string, 0, count)
	for len(urls) < count {
		start := time.Now()
		resp, err := g.client.CreateImage(ctx, goopenai.ImageRequest{
			Prompt:         text,
			Model:          g.model,
			N:              perCall,
			Size:           fmt.Sprintf("%dx%d", prompt.Width, prompt.Height),
			ResponseFormat: goopenai.CreateImageResponseFormatURL,
		})
		metrics.ObserveNetworkRequest("openai", "images", g.model, start, err)
		if err != nil {
			return nil, fmt.Errorf("openai images: %w", err)
		}
		before := len(urls)
		for _, item := range resp.Data {
			if item.URL != "" {
				urls = append(urls, item.URL)
			}
		}
		if len(urls) == before {
			return nil, errors.New("openai images: no images in response")
		}
	}
	return urls[:count], nil
}
