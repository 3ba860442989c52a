package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

// StableDiffusion вызывает HTTP API Stable Diffusion.
type StableDiffusion struct {
	http    *http.Client
	baseURL string
}

// NewStableDiffusion создаёт клиента. Таймаут задаётся через ctx вызова.
func NewStableDiffusion(baseURL string, client *http.Client) *StableDiffusion {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &StableDiffusion{http: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type sdRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	NumImages      int     `json:"num_images"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
}

type sdResponse struct {
	Images []string `json:"images"`
}

// GenerateImage возвращает URL сгенерированных изображений.
func (s *StableDiffusion) GenerateImage(ctx context.Context, prompt domain.ImagePrompt) ([]string, error) {
	text := prompt.Prompt
	if style := strings.TrimSpace(prompt.Style); style != "" {
		text = fmt.Sprintf("%s, %s style", text, style)
	}
	body, err := json.Marshal(sdRequest{
		Prompt:         text,
		NegativePrompt: prompt.NegativePrompt,
		Width:          prompt.Width,
		Height:         prompt.Height,
		NumImages:      prompt.Count,
		Steps:          50,
		GuidanceScale:  7.5,
	})
	if err != nil {
		return nil, fmt.Errorf("stable diffusion: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stable diffusion: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("stable_diffusion", "generate", "", start, err)
		return nil, fmt.Errorf("stable diffusion: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("stable diffusion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		metrics.ObserveNetworkRequest("stable_diffusion", "generate", "", start, err)
		return nil, err
	}
	var parsed sdResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.ObserveNetworkRequest("stable_diffusion", "generate", "", start, err)
		return nil, fmt.Errorf("stable diffusion: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("stable_diffusion", "generate", "", start, nil)
	urls := filterValues(parsed.Images)
	if len(urls) == 0 {
		return nil, errors.New("stable diffusion: no images in response")
	}
	return urls, nil
}
