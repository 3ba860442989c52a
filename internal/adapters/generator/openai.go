package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// NewOpenAIClient собирает клиента go-openai с нужным base URL. timeout
// ограничивает один HTTP вызов.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *goopenai.Client {
	config := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}
	return goopenai.NewClientWithConfig(config)
}

// OpenAI генерирует тексты и идеи через OpenAI Chat Completions.
type OpenAI struct {
	client chatClient
	model  string
}

// NewOpenAI создаёт генератор. Таймаут задаёт вызывающая сторона через ctx.
func NewOpenAI(client chatClient, model string) *OpenAI {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &OpenAI{client: client, model: model}
}

// GenerateText пишет текст поста по теме под площадку.
func (g *OpenAI) GenerateText(ctx context.Context, prompt domain.TextPrompt) (string, error) {
	return g.complete(ctx, goopenai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.7,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: textSystemPrompt(prompt)},
			{Role: goopenai.ChatMessageRoleUser, Content: textUserPrompt(prompt)},
		},
	})
}

// complete выполняет запрос и возвращает текст первого варианта без пробелов по краям.
func (g *OpenAI) complete(ctx context.Context, req goopenai.ChatCompletionRequest) (string, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	metrics.ObserveNetworkRequest("openai", "chat_completions", req.Model, start, err)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if resp.Usage.TotalTokens > 0 {
		metrics.ObserveLLMGeneration(req.Model, time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion: empty response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("openai completion: empty response")
	}
	return content, nil
}

type ideasPayload struct {
	Ideas []struct {
		Title    string   `json:"title"`
		Hook     string   `json:"hook"`
		Hashtags []string `json:"hashtags"`
	} `json:"ideas"`
}

// Brainstorm запрашивает пачку идей одним вызовом.
func (g *OpenAI) Brainstorm(ctx context.Context, req domain.BrainstormRequest) ([]domain.Idea, error) {
	content, err := g.complete(ctx, goopenai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.9,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: "You are a creative social media strategist. " + guidanceFor(req.Platform)},
			{Role: goopenai.ChatMessageRoleUser, Content: brainstormUserPrompt(req)},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, err
	}
	var parsed ideasPayload
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("decode ideas: %w", err)
	}
	ideas := make([]domain.Idea, 0, len(parsed.Ideas))
	for _, raw := range parsed.Ideas {
		title := strings.TrimSpace(raw.Title)
		if title == "" {
			continue
		}
		ideas = append(ideas, domain.Idea{
			Title:    title,
			Hook:     strings.TrimSpace(raw.Hook),
			Hashtags: filterValues(raw.Hashtags),
		})
	}
	return ideas, nil
}
