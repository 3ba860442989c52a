package generator

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"social-orchestrator/internal/domain"
)

// Template — офлайн-генератор без обращения к LLM. Используется, когда ключ
// провайдера не задан.
type Template struct{}

// NewTemplate создаёт генератор.
func NewTemplate() *Template {
	return &Template{}
}

// GenerateText собирает пост из темы и хэштегов.
func (t *Template) GenerateText(_ context.Context, prompt domain.TextPrompt) (string, error) {
	topic := strings.TrimSpace(prompt.Topic)
	tags := hashtags(topic, 3)
	switch prompt.Platform {
	case domain.PlatformLinkedIn:
		return fmt.Sprintf("%s\n\nWhat is your experience with %s? Share in the comments.\n\n%s", topic, strings.ToLower(topic), strings.Join(tags, " ")), nil
	case domain.PlatformInstagram:
		return fmt.Sprintf("✨ %s ✨\n\n%s", topic, strings.Join(hashtags(topic, 6), " ")), nil
	default:
		return truncate(fmt.Sprintf("%s %s", topic, strings.Join(tags, " ")), 280), nil
	}
}

// Brainstorm возвращает ровно Count шаблонных идей.
func (t *Template) Brainstorm(_ context.Context, req domain.BrainstormRequest) ([]domain.Idea, error) {
	topics := req.Topics
	if len(topics) == 0 {
		topics = []string{"behind the scenes", "customer story", "quick tip", "industry trend"}
	}
	ideas := make([]domain.Idea, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		topic := topics[i%len(topics)]
		ideas = append(ideas, domain.Idea{
			Title:    fmt.Sprintf("%s #%d", topic, i+1),
			Hook:     fmt.Sprintf("Did you know this about %s?", topic),
			Hashtags: hashtags(topic, 2),
		})
	}
	return ideas, nil
}

// Placeholder отдаёт ссылки на картинки-заглушки.
type Placeholder struct {
	baseURL string
}

// NewPlaceholder создаёт генератор заглушек.
func NewPlaceholder(baseURL string) *Placeholder {
	return &Placeholder{baseURL: strings.TrimRight(baseURL, "/")}
}

// GenerateImage возвращает Count ссылок на заглушки нужного размера.
func (p *Placeholder) GenerateImage(_ context.Context, prompt domain.ImagePrompt) ([]string, error) {
	count := prompt.Count
	if count <= 0 {
		count = 1
	}
	urls := make([]string, 0, count)
	for i := 0; i < count; i++ {
		urls = append(urls, fmt.Sprintf("%s/%dx%d?text=%s", p.baseURL, prompt.Width, prompt.Height, url.QueryEscape(truncate(prompt.Prompt, 40))))
	}
	return urls, nil
}

func hashtags(topic string, limit int) []string {
	out := make([]string, 0, limit)
	for _, word := range strings.Fields(topic) {
		word = strings.Trim(word, ".,!?:;\"'()")
		if len([]rune(word)) < 3 {
			continue
		}
		out = append(out, "#"+strings.ToLower(word))
		if len(out) == limit {
			break
		}
	}
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
