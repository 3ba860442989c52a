package content

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

const (
	brandContextTopK   = 3
	defaultImageSize   = 512
	maxVariations      = 5
	maxBrainstormIdeas = 20
	minImageSize       = 256
	maxImageSize       = 1024
	maxImagesPerCall   = 4
	promptTrends       = 20
	responseTrends     = 10
)

// Options задаёт параметры оркестратора.
type Options struct {
	// ProviderTimeout ограничивает каждый вызов AI-провайдера.
	ProviderTimeout time.Duration
	Now             func() time.Time
	// Trends подмешивает актуальные темы в брейншторм. nil отключает тренды.
	Trends domain.TrendingSource
}

// Service координирует генерацию текста, изображений и идей.
type Service struct {
	text      domain.TextGenerator
	images    domain.ImageGenerator
	ideas     domain.IdeaGenerator
	documents domain.DocumentStore
	trends    domain.TrendingSource
	timeout   time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewService создаёт оркестратор. images и documents могут быть nil.
func NewService(text domain.TextGenerator, images domain.ImageGenerator, ideas domain.IdeaGenerator, documents domain.DocumentStore, opts Options, logger zerolog.Logger) *Service {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		text:      text,
		images:    images,
		ideas:     ideas,
		documents: documents,
		trends:    opts.Trends,
		timeout:   opts.ProviderTimeout,
		now:       opts.Now,
		log:       logger.With().Str("component", "content").Logger(),
	}
}

// Generate генерирует текст и, по запросу, изображение. Сбой текста — ошибка
// всего вызова; сбой изображения — результат без картинки с предупреждением.
func (s *Service) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	start := time.Now()
	result, err := s.generate(ctx, req, true)
	metrics.ObserveGeneration("content", start, err)
	return result, err
}

func (s *Service) generate(ctx context.Context, req domain.GenerationRequest, allowImage bool) (domain.GenerationResult, error) {
	const op = "generate content"
	platform, err := validateRequest(op, req)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	req.Platform = platform

	var warnings []domain.Warning
	brand, warning := s.brandContext(ctx, req)
	if warning != nil {
		warnings = append(warnings, *warning)
	}

	text, err := s.generateText(ctx, domain.TextPrompt{
		Topic:        strings.TrimSpace(req.Topic),
		Platform:     platform,
		Tone:         req.Tone,
		BrandContext: brand,
		Length:       req.Length,
	})
	if err != nil {
		s.log.Error().Err(err).Str("platform", string(platform)).Msg("Не удалось сгенерировать текст")
		return domain.GenerationResult{}, err
	}

	result := domain.GenerationResult{
		ID:        uuid.NewString(),
		Content:   text,
		Platform:  platform,
		Status:    domain.ContentStatusDraft,
		CreatedAt: s.now().UTC(),
	}

	if allowImage && req.IncludeImage {
		url, err := s.generateCoverImage(ctx, req)
		if err != nil {
			s.log.Warn().Err(err).Str("platform", string(platform)).Msg("Не удалось сгенерировать изображение, возвращаем текст")
			warnings = append(warnings, domain.Warning{Code: domain.WarningImageGenerationFailed, Message: err.Error()})
		} else {
			result.ImageURL = &url
		}
	}
	result.Warnings = warnings
	if result.Warnings == nil {
		result.Warnings = []domain.Warning{}
	}
	return result, nil
}

// GenerateVariations генерирует count текстовых вариантов параллельно. Любой сбой
// отменяет остальные и возвращается как ошибка всего вызова.
func (s *Service) GenerateVariations(ctx context.Context, req domain.GenerationRequest, count int) ([]domain.GenerationResult, error) {
	const op = "generate variations"
	if count < 1 || count > maxVariations {
		return nil, domain.Validation(op, fmt.Sprintf("count must be between 1 and %d", maxVariations))
	}
	start := time.Now()
	results := make([]domain.GenerationResult, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			variation := req
			variation.Topic = fmt.Sprintf("%s (variation %d)", strings.TrimSpace(req.Topic), i+1)
			res, err := s.generate(gctx, variation, false)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()
	metrics.ObserveGeneration("variations", start, err)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Brainstorm возвращает ровно Count идей или ошибку для всей пачки. Идеи
// опираются на актуальные тренды; недоступный источник трендов не мешает генерации.
func (s *Service) Brainstorm(ctx context.Context, req domain.BrainstormRequest) (domain.BrainstormResult, error) {
	const op = "brainstorm"
	start := time.Now()
	res, err := s.brainstorm(ctx, op, req)
	metrics.ObserveGeneration("brainstorm", start, err)
	return res, err
}

func (s *Service) brainstorm(ctx context.Context, op string, req domain.BrainstormRequest) (domain.BrainstormResult, error) {
	platform, ok := domain.ParsePlatform(string(req.Platform))
	if !ok {
		return domain.BrainstormResult{}, domain.Validation(op, fmt.Sprintf("unknown platform %q", req.Platform))
	}
	if req.Count < 1 || req.Count > maxBrainstormIdeas {
		return domain.BrainstormResult{}, domain.Validation(op, fmt.Sprintf("count must be between 1 and %d", maxBrainstormIdeas))
	}
	req.Platform = platform

	trends := s.trending(ctx, req.Topics)
	req.Trends = trends[:min(len(trends), promptTrends)]

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ideas, err := s.ideas.Brainstorm(ctx, req)
	if err != nil {
		return domain.BrainstormResult{}, domain.ProviderFailure(op, err)
	}
	if len(ideas) < req.Count {
		return domain.BrainstormResult{}, domain.ProviderFailure(op, fmt.Errorf("provider returned %d ideas, want %d", len(ideas), req.Count))
	}
	return domain.BrainstormResult{
		Ideas:          ideas[:req.Count],
		TrendingTopics: trends[:min(len(trends), responseTrends)],
	}, nil
}

// trending возвращает тренды по убыванию популярности. Если заданы topics,
// остаются только тренды, упоминающие хотя бы одну из тем.
func (s *Service) trending(ctx context.Context, topics []string) []domain.TrendingTopic {
	out := []domain.TrendingTopic{}
	if s.trends == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	all, err := s.trends.Trending(ctx, promptTrends)
	if err != nil {
		s.log.Warn().Err(err).Msg("тренды недоступны, брейншторм без них")
		return out
	}
	for _, trend := range all {
		if matchesTopics(trend.Keyword, topics) {
			out = append(out, trend)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TrendScore > out[j].TrendScore })
	return out
}

func matchesTopics(keyword string, topics []string) bool {
	if len(topics) == 0 {
		return true
	}
	keyword = strings.ToLower(keyword)
	for _, topic := range topics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic != "" && strings.Contains(keyword, topic) {
			return true
		}
	}
	return false
}

// GenerateImage генерирует изображения напрямую.
func (s *Service) GenerateImage(ctx context.Context, prompt domain.ImagePrompt) ([]string, error) {
	const op = "generate image"
	if strings.TrimSpace(prompt.Prompt) == "" {
		return nil, domain.Validation(op, "prompt is empty")
	}
	if prompt.Width == 0 {
		prompt.Width = defaultImageSize
	}
	if prompt.Height == 0 {
		prompt.Height = defaultImageSize
	}
	if prompt.Count == 0 {
		prompt.Count = 1
	}
	if prompt.Width < minImageSize || prompt.Width > maxImageSize || prompt.Height < minImageSize || prompt.Height > maxImageSize {
		return nil, domain.Validation(op, fmt.Sprintf("width and height must be between %d and %d", minImageSize, maxImageSize))
	}
	if prompt.Count < 1 || prompt.Count > maxImagesPerCall {
		return nil, domain.Validation(op, fmt.Sprintf("count must be between 1 and %d", maxImagesPerCall))
	}
	start := time.Now()
	urls, err := s.callImages(ctx, op, prompt)
	metrics.ObserveGeneration("image", start, err)
	return urls, err
}

func (s *Service) generateText(ctx context.Context, prompt domain.TextPrompt) (string, error) {
	const op = "generate text"
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.text.GenerateText(ctx, prompt)
	if err != nil {
		return "", domain.ProviderFailure(op, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ProviderFailure(op, fmt.Errorf("provider returned empty text"))
	}
	return text, nil
}

func (s *Service) generateCoverImage(ctx context.Context, req domain.GenerationRequest) (string, error) {
	urls, err := s.callImages(ctx, "generate image", domain.ImagePrompt{
		Prompt: strings.TrimSpace(req.Topic),
		Style:  req.ImageStyle,
		Width:  defaultImageSize,
		Height: defaultImageSize,
		Count:  1,
	})
	if err != nil {
		return "", err
	}
	return urls[0], nil
}

func (s *Service) callImages(ctx context.Context, op string, prompt domain.ImagePrompt) ([]string, error) {
	if s.images == nil {
		return nil, domain.ProviderFailure(op, fmt.Errorf("image provider is not configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	urls, err := s.images.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, domain.ProviderFailure(op, err)
	}
	if len(urls) == 0 {
		return nil, domain.ProviderFailure(op, fmt.Errorf("provider returned no images"))
	}
	return urls, nil
}

// brandContext дополняет контекст бренда найденными документами. Ошибка базы
// знаний превращается в предупреждение.
func (s *Service) brandContext(ctx context.Context, req domain.GenerationRequest) (string, *domain.Warning) {
	brand := strings.TrimSpace(req.BrandContext)
	if brand == "" || s.documents == nil {
		return brand, nil
	}
	results, err := s.documents.Search(ctx, req.Topic, brandContextTopK)
	if err != nil {
		s.log.Warn().Err(err).Msg("База знаний недоступна, генерируем без неё")
		return brand, &domain.Warning{Code: domain.WarningBrandContextFailed, Message: err.Error()}
	}
	if len(results) == 0 {
		return brand, nil
	}
	var b strings.Builder
	b.WriteString(brand)
	for _, r := range results {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(r.Document.Content))
	}
	return b.String(), nil
}

func validateRequest(op string, req domain.GenerationRequest) (domain.Platform, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return "", domain.Validation(op, "topic is empty")
	}
	platform, ok := domain.ParsePlatform(string(req.Platform))
	if !ok {
		return "", domain.Validation(op, fmt.Sprintf("unknown platform %q", req.Platform))
	}
	if req.Length < 0 {
		return "", domain.Validation(op, "length must be positive")
	}
	return platform, nil
}
