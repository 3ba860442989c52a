package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

// Registry реализует domain.PlatformDirectory поверх набора адаптеров.
type Registry struct {
	publishers map[domain.Platform]domain.Publisher
	timeout    time.Duration
	log        zerolog.Logger
}

// NewRegistry регистрирует адаптеры; timeout ограничивает каждую публикацию.
func NewRegistry(timeout time.Duration, logger zerolog.Logger, publishers ...domain.Publisher) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Registry{
		publishers: make(map[domain.Platform]domain.Publisher, len(publishers)),
		timeout:    timeout,
		log:        logger.With().Str("component", "platform_registry").Logger(),
	}
	for _, p := range publishers {
		r.publishers[p.Platform()] = p
	}
	return r
}

// Lookup возвращает описание платформы или UnsupportedPlatform.
func (r *Registry) Lookup(platform domain.Platform) (domain.PlatformInfo, error) {
	p, ok := r.publishers[platform]
	if !ok {
		return domain.PlatformInfo{}, domain.Unsupported("lookup platform", platform)
	}
	return p.Info(), nil
}

// GetPlatforms возвращает платформы в стабильном порядке.
func (r *Registry) GetPlatforms() []domain.PlatformInfo {
	out := make([]domain.PlatformInfo, 0, len(r.publishers))
	for _, name := range domain.KnownPlatforms() {
		if p, ok := r.publishers[name]; ok {
			out = append(out, p.Info())
		}
	}
	return out
}

// Publish проверяет платформу и контент до сетевого вызова и публикует с таймаутом.
func (r *Registry) Publish(ctx context.Context, platform domain.Platform, content string, imageURL *string) (domain.PublishReceipt, error) {
	const op = "publish"
	p, ok := r.publishers[platform]
	if !ok {
		return domain.PublishReceipt{}, domain.Unsupported(op, platform)
	}
	info := p.Info()
	if strings.TrimSpace(content) == "" {
		return domain.PublishReceipt{}, domain.Validation(op, "content is empty")
	}
	if info.RequiresImage && (imageURL == nil || strings.TrimSpace(*imageURL) == "") {
		return domain.PublishReceipt{}, domain.Validation(op, fmt.Sprintf("%s requires an image", platform))
	}
	if !info.Enabled {
		err := domain.PlatformFailure(op, fmt.Errorf("%s is not configured", platform))
		metrics.ObservePublish(string(platform), err)
		return domain.PublishReceipt{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	receipt, err := p.Publish(ctx, content, imageURL)
	if err != nil {
		err = domain.PlatformFailure(op, err)
		metrics.ObservePublish(string(platform), err)
		r.log.Warn().Err(err).Str("platform", string(platform)).Msg("Публикация не удалась")
		return domain.PublishReceipt{}, err
	}
	metrics.ObservePublish(string(platform), nil)
	r.log.Info().Str("platform", string(platform)).Str("post_url", receipt.PostURL).Msg("Пост опубликован")
	return receipt, nil
}
