package http

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"social-orchestrator/internal/domain"
	"social-orchestrator/internal/infra/metrics"
)

// RateLimit отклоняет запросы сверх лимита с 429 и Retry-After. Ключ — IP клиента
// после middleware.RealIP. Ошибка лимитера пропускает запрос.
func RateLimit(limiter domain.RateLimiter, window time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	if window < time.Second {
		retryAfter = "1"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.Warn().Err(err).Msg("Лимитер недоступен, пропускаем запрос")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", retryAfter)
				WriteJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded", "code": "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
