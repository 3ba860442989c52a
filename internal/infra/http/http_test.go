package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"social-orchestrator/internal/domain"
)

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	limiter := &countingLimiter{limit: 1, seen: map[string]int{}}
	srv := NewServer(zerolog.Nop(), Options{Limiter: limiter, LimitWindow: time.Minute})
	srv.Router.Get("/ping", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, 2, limiter.seen["10.0.0.1"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	srv := NewServer(zerolog.Nop(), Options{Limiter: limiter, LimitWindow: time.Minute})
	srv.Router.Get("/ping", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validation("op", "bad"), http.StatusBadRequest},
		{domain.Unsupported("op", "myspace"), http.StatusBadRequest},
		{domain.NotFound("op", "missing"), http.StatusNotFound},
		{domain.InvalidState("op", "cancelled"), http.StatusConflict},
		{domain.ProviderFailure("op", errors.New("down")), http.StatusBadGateway},
		{domain.PlatformFailure("op", errors.New("down")), http.StatusBadGateway},
		{domain.ProviderFailure("op", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal error","code":"internal_error"}`, rec.Body.String())
}

func TestShutdownBeforeStartStopsServing(t *testing.T) {
	srv := NewServer(zerolog.Nop(), Options{})
	require.NoError(t, srv.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- srv.Start("127.0.0.1:0") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start продолжает обслуживать после Shutdown")
	}
}

func TestStartServesUntilShutdown(t *testing.T) {
	srv := NewServer(zerolog.Nop(), Options{})
	done := make(chan error, 1)
	go func() { done <- srv.Start("127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start не вернулся после Shutdown")
	}
}
