package trends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedditTrendingParsesListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/r/golang/hot.json", r.URL.Path)
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		require.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"data":{"children":[
			{"data":{"title":"Go 1.25 released","score":1200}},
			{"data":{"title":"  ","score":5}},
			{"data":{"title":"Generics tips","score":300}}
		]}}`))
	}))
	defer srv.Close()

	src := NewReddit(srv.URL+"/", []string{" golang "}, "test-agent", srv.Client())
	topics, err := src.Trending(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	require.Equal(t, "Go 1.25 released", topics[0].Keyword)
	require.Equal(t, float64(1200), topics[0].TrendScore)
	require.Equal(t, "reddit", topics[0].Platform)
	require.Equal(t, "r/golang", topics[0].Source)
}

func TestRedditTrendingPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/r/broken/hot.json" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"children":[{"data":{"title":"ok","score":1}}]}}`))
	}))
	defer srv.Close()

	src := NewReddit(srv.URL, []string{"broken", "news"}, "", srv.Client())
	topics, err := src.Trending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	require.Equal(t, "r/news", topics[0].Source)
}

func TestRedditTrendingAllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewReddit(srv.URL, nil, "", srv.Client())
	_, err := src.Trending(context.Background(), 10)
	require.ErrorContains(t, err, "reddit r/all: status 403")
}
