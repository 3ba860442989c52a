package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"social-orchestrator/internal/domain"
)

func TestStableDiffusionGenerateImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/generate", r.URL.Path)
		var req sdRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "cat, watercolor style", req.Prompt)
		require.Equal(t, 512, req.Width)
		require.Equal(t, 2, req.NumImages)
		_ = json.NewEncoder(w).Encode(sdResponse{Images: []string{"http://img/1.png", "http://img/2.png"}})
	}))
	defer srv.Close()

	sd := NewStableDiffusion(srv.URL+"/", srv.Client())
	urls, err := sd.GenerateImage(context.Background(), domain.ImagePrompt{Prompt: "cat", Style: "watercolor", Width: 512, Height: 512, Count: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"http://img/1.png", "http://img/2.png"}, urls)
}

func TestStableDiffusionServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gpu busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sd := NewStableDiffusion(srv.URL, srv.Client())
	_, err := sd.GenerateImage(context.Background(), domain.ImagePrompt{Prompt: "cat", Width: 512, Height: 512, Count: 1})
	require.ErrorContains(t, err, "503")
}

func TestStableDiffusionEmptyImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[]}`))
	}))
	defer srv.Close()

	sd := NewStableDiffusion(srv.URL, srv.Client())
	_, err := sd.GenerateImage(context.Background(), domain.ImagePrompt{Prompt: "cat", Width: 512, Height: 512, Count: 1})
	require.Error(t, err)
}
