package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"social-orchestrator/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestRegistryUnknownPlatformBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	reg := NewRegistry(time.Second, zerolog.Nop(), NewTwitter(srv.URL, "token", srv.Client()))
	_, err := reg.Publish(context.Background(), domain.Platform("myspace"), "hi", nil)
	require.ErrorIs(t, err, domain.ErrUnsupportedPlatform)
	require.Zero(t, hits.Load())
}

func TestRegistryInstagramRequiresImage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	reg := NewRegistry(time.Second, zerolog.Nop(), NewInstagram(srv.URL, "token", "42", srv.Client()))
	_, err := reg.Publish(context.Background(), domain.PlatformInstagram, "caption", nil)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Zero(t, hits.Load())
}

func TestRegistryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	reg := NewRegistry(50*time.Millisecond, zerolog.Nop(), NewTwitter(srv.URL, "token", srv.Client()))
	_, err := reg.Publish(context.Background(), domain.PlatformTwitter, "hi", nil)
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.ErrorIs(t, err, domain.ErrPlatform)
}

func TestRegistryNotConfigured(t *testing.T) {
	reg := NewRegistry(time.Second, zerolog.Nop(), NewFacebook("http://127.0.0.1:1", "", "", nil))
	_, err := reg.Publish(context.Background(), domain.PlatformFacebook, "hi", nil)
	require.ErrorIs(t, err, domain.ErrPlatform)
}

func TestRegistryGetPlatformsStableOrder(t *testing.T) {
	reg := NewRegistry(time.Second, zerolog.Nop(),
		NewFacebook("", "tok", "page", nil),
		NewTwitter("", "", nil),
		NewInstagram("", "tok", "acc", nil),
		NewLinkedIn("", "tok", "urn:li:person:1", nil),
	)
	infos := reg.GetPlatforms()
	require.Len(t, infos, 4)
	require.Equal(t, domain.PlatformTwitter, infos[0].Name)
	require.False(t, infos[0].Enabled)
	require.True(t, infos[1].RequiresImage)
	require.False(t, infos[1].Supports(domain.CapabilityText))
}

func TestTwitterPublish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body["text"])
		require.NotContains(t, body, "media")
		_, _ = w.Write([]byte(`{"data":{"id":"123"}}`))
	}))
	defer srv.Close()

	tw := NewTwitter(srv.URL, "secret", srv.Client())
	receipt, err := tw.Publish(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.Equal(t, "123", receipt.RemoteID)
	require.Equal(t, "https://twitter.com/i/web/status/123", receipt.PostURL)
}

func TestTwitterPublishAttachesUploadedMedia(t *testing.T) {
	png := []byte("\x89PNG fake image bytes")
	var (
		mu    sync.Mutex
		steps []string
		tweet struct {
			Text  string `json:"text"`
			Media struct {
				MediaIDs []string `json:"media_ids"`
			} `json:"media"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		steps = append(steps, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/images/cat.png":
			require.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write(png)
		case "/2/media/upload":
			require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			require.NoError(t, r.ParseMultipartForm(1<<20))
			require.Equal(t, "tweet_image", r.FormValue("media_category"))
			file, header, err := r.FormFile("media")
			require.NoError(t, err)
			defer file.Close()
			require.Equal(t, "cat.png", header.Filename)
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			require.Equal(t, png, data)
			_, _ = w.Write([]byte(`{"data":{"id":"m-55"}}`))
		case "/2/tweets":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&tweet))
			_, _ = w.Write([]byte(`{"data":{"id":"124"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tw := NewTwitter(srv.URL, "secret", srv.Client())
	receipt, err := tw.Publish(context.Background(), "hello", strPtr(srv.URL+"/images/cat.png"))
	require.NoError(t, err)
	require.Equal(t, "124", receipt.RemoteID)

	mu.Lock()
	require.Equal(t, []string{"/images/cat.png", "/2/media/upload", "/2/tweets"}, steps)
	mu.Unlock()
	require.Equal(t, "hello", tweet.Text)
	require.Equal(t, []string{"m-55"}, tweet.Media.MediaIDs)
}

func TestTwitterPublishFailsWhenImageUnavailable(t *testing.T) {
	var tweets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/2/tweets" {
			tweets.Add(1)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tw := NewTwitter(srv.URL, "secret", srv.Client())
	_, err := tw.Publish(context.Background(), "hello", strPtr(srv.URL+"/missing.png"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Zero(t, tweets.Load())
}

func TestInstagramPublishTwoSteps(t *testing.T) {
	var (
		mu    sync.Mutex
		steps []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		steps = append(steps, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/42/media":
			_, _ = w.Write([]byte(`{"id":"c1"}`))
		case "/42/media_publish":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "c1", body["creation_id"])
			_, _ = w.Write([]byte(`{"id":"m1"}`))
		}
	}))
	defer srv.Close()

	ig := NewInstagram(srv.URL, "tok", "42", srv.Client())
	receipt, err := ig.Publish(context.Background(), "caption", strPtr("http://img"))
	require.NoError(t, err)
	mu.Lock()
	require.Equal(t, []string{"/42/media", "/42/media_publish"}, steps)
	mu.Unlock()
	require.Equal(t, "https://www.instagram.com/p/m1/", receipt.PostURL)
}

func TestLinkedInPublishUsesHeaderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		w.Header().Set("X-RestLi-Id", "urn:li:share:777")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	li := NewLinkedIn(srv.URL, "tok", "urn:li:person:1", srv.Client())
	receipt, err := li.Publish(context.Background(), "post", nil)
	require.NoError(t, err)
	require.Equal(t, "777", receipt.RemoteID)
	require.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:777/", receipt.PostURL)
}

func TestFacebookPublishErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/page/photos", r.URL.Path)
		http.Error(w, `{"error":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	fb := NewFacebook(srv.URL, "tok", "page", srv.Client())
	_, err := fb.Publish(context.Background(), "post", strPtr("http://img"))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}
