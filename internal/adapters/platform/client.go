package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"social-orchestrator/internal/infra/metrics"
)

// StatusError — неуспешный ответ API площадки.
type StatusError struct {
	Platform   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Platform, e.StatusCode, e.Body)
}

// apiClient — общий JSON-клиент площадок с bearer-токеном.
type apiClient struct {
	name    string
	baseURL string
	http    *http.Client
	// plain ходит на сторонние хосты без токена площадки.
	plain *http.Client
}

func newAPIClient(name, baseURL, token string, base *http.Client) apiClient {
	if base == nil {
		base = &http.Client{}
	}
	return apiClient{name: name, baseURL: strings.TrimRight(baseURL, "/"), http: bearerClient(token, base), plain: base}
}

// bearerClient оборачивает транспорт base в oauth2 со статическим токеном.
func bearerClient(token string, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if token == "" {
		return base
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   transport,
		},
	}
}

// postJSON отправляет тело в path и декодирует ответ в out. Возвращает заголовки ответа.
func (c apiClient) postJSON(ctx context.Context, operation, path string, body any, headers map[string]string, out any) (http.Header, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.send(req, operation, path, out)
}

// postMultipart загружает файл полем fileField вместе с текстовыми полями.
func (c apiClient) postMultipart(ctx context.Context, operation, path string, fields map[string]string, fileField, fileName string, data []byte, out any) (http.Header, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("%s: multipart field: %w", c.name, err)
		}
	}
	part, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, fmt.Errorf("%s: multipart file: %w", c.name, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%s: multipart file: %w", c.name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: multipart close: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, operation, path, out)
}

func (c apiClient) send(req *http.Request, operation, path string, out any) (http.Header, error) {
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest(c.name, operation, path, start, err)
		return nil, fmt.Errorf("%s: do request: %w", c.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveNetworkRequest(c.name, operation, path, start, err)
		return nil, fmt.Errorf("%s: read response: %w", c.name, err)
	}
	if resp.StatusCode >= 300 {
		statusErr := &StatusError{Platform: c.name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(clip(data, 512)))}
		metrics.ObserveNetworkRequest(c.name, operation, path, start, statusErr)
		return nil, statusErr
	}
	metrics.ObserveNetworkRequest(c.name, operation, path, start, nil)
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", c.name, err)
		}
	}
	return resp.Header, nil
}

// download скачивает файл по абсолютной ссылке без токена площадки.
func (c apiClient) download(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build download: %w", c.name, err)
	}
	start := time.Now()
	resp, err := c.plain.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest(c.name, "download_media", "media", start, err)
		return nil, fmt.Errorf("%s: download media: %w", c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		statusErr := &StatusError{Platform: c.name, StatusCode: resp.StatusCode, Body: "media download failed"}
		metrics.ObserveNetworkRequest(c.name, "download_media", "media", start, statusErr)
		return nil, statusErr
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	metrics.ObserveNetworkRequest(c.name, "download_media", "media", start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: read media: %w", c.name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: media larger than %d bytes", c.name, limit)
	}
	return data, nil
}

func clip(data []byte, limit int) []byte {
	if len(data) <= limit {
		return data
	}
	return data[:limit]
}
