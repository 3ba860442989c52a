package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"social-orchestrator/internal/domain"
	httpinfra "social-orchestrator/internal/infra/http"
)

const (
	defaultVariations = 3
	defaultTopK       = 5
	maxTopK           = 50
	defaultDays       = 7
	maxBodyBytes      = 1 << 20
	maxFileBytes      = 10 << 20
)

// ContentService — операции генерации контента.
type ContentService interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
	GenerateVariations(ctx context.Context, req domain.GenerationRequest, count int) ([]domain.GenerationResult, error)
	Brainstorm(ctx context.Context, req domain.BrainstormRequest) (domain.BrainstormResult, error)
	GenerateImage(ctx context.Context, prompt domain.ImagePrompt) ([]string, error)
}

// SchedulingService — операции над запланированными постами.
type SchedulingService interface {
	Schedule(ctx context.Context, req domain.ScheduleRequest) (domain.ScheduledPost, error)
	Cancel(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	PublishNow(ctx context.Context, id string) error
	ListScheduled(ctx context.Context) ([]domain.ScheduledPost, error)
	Get(ctx context.Context, id string) (domain.ScheduledPost, error)
}

// AnalyticsService считает статистику по платформе.
type AnalyticsService interface {
	PlatformStats(ctx context.Context, platform domain.Platform, days int) (domain.PlatformStats, error)
}

// Deps — зависимости обработчиков. Documents и Health могут быть nil.
type Deps struct {
	Content    ContentService
	Scheduling SchedulingService
	Analytics  AnalyticsService
	Platforms  domain.PlatformDirectory
	Documents  domain.DocumentStore
	Health     func(ctx context.Context) error
	Version    string
	Production bool
}

// Handler обслуживает REST API оркестратора.
type Handler struct {
	deps Deps
	log  zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(deps Deps, logger zerolog.Logger) *Handler {
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}
	return &Handler{deps: deps, log: logger.With().Str("component", "httpapi").Logger()}
}

// Register подключает маршруты к роутеру.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.root)
	r.Get("/health", h.health)

	r.Route("/api", func(api chi.Router) {
		api.Route("/content", func(c chi.Router) {
			c.Post("/generate", h.generate)
			c.Post("/generate/variations", h.generateVariations)
			c.Post("/brainstorm", h.brainstorm)
		})
		api.Route("/scheduling", func(s chi.Router) {
			s.Post("/schedule", h.schedule)
			s.Get("/scheduled", h.listScheduled)
			s.Get("/scheduled/{id}", h.getScheduled)
			s.Delete("/scheduled/{id}", h.cancelScheduled)
			s.Post("/scheduled/{id}/publish", h.publishNow)
		})
		api.Route("/social-media", func(s chi.Router) {
			s.Get("/platforms", h.platforms)
			s.Post("/post", h.publish)
		})
		api.Post("/images/generate", h.generateImage)
		api.Route("/rag", func(rg chi.Router) {
			rg.Post("/upload", h.uploadDocument)
			rg.Post("/upload/file", h.uploadFile)
			rg.Post("/search", h.searchDocuments)
			rg.Delete("/document/{id}", h.deleteDocument)
		})
		api.Get("/analytics/platform/{platform}", h.platformAnalytics)
	})
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	docs := "/api"
	if h.deps.Production {
		docs = "Disabled in production"
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "AI Social Media Content Orchestrator API",
		"version": h.deps.Version,
		"docs":    docs,
		"status":  "operational",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "healthy", "database": "healthy"}
	if h.deps.Health == nil {
		resp["database"] = "disabled"
		httpinfra.WriteJSON(w, http.StatusOK, resp)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.deps.Health(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Проверка БД не прошла")
		resp["status"] = "degraded"
		resp["database"] = "unhealthy"
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.deps.Content.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) generateVariations(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", defaultVariations)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.GenerationRequest
	if !h.decode(w, r, &req) {
		return
	}
	results, err := h.deps.Content.GenerateVariations(r.Context(), req, count)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, results)
}

func (h *Handler) brainstorm(w http.ResponseWriter, r *http.Request) {
	req := domain.BrainstormRequest{Count: 5}
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.deps.Content.Brainstorm(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	var req domain.ScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	post, err := h.deps.Scheduling.Schedule(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, post)
}

// listScheduled отдаёт все посты, кроме удалённых. Кроме scheduled, published,
// failed и cancelled клиент может увидеть publishing: пост уже захвачен
// диспетчером и ждёт ответа площадки.
func (h *Handler) listScheduled(w http.ResponseWriter, r *http.Request) {
	posts, err := h.deps.Scheduling.ListScheduled(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, posts)
}

func (h *Handler) getScheduled(w http.ResponseWriter, r *http.Request) {
	post, err := h.deps.Scheduling.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, post)
}

// cancelScheduled отменяет пост, а с ?hard=true удаляет запись целиком.
func (h *Handler) cancelScheduled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	if hard, _ := strconv.ParseBool(r.URL.Query().Get("hard")); hard {
		err = h.deps.Scheduling.Delete(r.Context(), id)
	} else {
		err = h.deps.Scheduling.Cancel(r.Context(), id)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publishNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Scheduling.PublishNow(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "dispatched"})
}

func (h *Handler) platforms(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"platforms": h.deps.Platforms.GetPlatforms()})
}

type publishRequest struct {
	Platform string  `json:"platform"`
	Content  string  `json:"content"`
	ImageURL *string `json:"image_url"`
}

// publish публикует пост сразу, без записи в планировщик.
func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	const op = "publish post"
	var req publishRequest
	if !h.decode(w, r, &req) {
		return
	}
	platform, ok := domain.ParsePlatform(req.Platform)
	if !ok {
		h.fail(w, r, domain.Unsupported(op, domain.Platform(req.Platform)))
		return
	}
	receipt, err := h.deps.Platforms.Publish(r.Context(), platform, strings.TrimSpace(req.Content), req.ImageURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := map[string]any{
		"platform":     receipt.Platform,
		"status":       domain.PostStatusPublished,
		"published_at": receipt.PublishedAt,
		"post_url":     nil,
	}
	if receipt.PostURL != "" {
		resp["post_url"] = receipt.PostURL
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) generateImage(w http.ResponseWriter, r *http.Request) {
	prompt := domain.ImagePrompt{Width: 512, Height: 512, Count: 1}
	if !h.decode(w, r, &prompt) {
		return
	}
	urls, err := h.deps.Content.GenerateImage(r.Context(), prompt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"image_urls": urls,
		"prompt":     prompt.Prompt,
		"metadata": map[string]any{
			"style":      prompt.Style,
			"width":      prompt.Width,
			"height":     prompt.Height,
			"num_images": prompt.Count,
		},
	})
}

type uploadRequest struct {
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata"`
	DocumentType string         `json:"document_type"`
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	const op = "upload document"
	if !h.documentsReady(w, r, op) {
		return
	}
	var req uploadRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		h.fail(w, r, domain.Validation(op, "content is empty"))
		return
	}
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	if req.DocumentType != "" {
		req.Metadata["document_type"] = req.DocumentType
	}
	doc, err := h.deps.Documents.Add(r.Context(), req.Content, req.Metadata)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{
		"document_id": doc.ID,
		"message":     "Document uploaded successfully",
	})
}

// uploadFile принимает текстовый файл в поле file формы multipart.
func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	const op = "upload file"
	if !h.documentsReady(w, r, op) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFileBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, domain.Validation(op, "multipart field file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, r, domain.Validation(op, "file is too large or unreadable"))
		return
	}
	if !utf8.Valid(data) {
		h.fail(w, r, domain.Validation(op, "file must be UTF-8 text"))
		return
	}
	if strings.TrimSpace(string(data)) == "" {
		h.fail(w, r, domain.Validation(op, "file is empty"))
		return
	}
	metadata := map[string]any{
		"filename":     header.Filename,
		"content_type": header.Header.Get("Content-Type"),
	}
	doc, err := h.deps.Documents.Add(r.Context(), string(data), metadata)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{
		"document_id": doc.ID,
		"message":     "File uploaded successfully",
	})
}

func (h *Handler) searchDocuments(w http.ResponseWriter, r *http.Request) {
	const op = "search documents"
	if !h.documentsReady(w, r, op) {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		h.fail(w, r, domain.Validation(op, "query is empty"))
		return
	}
	topK, err := queryInt(r, "top_k", defaultTopK)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if topK < 1 || topK > maxTopK {
		h.fail(w, r, domain.Validation(op, fmt.Sprintf("top_k must be between 1 and %d", maxTopK)))
		return
	}
	results, err := h.deps.Documents.Search(r.Context(), query, topK)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if !h.documentsReady(w, r, "delete document") {
		return
	}
	if err := h.deps.Documents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

func (h *Handler) platformAnalytics(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultDays)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.deps.Analytics.PlatformStats(r.Context(), domain.Platform(chi.URLParam(r, "platform")), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) documentsReady(w http.ResponseWriter, r *http.Request, op string) bool {
	if h.deps.Documents != nil {
		return true
	}
	h.fail(w, r, domain.InvalidState(op, "document store is not configured"))
	return false
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.fail(w, r, domain.Validation("decode request", "invalid request body"))
		return false
	}
	return true
}

// fail пишет ошибку клиенту, серверные ошибки логирует целиком.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpinfra.StatusFor(err)
	event := h.log.Debug()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Запрос завершился ошибкой")
	httpinfra.WriteError(w, err)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validation("parse query", fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}
