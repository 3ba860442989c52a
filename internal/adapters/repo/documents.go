package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"social-orchestrator/internal/domain"
)

// terms разбивает текст на уникальные слова в нижнем регистре.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// rankResults сортирует по убыванию оценки и обрезает до topK.
func rankResults(results []domain.SearchResult, topK int) []domain.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.CreatedAt.Before(results[j].Document.CreatedAt)
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// MemoryDocuments — база знаний в памяти процесса.
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

var _ domain.DocumentStore = (*MemoryDocuments)(nil)

// NewMemoryDocuments создаёт пустую базу знаний.
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]domain.Document)}
}

// Add сохраняет документ.
func (m *MemoryDocuments) Add(_ context.Context, content string, metadata map[string]any) (domain.Document, error) {
	doc := domain.Document{ID: uuid.NewString(), Content: content, Metadata: metadata, CreatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.docs[doc.ID] = doc
	m.mu.Unlock()
	return doc, nil
}

// Search возвращает документы с долей совпавших слов запроса.
func (m *MemoryDocuments) Search(_ context.Context, query string, topK int) ([]domain.SearchResult, error) {
	queryTerms := terms(query)
	if len(queryTerms) == 0 {
		return []domain.SearchResult{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]domain.SearchResult, 0)
	for _, doc := range m.docs {
		docTerms := make(map[string]struct{})
		for _, t := range terms(doc.Content) {
			docTerms[t] = struct{}{}
		}
		matched := 0
		for _, t := range queryTerms {
			if _, ok := docTerms[t]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, domain.SearchResult{Document: doc, Score: float64(matched) / float64(len(queryTerms))})
	}
	return rankResults(results, topK), nil
}

// Delete удаляет документ.
func (m *MemoryDocuments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return domain.NotFound("delete document", fmt.Sprintf("document %s not found", id))
	}
	delete(m.docs, id)
	return nil
}
