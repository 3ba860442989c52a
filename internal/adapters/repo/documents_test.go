package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"social-orchestrator/internal/domain"
)

func TestMemoryDocumentsSearch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocuments()
	coffee, err := store.Add(ctx, "Our coffee is roasted in small batches", map[string]any{"source": "about"})
	require.NoError(t, err)
	_, err = store.Add(ctx, "We ship tea worldwide", nil)
	require.NoError(t, err)

	results, err := store.Search(ctx, "coffee batches", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, coffee.ID, results[0].Document.ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-9)

	empty, err := store.Search(ctx, "!!", 3)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestMemoryDocumentsDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocuments()
	doc, err := store.Add(ctx, "brand voice", nil)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, doc.ID))
	require.ErrorIs(t, store.Delete(ctx, doc.ID), domain.ErrNotFound)
}
