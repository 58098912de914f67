package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryIndex_SearchOrderingAndBound(t *testing.T) {
	ix := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, "far", []float32{0, 1}, nil))
	require.NoError(t, ix.Upsert(ctx, "near", []float32{1, 0}, nil))
	require.NoError(t, ix.Upsert(ctx, "mid", []float32{0.7, 0.7}, nil))

	matches, err := ix.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2, "never more than top_k")
	require.Equal(t, "near", matches[0].ID)
	require.Equal(t, "mid", matches[1].ID)
	require.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestMemoryIndex_TieBreakByInsertionOrder(t *testing.T) {
	ix := NewMemoryIndex()
	ctx := context.Background()

	// Identical vectors score identically; insertion order decides
	require.NoError(t, ix.Upsert(ctx, "second", []float32{1, 0}, nil))
	require.NoError(t, ix.Upsert(ctx, "third", []float32{1, 0}, nil))
	require.NoError(t, ix.Upsert(ctx, "first", []float32{1, 0}, nil))

	for i := 0; i < 5; i++ {
		matches, err := ix.Search(ctx, []float32{1, 0}, 3, nil)
		require.NoError(t, err)
		require.Equal(t, []string{"second", "third", "first"}, []string{matches[0].ID, matches[1].ID, matches[2].ID})
	}
}

func TestMemoryIndex_UpsertKeepsInsertionRank(t *testing.T) {
	ix := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, ix.Upsert(ctx, "b", []float32{1, 0}, nil))
	// Overwriting "a" must not demote it behind "b"
	require.NoError(t, ix.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"v": "2"}))

	matches, err := ix.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Equal(t, "a", matches[0].ID)
	require.Equal(t, 2, ix.Count())
}

func TestMemoryIndex_Filters(t *testing.T) {
	ix := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, "go-unit", []float32{1, 0}, map[string]string{"language": "go"}))
	require.NoError(t, ix.Upsert(ctx, "py-unit", []float32{1, 0}, map[string]string{"language": "py"}))

	matches, err := ix.Search(ctx, []float32{1, 0}, 10, map[string]string{"language": "go"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "go-unit", matches[0].ID)
}

func TestMemoryIndex_EmptyAndRemove(t *testing.T) {
	ix := NewMemoryIndex()
	ctx := context.Background()

	matches, err := ix.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err, "searching an empty index is not a fault")
	require.Empty(t, matches)

	require.NoError(t, ix.Upsert(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, ix.Remove(ctx, "a"))
	require.NoError(t, ix.Remove(ctx, "a"), "removing an unknown id is a no-op")
	require.Equal(t, 0, ix.Count())
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	ix := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, "a", []float32{1, 0}, nil))

	err := ix.Upsert(ctx, "b", []float32{1, 0, 0}, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ix.Search(ctx, []float32{1}, 1, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryIndex_InvalidTopK(t *testing.T) {
	ix := NewMemoryIndex()
	_, err := ix.Search(context.Background(), []float32{1}, 0, nil)
	require.Error(t, err)
}
