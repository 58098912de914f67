package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChromemIndex_RoundTrip(t *testing.T) {
	index, err := NewChromemIndex(ChromemConfig{
		PersistPath: t.TempDir(),
		Collection:  "trip",
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, index.Upsert(ctx, "near", []float32{1, 0, 0}, map[string]string{"source": "a.md"}))
	require.NoError(t, index.Upsert(ctx, "far", []float32{0, 1, 0}, map[string]string{"source": "b.md"}))
	require.Equal(t, 2, index.Count())

	matches, err := index.Search(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "near", matches[0].ID)

	// topK above the collection size is clamped, not rejected.
	matches, err = index.Search(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestChromemIndex_FiltersAndRemove(t *testing.T) {
	index, err := NewChromemIndex(ChromemConfig{Collection: "filters"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, index.Upsert(ctx, "go-unit", []float32{1, 0}, map[string]string{"language": "go"}))
	require.NoError(t, index.Upsert(ctx, "md-unit", []float32{1, 0}, map[string]string{"language": "markdown"}))

	matches, err := index.Search(ctx, []float32{1, 0}, 1, map[string]string{"language": "go"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "go-unit", matches[0].ID)

	require.NoError(t, index.Remove(ctx, "go-unit"))
	require.Equal(t, 1, index.Count())
}

func TestChromemIndex_EmptySearch(t *testing.T) {
	index, err := NewChromemIndex(ChromemConfig{Collection: "empty"})
	require.NoError(t, err)

	matches, err := index.Search(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Empty(t, matches)
}
