package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSearchOrdersByDistance(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "x", []float32{1, 0, 0}, map[string]string{"axis": "x"}))
	require.NoError(t, store.Add(ctx, "y", []float32{0, 1, 0}, nil))
	require.NoError(t, store.Add(ctx, "near-x", []float32{0.9998, 0.02, 0}, nil))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 10, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "x", results[0].ID)
	assert.Equal(t, "near-x", results[1].ID)
	assert.Equal(t, "y", results[2].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, "x", results[0].Metadata["axis"])

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Distance, 0.0)
		assert.LessOrEqual(t, r.Distance, 2.0)
	}
}

func TestMemoryStoreMaxDistanceFilters(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "close", []float32{1, 0}, nil))
	require.NoError(t, store.Add(ctx, "far", []float32{0, 1}, nil))

	results, err := store.Search(ctx, []float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].ID)
}

func TestMemoryStoreTopK(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, store.Add(ctx, "b", []float32{0.99, 0.141}, nil))
	require.NoError(t, store.Add(ctx, "c", []float32{0.97, 0.243}, nil))

	results, err := store.Search(ctx, []float32{1, 0}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStoreDeleteAndClear(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, store.Add(ctx, "b", []float32{0, 1}, nil))

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "missing"), "deleting an unknown id is not an error")
	assert.Equal(t, 1, store.Size())

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Size())
}

func TestMemoryStoreDimensionMismatch(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	assert.Error(t, store.Add(ctx, "bad", []float32{1, 0}, nil))
	_, err := store.Search(ctx, []float32{1, 0}, 5, 1)
	assert.Error(t, err)
}

func TestMemoryStoreAddReplaces(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, store.Add(ctx, "a", []float32{0, 1}, nil))
	assert.Equal(t, 1, store.Size(), "re-adding an id keeps one live entry")

	results, err := store.Search(ctx, []float32{0, 1}, 1, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}
