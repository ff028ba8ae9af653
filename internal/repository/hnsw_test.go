package repository

import (
	"context"
	"path/filepath"
	"testing"

	"face-registry/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWInsertFindDelete(t *testing.T) {
	ctx := context.Background()
	store := NewHNSWStore(2, "L2", "")

	require.NoError(t, store.Insert(ctx, models.Descriptor{1, 0}, 1))

	rec, err := store.FindByIdentity(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.PersonID)

	assert.ErrorIs(t, store.Insert(ctx, models.Descriptor{0, 1}, 1), ErrIdentityExists)

	require.NoError(t, store.DeleteByIdentity(ctx, 1))
	rec, err = store.FindByIdentity(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// повторное удаление - не ошибка
	assert.NoError(t, store.DeleteByIdentity(ctx, 1))
}

func TestHNSWDimensionCheck(t *testing.T) {
	store := NewHNSWStore(3, "L2", "")
	assert.ErrorIs(t, store.Insert(context.Background(), models.Descriptor{1, 0}, 1), ErrDimensionMismatch)
}

func TestHNSWSearchNearest(t *testing.T) {
	ctx := context.Background()
	store := NewHNSWStore(2, "L2", "")

	candidates, err := store.SearchNearest(ctx, models.Descriptor{0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	require.NoError(t, store.Insert(ctx, models.Descriptor{0.05, 0}, 7))
	require.NoError(t, store.Insert(ctx, models.Descriptor{0.2, 0}, 3))
	require.NoError(t, store.Insert(ctx, models.Descriptor{0.3, 0}, 9))

	candidates, err = store.SearchNearest(ctx, models.Descriptor{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	byID := map[int64]float64{}
	for _, c := range candidates {
		byID[c.PersonID] = c.Distance
	}
	assert.InDelta(t, 0.05, byID[7], 1e-6)
	assert.InDelta(t, 0.2, byID[3], 1e-6)
	assert.InDelta(t, 0.3, byID[9], 1e-6)
}

func TestHNSWFlushAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index", "faces.hnsw")

	store := NewHNSWStore(2, "L2", path)
	require.NoError(t, store.Insert(ctx, models.Descriptor{1, 0}, 1))
	require.NoError(t, store.Insert(ctx, models.Descriptor{0, 1}, 2))
	require.NoError(t, store.Flush(ctx))

	restored := NewHNSWStore(2, "L2", path)
	require.NoError(t, restored.Load())

	count, err := restored.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	candidates, err := restored.SearchNearest(ctx, models.Descriptor{0.9, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(1), candidates[0].PersonID)
}

func TestHNSWLoadWithoutFiles(t *testing.T) {
	store := NewHNSWStore(2, "L2", filepath.Join(t.TempDir(), "missing.hnsw"))
	assert.NoError(t, store.Load())
}
