package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

const testDim = 4

func setupTestStore(t *testing.T) *SQLitePointStore {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "docs")
	store, err := CreatePointStore(context.Background(), dir, "docs", testDim)
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func vec(seed float32) []float32 {
	return []float32{seed, seed + 1, seed + 2, seed + 3}
}

func TestCreatePointStore(t *testing.T) {
	store := setupTestStore(t)

	assert.Equal(t, "docs", store.Name())
	assert.Equal(t, testDim, store.Dimension())
	assert.FileExists(t, filepath.Join(store.Dir(), PointsFileName))

	info, err := store.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "docs", info.Name)
	assert.Equal(t, testDim, info.Dimension)
	assert.Equal(t, 0, info.PointCount)
	assert.False(t, info.CreatedAt.IsZero())
}

func TestCreatePointStore_AlreadyExists(t *testing.T) {
	store := setupTestStore(t)

	_, err := CreatePointStore(context.Background(), store.Dir(), "docs", testDim)
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
}

func TestCreatePointStore_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	_, err := CreatePointStore(ctx, filepath.Join(root, "x"), "x", 0)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = CreatePointStore(ctx, filepath.Join(root, "bad"), "../bad", 4)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestValidateCollectionName(t *testing.T) {
	valid := []string{"docs", "code-v2", "a.b_c", "X"}
	for _, name := range valid {
		assert.NoError(t, ValidateCollectionName(name), name)
	}

	invalid := []string{"", ".hidden", "-dash", "a/b", "a b", string(make([]byte, 200))}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateCollectionName(name), types.ErrInvalidArgument, name)
	}
}

func TestOpenPointStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Upsert(ctx, []types.Point{{ID: "a", Vector: vec(1)}})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenPointStore(ctx, store.Dir())
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, "docs", reopened.Name())
	assert.Equal(t, testDim, reopened.Dimension())

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpenDatabasePragmas(t *testing.T) {
	store := setupTestStore(t)

	var timeout int
	require.NoError(t, store.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, busyTimeoutMs, timeout)

	var mode string
	require.NoError(t, store.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpenPointStore_NotFound(t *testing.T) {
	_, err := OpenPointStore(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, types.ErrCollectionNotFound)
}

func TestUpsert_AddedAndUpdated(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	res, err := store.Upsert(ctx, []types.Point{
		{ID: "a", Vector: vec(1)},
		{ID: "b", Vector: vec(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Added)
	assert.Empty(t, res.Updated)

	res, err = store.Upsert(ctx, []types.Point{
		{ID: "b", Vector: vec(20)},
		{ID: "c", Vector: vec(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.Added)
	assert.Equal(t, []string{"b"}, res.Updated)
	assert.Equal(t, 2, res.Total())

	p, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, vec(20), p.Vector)
}

func TestUpsert_DuplicateIDsLastWins(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	res, err := store.Upsert(ctx, []types.Point{
		{ID: "a", Vector: vec(1)},
		{ID: "a", Vector: vec(9)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Added)

	p, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, vec(9), p.Vector)
}

func TestUpsert_DimensionMismatchRejectsBatch(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Upsert(ctx, []types.Point{
		{ID: "ok", Vector: vec(1)},
		{ID: "bad", Vector: []float32{1, 2}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	var dm *types.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, testDim, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
	assert.Equal(t, "bad", dm.PointID)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "nothing from a rejected batch is stored")
}

func TestUpsert_EmptyID(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.Upsert(context.Background(), []types.Point{{ID: "", Vector: vec(1)}})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestPayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	payload := map[string]any{
		"path":  "internal/hnsw/graph.go",
		"line":  42,
		"score": 0.5,
		"tags":  []any{"go", "index"},
		"meta":  map[string]any{"kind": "function"},
	}
	_, err := store.Upsert(ctx, []types.Point{{ID: "a", Vector: vec(1), Payload: payload}})
	require.NoError(t, err)

	p, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "internal/hnsw/graph.go", p.Payload["path"])
	assert.EqualValues(t, 42, p.Payload["line"])
	assert.InDelta(t, 0.5, p.Payload["score"], 1e-9)
	assert.Equal(t, []any{"go", "index"}, p.Payload["tags"])
	assert.Equal(t, map[string]any{"kind": "function"}, p.Payload["meta"])
}

func TestNilPayload(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Upsert(ctx, []types.Point{{ID: "a", Vector: vec(1)}})
	require.NoError(t, err)

	p, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, p.Payload)
}

func TestGet_NotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrPointNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Upsert(ctx, []types.Point{
		{ID: "a", Vector: vec(1)},
		{ID: "b", Vector: vec(2)},
	})
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, []string{"a", "missing", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deleted)

	exists, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.Exists(ctx, "b")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err = store.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestGetMany(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	points := make([]types.Point, 0, 1200)
	ids := make([]string, 0, 1201)
	for i := 0; i < 1200; i++ {
		id := fmt.Sprintf("p%04d", i)
		points = append(points, types.Point{ID: id, Vector: vec(float32(i))})
		ids = append(ids, id)
	}
	_, err := store.Upsert(ctx, points)
	require.NoError(t, err)

	ids = append(ids, "missing")
	got, err := store.GetMany(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, got, 1200)
	assert.Equal(t, vec(7), got["p0007"].Vector)
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestForEachVector_AscendingIDOrder(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Upsert(ctx, []types.Point{
		{ID: "c", Vector: vec(3)},
		{ID: "a", Vector: vec(1)},
		{ID: "b", Vector: vec(2)},
	})
	require.NoError(t, err)

	var seen []string
	err = store.ForEachVector(ctx, func(id string, v []float32) error {
		seen = append(seen, id)
		assert.Len(t, v, testDim)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestForEachVector_StopsOnError(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.Upsert(ctx, []types.Point{{ID: "a", Vector: vec(1)}, {ID: "b", Vector: vec(2)}})
	require.NoError(t, err)

	stop := fmt.Errorf("stop")
	calls := 0
	err = store.ForEachVector(ctx, func(string, []float32) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDiscoverCollections(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	for _, name := range []string{"beta", "alpha"} {
		s, err := CreatePointStore(ctx, filepath.Join(root, name), name, testDim)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	names, err := DiscoverCollections(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	names, err = DiscoverCollections(filepath.Join(root, "nope"))
	require.NoError(t, err)
	assert.Empty(t, names)
}
