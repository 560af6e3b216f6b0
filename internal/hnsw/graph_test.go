package hnsw

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

func TestGraphInsertAndSearch(t *testing.T) {
	g := newGraph(4, testParams(), 8)

	_, err := g.insert("a", []float32{1, 0, 0, 0})
	require.NoError(t, err)
	_, err = g.insert("b", []float32{0, 1, 0, 0})
	require.NoError(t, err)
	_, err = g.insert("c", []float32{0.9, 0.1, 0, 0})
	require.NoError(t, err)

	hits, err := g.search([]float32{1, 0, 0, 0}, 2, 16)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.Equal(t, "c", hits[1].ID)
}

func TestGraphSearchEmpty(t *testing.T) {
	g := newGraph(4, testParams(), 8)

	hits, err := g.search([]float32{1, 0, 0, 0}, 5, 16)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGraphDimensionMismatch(t *testing.T) {
	g := newGraph(4, testParams(), 8)

	_, err := g.insert("a", []float32{1, 2})
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = g.search([]float32{1, 2, 3}, 1, 16)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestGraphRecall(t *testing.T) {
	const (
		n   = 1000
		dim = 32
		k   = 10
	)
	rng := newTestRand(1)
	vectors := randVectors(rng, n, dim)
	g := buildGraph(t, dim, vectors)

	var hit, total int
	for q := 0; q < 50; q++ {
		query := randVec(rng, dim)
		want := bruteForce(vectors, query, k)
		got, err := g.search(query, k, 100)
		require.NoError(t, err)

		gotSet := make(map[string]bool, len(got))
		for _, n := range got {
			gotSet[n.ID] = true
		}
		for _, id := range want {
			if gotSet[id] {
				hit++
			}
		}
		total += len(want)
	}

	recall := float64(hit) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.9, "recall %.3f", recall)
}

func TestGraphDeterministic(t *testing.T) {
	rng := newTestRand(2)
	vectors := randVectors(rng, 300, 16)
	query := randVec(rng, 16)

	g1 := buildGraph(t, 16, vectors)
	g2 := buildGraph(t, 16, vectors)

	a, err := encodeGraph(g1)
	require.NoError(t, err)
	b, err := encodeGraph(g2)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same input must produce the same artifact")

	r1, err := g1.search(query, 10, 64)
	require.NoError(t, err)
	r2, err := g2.search(query, 10, 64)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestGraphTiesBrokenByInsertionOrder(t *testing.T) {
	g := newGraph(2, testParams(), 8)
	for _, id := range []string{"first", "second", "third"} {
		_, err := g.insert(id, []float32{1, 1})
		require.NoError(t, err)
	}

	hits, err := g.search([]float32{1, 1}, 3, 16)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, ids(hits))
}

func TestGraphRemoveExcludesFromResults(t *testing.T) {
	rng := newTestRand(3)
	vectors := randVectors(rng, 200, 16)
	g := buildGraph(t, 16, vectors)

	target := vectors[42]
	require.True(t, g.remove(target.ID))
	assert.False(t, g.remove(target.ID), "second remove is a no-op")
	assert.False(t, g.remove("unknown"))

	hits, err := g.search(target.Values, 10, 64)
	require.NoError(t, err)
	assert.NotContains(t, ids(hits), target.ID)

	assert.Equal(t, 200, g.storedCount())
	assert.Equal(t, 199, g.liveCount())
	assert.Equal(t, 1, g.tombstonedCount())
}

func TestGraphUpdateAppendsSlot(t *testing.T) {
	g := newGraph(2, testParams(), 8)
	_, err := g.insert("a", []float32{1, 0})
	require.NoError(t, err)
	_, err = g.insert("b", []float32{0, 1})
	require.NoError(t, err)

	// Move "a" next to "b"
	_, err = g.insert("a", []float32{0.1, 1})
	require.NoError(t, err)

	assert.Equal(t, 3, g.storedCount())
	assert.Equal(t, 2, g.liveCount())
	assert.Equal(t, 1, g.tombstonedCount())

	hits, err := g.search([]float32{1, 0}, 2, 16)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(hits))
	assert.Greater(t, hits[0].Distance, float32(0.5), "old vector of a must not be returned")
}

func TestGraphExactFallbackFillsResults(t *testing.T) {
	rng := newTestRand(4)
	vectors := randVectors(rng, 300, 16)
	g := buildGraph(t, 16, vectors)

	// Leave only a handful of live nodes so the beam mostly sees tombstones
	for _, v := range vectors[:295] {
		g.remove(v.ID)
	}

	hits, err := g.search(randVec(rng, 16), 10, 8)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
	for _, h := range hits {
		assert.Contains(t, []string{"v00295", "v00296", "v00297", "v00298", "v00299"}, h.ID)
	}
}

func TestGraphCapacityDoubles(t *testing.T) {
	g := newGraph(2, testParams(), 2)

	var grew []bool
	for i := 0; i < 5; i++ {
		g2, err := g.insert(fmt.Sprintf("p%d", i), []float32{float32(i), 1})
		require.NoError(t, err)
		grew = append(grew, g2)
	}

	assert.Equal(t, []bool{false, false, true, false, true}, grew)
	assert.Equal(t, 8, g.capacity)
}

func TestLevelForIsDeterministic(t *testing.T) {
	mul := testParams().levelMul()
	for slot := uint32(0); slot < 100; slot++ {
		id := fmt.Sprintf("id-%d", slot)
		l := levelFor(id, slot, mul)
		assert.Equal(t, l, levelFor(id, slot, mul))
		assert.GreaterOrEqual(t, l, 0)
		assert.LessOrEqual(t, l, maxLevelCap)
	}
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func BenchmarkGraphInsert(b *testing.B) {
	rng := newTestRand(10)
	vectors := randVectors(rng, b.N, 64)
	g := newGraph(64, params{M: DefaultM, EfConstruction: DefaultEfConstruction, EfSearch: DefaultEfSearch}, b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.insert(vectors[i].ID, vectors[i].Values)
	}
}

func BenchmarkGraphSearch(b *testing.B) {
	rng := newTestRand(11)
	vectors := randVectors(rng, 5000, 64)
	g := buildGraph(b, 64, vectors)
	query := randVec(rng, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.search(query, 10, DefaultEfSearch)
	}
}
