package hnsw

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestRand returns a seeded generator so fixtures are reproducible
func newTestRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// randVec generates a random unit vector of the given dimension
func randVec(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		x := float32(rng.NormFloat64())
		v[i] = x
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= float32(norm)
	}
	return v
}

func randVectors(rng *rand.Rand, n, dim int) []Vector {
	out := make([]Vector, n)
	for i := range out {
		out[i] = Vector{ID: fmt.Sprintf("v%05d", i), Values: randVec(rng, dim)}
	}
	return out
}

// bruteForce returns the ids of the k nearest vectors by cosine distance
func bruteForce(vectors []Vector, query []float32, k int) []string {
	type scored struct {
		id   string
		dist float32
	}
	q := normalize(query)
	items := make([]scored, len(vectors))
	for i, v := range vectors {
		items[i] = scored{id: v.ID, dist: distance(q, normalize(v.Values))}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].dist < items[j].dist })
	if len(items) > k {
		items = items[:k]
	}
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].id
	}
	return out
}

func ids(ns []Neighbor) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func testParams() params {
	return params{M: 8, EfConstruction: 64, EfSearch: 64}
}

func buildGraph(t testing.TB, dim int, vectors []Vector) *graph {
	t.Helper()
	g := newGraph(dim, testParams(), 2*len(vectors))
	for _, v := range vectors {
		_, err := g.insert(v.ID, v.Values)
		require.NoError(t, err)
	}
	return g
}

// newTestCollection returns an existing collection directory
func newTestCollection(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// sliceSource adapts a vector slice to VectorSource
type sliceSource struct {
	dim     int
	vectors []Vector
}

func (s sliceSource) Dimension() int { return s.dim }

func (s sliceSource) ForEachVector(_ context.Context, fn func(string, []float32) error) error {
	for _, v := range s.vectors {
		if err := fn(v.ID, v.Values); err != nil {
			return err
		}
	}
	return nil
}

// failingSource yields its vectors and then fails
type failingSource struct {
	sliceSource
	err error
}

func (s failingSource) ForEachVector(ctx context.Context, fn func(string, []float32) error) error {
	if err := s.sliceSource.ForEachVector(ctx, fn); err != nil {
		return err
	}
	return s.err
}
