package hnsw

// Handle is a loaded, read-only index snapshot. It is safe for concurrent
// queries and never observes later writes to the artifact.
type Handle struct {
	path string
	g    *graph
	size int64
}

// Path returns the collection directory the handle was loaded from
func (h *Handle) Path() string { return h.path }

// Dimension returns the vector dimension of the index
func (h *Handle) Dimension() int { return h.g.dim }

// Stats returns the stats of the snapshot
func (h *Handle) Stats() *Stats { return statsOf(h.g, h.size) }

// Search returns up to k nearest live neighbors ordered by distance, with
// ties going to the earlier insertion. Fails with a DimensionMismatchError
// when the query length differs from the index dimension.
func (h *Handle) Search(vector []float32, k int) ([]Neighbor, error) {
	return h.g.search(vector, k, h.g.p.EfSearch)
}

