package hnsw

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// IndexFileName is the artifact name inside a collection directory
const IndexFileName = "hnsw_index.bin"

// ctxCheckInterval is how many inserts run between context checks
const ctxCheckInterval = 256

// Stats describes a persisted index
type Stats struct {
	Dimension       int
	StoredCount     int // live + tombstoned slots
	LiveCount       int
	TombstonedCount int
	Capacity        int
	MaxLevel        int
	M               int
	EfConstruction  int
	EfSearch        int
	FileSize        int64
}

// VectorSource streams the vectors an index is rebuilt from
type VectorSource interface {
	Dimension() int
	ForEachVector(ctx context.Context, fn func(id string, vector []float32) error) error
}

// Manager owns the on-disk index of every collection directory.
// Writers of one collection exclude its readers; collections are independent.
type Manager struct {
	cfg   Config
	log   zerolog.Logger
	locks sync.Map // collection path -> *sync.RWMutex
}

// NewManager creates a manager with the given configuration
func NewManager(cfg Config) *Manager {
	cfg.setDefaults()
	return &Manager{cfg: cfg, log: cfg.Logger}
}

// IndexPath returns the artifact path for a collection directory
func IndexPath(collectionPath string) string {
	return filepath.Join(collectionPath, IndexFileName)
}

func (m *Manager) lockFor(collectionPath string) *sync.RWMutex {
	key := filepath.Clean(collectionPath)
	if mu, ok := m.locks.Load(key); ok {
		return mu.(*sync.RWMutex)
	}
	mu, _ := m.locks.LoadOrStore(key, &sync.RWMutex{})
	return mu.(*sync.RWMutex)
}

func (m *Manager) params() params {
	return params{M: m.cfg.M, EfConstruction: m.cfg.EfConstruction, EfSearch: m.cfg.EfSearch}
}

// checkCollection fails with ErrCollectionNotFound when the directory is missing
func checkCollection(collectionPath string) error {
	info, err := os.Stat(collectionPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", collectionPath, types.ErrCollectionNotFound)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %w", collectionPath, types.ErrCollectionNotFound)
	}
	return nil
}

// IndexExists reports whether the collection has an index artifact
func (m *Manager) IndexExists(collectionPath string) bool {
	_, err := os.Stat(IndexPath(collectionPath))
	return err == nil
}

// GetIndexStats returns stats for the persisted index, or nil when the
// artifact is missing or unreadable.
func (m *Manager) GetIndexStats(collectionPath string) (*Stats, error) {
	if err := checkCollection(collectionPath); err != nil {
		return nil, err
	}

	mu := m.lockFor(collectionPath)
	mu.RLock()
	defer mu.RUnlock()

	g, size, err := readArtifact(IndexPath(collectionPath))
	if err != nil {
		if errors.Is(err, ErrCorruptIndex) {
			m.log.Warn().Err(err).Str("path", collectionPath).Msg("index artifact is corrupt")
			return nil, nil
		}
		if errors.Is(err, types.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return statsOf(g, size), nil
}

// BuildFull constructs a fresh graph from vectors, in the given order, and
// replaces any existing artifact.
func (m *Manager) BuildFull(ctx context.Context, collectionPath string, dimension int, vectors []Vector) (*Stats, error) {
	if err := checkCollection(collectionPath); err != nil {
		return nil, err
	}

	mu := m.lockFor(collectionPath)
	mu.Lock()
	defer mu.Unlock()

	return m.buildLocked(ctx, collectionPath, dimension, vectors)
}

func (m *Manager) buildLocked(ctx context.Context, collectionPath string, dimension int, vectors []Vector) (*Stats, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidArgument, dimension)
	}
	for _, v := range vectors {
		if len(v.Values) != dimension {
			return nil, &types.DimensionMismatchError{Expected: dimension, Actual: len(v.Values), PointID: v.ID}
		}
	}

	start := time.Now()
	g := newGraph(dimension, m.params(), max(m.cfg.InitialCapacity, 2*len(vectors)))
	for i, v := range vectors {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if _, err := g.insert(v.ID, v.Values); err != nil {
			return nil, err
		}
	}

	size, err := m.persist(collectionPath, g)
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Str("path", collectionPath).
		Int("vectors", len(vectors)).
		Int("capacity", g.capacity).
		Dur("duration", time.Since(start)).
		Msg("built HNSW index")

	return statsOf(g, size), nil
}

// ApplyIncremental tombstones deletes and inserts upserts into the existing
// graph. An upsert of an indexed id replaces it. Fails with ErrIndexNotFound
// (possibly wrapping ErrCorruptIndex) when there is no usable artifact.
func (m *Manager) ApplyIncremental(ctx context.Context, collectionPath string, upserts []Vector, deletes []string) (*Stats, error) {
	if err := checkCollection(collectionPath); err != nil {
		return nil, err
	}

	mu := m.lockFor(collectionPath)
	mu.Lock()
	defer mu.Unlock()

	g, _, err := readArtifact(IndexPath(collectionPath))
	if err != nil {
		return nil, err
	}

	for _, v := range upserts {
		if len(v.Values) != g.dim {
			return nil, &types.DimensionMismatchError{Expected: g.dim, Actual: len(v.Values), PointID: v.ID}
		}
	}

	start := time.Now()
	removed := 0
	for _, id := range deletes {
		if g.remove(id) {
			removed++
		}
	}

	prevCap := g.capacity
	for i, v := range upserts {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if _, err := g.insert(v.ID, v.Values); err != nil {
			return nil, err
		}
	}
	if g.capacity != prevCap {
		m.log.Info().
			Str("path", collectionPath).
			Int("from", prevCap).
			Int("to", g.capacity).
			Msg("grew HNSW index capacity")
	}

	size, err := m.persist(collectionPath, g)
	if err != nil {
		return nil, err
	}

	m.log.Debug().
		Str("path", collectionPath).
		Int("upserts", len(upserts)).
		Int("tombstoned", removed).
		Int("stored", g.storedCount()).
		Int("live", g.liveCount()).
		Dur("duration", time.Since(start)).
		Msg("applied incremental index update")

	return statsOf(g, size), nil
}

// RebuildFromVectors replaces the artifact with one built from src, which is
// iterated in its own order. The previous artifact stays in place until the
// new one is written. Returns the number of vectors indexed.
func (m *Manager) RebuildFromVectors(ctx context.Context, collectionPath string, src VectorSource) (int, error) {
	if err := checkCollection(collectionPath); err != nil {
		return 0, err
	}

	mu := m.lockFor(collectionPath)
	mu.Lock()
	defer mu.Unlock()

	var vectors []Vector
	err := src.ForEachVector(ctx, func(id string, values []float32) error {
		vectors = append(vectors, Vector{ID: id, Values: values})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read vectors: %w", err)
	}

	stats, err := m.buildLocked(ctx, collectionPath, src.Dimension(), vectors)
	if err != nil {
		return 0, err
	}
	return stats.LiveCount, nil
}

// LoadIndex reads the artifact into an immutable handle. maxElements of 0
// keeps the stored capacity; any other value must be at least the stored
// slot count and raises the handle's capacity when larger.
func (m *Manager) LoadIndex(collectionPath string, maxElements int) (*Handle, error) {
	if err := checkCollection(collectionPath); err != nil {
		return nil, err
	}

	mu := m.lockFor(collectionPath)
	mu.RLock()
	g, size, err := readArtifact(IndexPath(collectionPath))
	mu.RUnlock()
	if err != nil {
		if errors.Is(err, ErrCorruptIndex) {
			m.log.Warn().Err(err).Str("path", collectionPath).Msg("index artifact is corrupt")
		}
		return nil, err
	}

	if maxElements != 0 {
		if maxElements < g.storedCount() {
			return nil, &types.CapacityError{Requested: maxElements, Stored: g.storedCount()}
		}
		g.capacity = max(g.capacity, maxElements)
	}

	return &Handle{path: collectionPath, g: g, size: size}, nil
}

// Query returns up to k nearest live neighbors of vector from h
func (m *Manager) Query(h *Handle, vector []float32, k int) ([]Neighbor, error) {
	return h.Search(vector, k)
}

// DropIndex deletes the artifact. A missing artifact is not an error.
func (m *Manager) DropIndex(collectionPath string) error {
	mu := m.lockFor(collectionPath)
	mu.Lock()
	defer mu.Unlock()

	return removeArtifact(collectionPath)
}

// Forget releases the lock entry of a dropped collection
func (m *Manager) Forget(collectionPath string) {
	m.locks.Delete(filepath.Clean(collectionPath))
}

func (m *Manager) persist(collectionPath string, g *graph) (int64, error) {
	data, err := encodeGraph(g)
	if err != nil {
		return 0, err
	}
	if err := writeArtifact(IndexPath(collectionPath), data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func removeArtifact(collectionPath string) error {
	if err := os.Remove(IndexPath(collectionPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove index: %w", err)
	}
	return nil
}

func statsOf(g *graph, size int64) *Stats {
	return &Stats{
		Dimension:       g.dim,
		StoredCount:     g.storedCount(),
		LiveCount:       g.liveCount(),
		TombstonedCount: g.tombstonedCount(),
		Capacity:        g.capacity,
		MaxLevel:        g.maxLevel,
		M:               g.p.M,
		EfConstruction:  g.p.EfConstruction,
		EfSearch:        g.p.EfSearch,
		FileSize:        size,
	}
}
