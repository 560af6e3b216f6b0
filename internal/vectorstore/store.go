package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/gocontext-vecstore/internal/embedder"
	"github.com/dshills/gocontext-vecstore/internal/hnsw"
	"github.com/dshills/gocontext-vecstore/internal/indexer"
	"github.com/dshills/gocontext-vecstore/internal/searcher"
	"github.com/dshills/gocontext-vecstore/internal/storage"
	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// ErrClosed is returned by every operation after Close
var ErrClosed = errors.New("vector store closed")

const defaultHandleCacheSize = 16

// Config holds the dependencies and tuning of a Store
type Config struct {
	// DataDir holds one subdirectory per collection
	DataDir string

	// HNSW parameters. Its Logger is replaced by Logger.
	HNSW hnsw.Config

	// Embedder turns query text into vectors. Nil restricts the store to
	// SearchVector.
	Embedder embedder.Embedder

	DefaultLimit    int
	MaxLimit        int
	HandleCacheSize int

	Logger zerolog.Logger
}

// Store is a filesystem-backed vector store. Each collection lives in
// <DataDir>/<name>/ with its points database and HNSW artifact.
type Store struct {
	cfg     Config
	log     zerolog.Logger
	mgr     *hnsw.Manager
	tracker *indexer.ChangeTracker
	exec    *searcher.Executor
	handles *lru.Cache[string, cachedHandle]

	mu          sync.Mutex // guards collections and closed
	collections map[string]*collection
	closed      bool
}

// collection is an open collection
type collection struct {
	name  string
	dir   string
	store storage.PointStore

	// gen counts index writes; cached handles from an older generation are stale
	gen atomic.Uint64

	// writeMu serializes index updates of this collection
	writeMu sync.Mutex
}

// New opens a store rooted at cfg.DataDir, creating the directory if needed.
// Existing collections are opened lazily on first use.
func New(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("%w: data dir is required", types.ErrInvalidArgument)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if cfg.HandleCacheSize <= 0 {
		cfg.HandleCacheSize = defaultHandleCacheSize
	}
	cfg.HNSW.Logger = cfg.Logger

	handles, err := lru.New[string, cachedHandle](cfg.HandleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create handle cache: %w", err)
	}

	s := &Store{
		cfg:         cfg,
		log:         cfg.Logger,
		mgr:         hnsw.NewManager(cfg.HNSW),
		tracker:     indexer.NewChangeTracker(cfg.Logger),
		handles:     handles,
		collections: make(map[string]*collection),
	}
	s.exec = searcher.NewExecutor(cfg.Embedder, indexLoader{s}, pointResolver{s}, searcher.Config{
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
		Logger:       cfg.Logger,
	})
	return s, nil
}

// Close closes every open collection. The embedder is left to its owner.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for name, c := range s.collections {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	s.collections = nil
	s.handles.Purge()
	return errors.Join(errs...)
}

func (s *Store) collectionDir(name string) string {
	return filepath.Join(s.cfg.DataDir, name)
}

// collection returns the open collection, opening it from disk if needed
func (s *Store) collection(ctx context.Context, name string) (*collection, error) {
	if err := storage.ValidateCollectionName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	dir := s.collectionDir(name)
	ps, err := storage.OpenPointStore(ctx, dir)
	if err != nil {
		if errors.Is(err, types.ErrCollectionNotFound) {
			return nil, fmt.Errorf("collection %s: %w", name, types.ErrCollectionNotFound)
		}
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}

	c := &collection{name: name, dir: dir, store: ps}
	s.collections[name] = c
	s.log.Debug().Str("collection", name).Int("dimension", ps.Dimension()).Msg("opened collection")
	return c, nil
}

// CreateCollection creates an empty collection of fixed dimension
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int) error {
	if err := storage.ValidateCollectionName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("collection %s: %w", name, types.ErrAlreadyExists)
	}

	dir := s.collectionDir(name)
	ps, err := storage.CreatePointStore(ctx, dir, name, dimension)
	if err != nil {
		return err
	}

	s.collections[name] = &collection{name: name, dir: dir, store: ps}
	s.tracker.Forget(name)
	s.log.Info().Str("collection", name).Int("dimension", dimension).Msg("created collection")
	return nil
}

// DropCollection deletes a collection, its points and its index
func (s *Store) DropCollection(ctx context.Context, name string) error {
	c, err := s.collection(ctx, name)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	s.mu.Lock()
	delete(s.collections, name)
	s.mu.Unlock()

	if err := c.store.Close(); err != nil {
		s.log.Warn().Err(err).Str("collection", name).Msg("failed to close point store")
	}
	if err := s.mgr.DropIndex(c.dir); err != nil {
		return err
	}
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to remove collection %s: %w", name, err)
	}

	s.mgr.Forget(c.dir)
	s.tracker.Forget(name)
	s.handles.Remove(name)
	s.log.Info().Str("collection", name).Msg("dropped collection")
	return nil
}

// ListCollections returns the names of all collections on disk, sorted
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return storage.DiscoverCollections(s.cfg.DataDir)
}

// CollectionStatus describes a collection and its index
type CollectionStatus struct {
	storage.CollectionInfo

	// Index is nil while no usable index exists
	Index          *hnsw.Stats
	SessionActive  bool
	PendingChanges int
}

// CollectionInfo reports the point count, index stats and session state
func (s *Store) CollectionInfo(ctx context.Context, name string) (*CollectionStatus, error) {
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}

	info, err := c.store.Info(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.mgr.GetIndexStats(c.dir)
	if err != nil {
		return nil, err
	}

	return &CollectionStatus{
		CollectionInfo: *info,
		Index:          stats,
		SessionActive:  s.tracker.Active(name),
		PendingChanges: s.tracker.PendingSize(name),
	}, nil
}
