package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dshills/gocontext-vecstore/internal/hnsw"
	"github.com/dshills/gocontext-vecstore/internal/searcher"
	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// SearchOptions bounds a search
type SearchOptions struct {
	Limit    int      // 0 selects the default
	MinScore *float64 // drop results scoring below this
}

// Search embeds query and returns the nearest points of the collection.
// Embedding and index loading run concurrently.
func (s *Store) Search(ctx context.Context, name, query string, opts SearchOptions) (*searcher.SearchResponse, error) {
	if _, err := s.collection(ctx, name); err != nil {
		return nil, err
	}
	return s.exec.Search(ctx, searcher.SearchRequest{
		Collection: name,
		Query:      query,
		Limit:      opts.Limit,
		MinScore:   opts.MinScore,
	})
}

// SearchVector returns the nearest points to a precomputed vector
func (s *Store) SearchVector(ctx context.Context, name string, vector []float32, opts SearchOptions) (*searcher.SearchResponse, error) {
	if _, err := s.collection(ctx, name); err != nil {
		return nil, err
	}
	return s.exec.Search(ctx, searcher.SearchRequest{
		Collection: name,
		Vector:     vector,
		Limit:      opts.Limit,
		MinScore:   opts.MinScore,
	})
}

// cachedHandle is a loaded snapshot and the artifact state it was read from
type cachedHandle struct {
	gen     uint64
	modTime time.Time
	size    int64
	h       *hnsw.Handle
}

// indexLoader serves the executor from the handle cache
type indexLoader struct{ s *Store }

func (l indexLoader) LoadIndex(ctx context.Context, name string) (searcher.Index, error) {
	return l.s.cachedHandle(ctx, name)
}

// cachedHandle returns a snapshot of the current index. A cached snapshot
// is reused while no write went through the store and the artifact on disk
// is unchanged.
func (s *Store) cachedHandle(ctx context.Context, name string) (*hnsw.Handle, error) {
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}

	gen := c.gen.Load()
	fi, err := os.Stat(hnsw.IndexPath(c.dir))
	if err != nil {
		s.handles.Remove(name)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("collection %s: %w", name, types.ErrIndexNotFound)
		}
		return nil, err
	}

	if ch, ok := s.handles.Get(name); ok &&
		ch.gen == gen && ch.modTime.Equal(fi.ModTime()) && ch.size == fi.Size() {
		return ch.h, nil
	}

	h, err := s.mgr.LoadIndex(c.dir, 0)
	if err != nil {
		s.handles.Remove(name)
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	s.handles.Add(name, cachedHandle{gen: gen, modTime: fi.ModTime(), size: fi.Size(), h: h})
	return h, nil
}

// pointResolver reads search hits back from the point store
type pointResolver struct{ s *Store }

func (r pointResolver) GetMany(ctx context.Context, name string, ids []string) (map[string]types.Point, error) {
	c, err := r.s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.store.GetMany(ctx, ids)
}
