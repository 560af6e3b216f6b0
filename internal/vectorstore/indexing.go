package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/gocontext-vecstore/internal/hnsw"
	"github.com/dshills/gocontext-vecstore/internal/indexer"
	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// IndexingResult reports how an index update was carried out
type IndexingResult struct {
	HNSWUpdate  indexer.HNSWUpdate
	Added       int
	Updated     int
	Deleted     int
	ChangeRatio float64

	// VectorCount counts stored slots, tombstones included
	VectorCount int
	LiveCount   int
	Duration    time.Duration
}

// BeginIndexing opens the indexing session of a collection
func (s *Store) BeginIndexing(ctx context.Context, name string) error {
	if _, err := s.collection(ctx, name); err != nil {
		return err
	}
	return s.tracker.BeginIndexing(name)
}

// EndIndexing closes the session and brings the index up to date with the
// changes recorded in it. The session is closed even when the update fails.
func (s *Store) EndIndexing(ctx context.Context, name string) (*IndexingResult, error) {
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	cs, err := s.tracker.EndIndexing(name)
	if err != nil {
		return nil, err
	}
	return s.applyChanges(ctx, c, cs)
}

// applyChanges picks incremental or full rebuild for cs and runs it.
// Session and watch-mode updates both go through here.
func (s *Store) applyChanges(ctx context.Context, c *collection, cs *indexer.ChangeSet) (*IndexingResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	start := time.Now()
	res := &IndexingResult{
		Added:   len(cs.Added()),
		Updated: len(cs.Updated()),
		Deleted: len(cs.Deleted()),
	}

	before, err := s.mgr.GetIndexStats(c.dir)
	if err != nil {
		return nil, err
	}
	current := 0
	if before != nil {
		current = before.LiveCount
		res.VectorCount, res.LiveCount = before.StoredCount, before.LiveCount
	}

	changed := cs.Size()
	res.ChangeRatio = indexer.ChangeRatio(changed, current)
	res.HNSWUpdate = indexer.Decide(changed, current, before != nil)

	s.log.Debug().
		Str("collection", c.name).
		Int("changed", changed).
		Int("current", current).
		Float64("ratio", res.ChangeRatio).
		Str("decision", string(res.HNSWUpdate)).
		Msg("index update policy")

	switch res.HNSWUpdate {
	case indexer.HNSWSkipped:
		res.Duration = time.Since(start)
		return res, nil

	case indexer.HNSWIncremental:
		stats, err := s.applyIncremental(ctx, c, cs)
		switch {
		case err == nil:
			res.VectorCount, res.LiveCount = stats.StoredCount, stats.LiveCount
		case errors.Is(err, types.ErrIndexNotFound):
			s.log.Warn().Err(err).Str("collection", c.name).Msg("index unusable, rebuilding from points")
			res.HNSWUpdate = indexer.HNSWFullRebuild
			if err := s.rebuildLocked(ctx, c, res); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}

	case indexer.HNSWFullRebuild:
		if err := s.rebuildLocked(ctx, c, res); err != nil {
			return nil, err
		}
	}

	c.gen.Add(1)
	res.Duration = time.Since(start)
	return res, nil
}

func (s *Store) applyIncremental(ctx context.Context, c *collection, cs *indexer.ChangeSet) (*hnsw.Stats, error) {
	ids := cs.Upserted()
	points, err := c.store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read changed points: %w", err)
	}

	upserts := make([]hnsw.Vector, 0, len(ids))
	for _, id := range ids {
		if p, ok := points[id]; ok {
			upserts = append(upserts, hnsw.Vector{ID: id, Values: p.Vector})
		}
	}
	return s.mgr.ApplyIncremental(ctx, c.dir, upserts, cs.Deleted())
}

// rebuildLocked rebuilds the index from the point store. Changes pending
// before the store is read are folded into the rebuild. Changes recorded
// while it runs stay pending, and a failed rebuild puts the taken ones
// back. Caller holds c.writeMu.
func (s *Store) rebuildLocked(ctx context.Context, c *collection, res *IndexingResult) error {
	folded := s.tracker.TakePending(c.name)
	n, err := s.mgr.RebuildFromVectors(ctx, c.dir, c.store)
	if err != nil {
		s.tracker.RestorePending(c.name, folded)
		return fmt.Errorf("rebuild %s: %w", c.name, err)
	}
	res.VectorCount, res.LiveCount = n, n
	return nil
}

// RebuildIndex forces a full rebuild from the point store
func (s *Store) RebuildIndex(ctx context.Context, name string) (*IndexingResult, error) {
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	start := time.Now()
	res := &IndexingResult{HNSWUpdate: indexer.HNSWFullRebuild}
	if err := s.rebuildLocked(ctx, c, res); err != nil {
		return nil, err
	}
	c.gen.Add(1)
	res.Duration = time.Since(start)
	return res, nil
}

// DropIndex deletes the index artifact of a collection. Points are kept
// and the next update rebuilds the index in full.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	c, err := s.collection(ctx, name)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := s.mgr.DropIndex(c.dir); err != nil {
		return err
	}
	c.gen.Add(1)
	return nil
}

// IndexStats returns the stats of the persisted index, or nil when the
// collection has no usable index.
func (s *Store) IndexStats(ctx context.Context, name string) (*hnsw.Stats, error) {
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.mgr.GetIndexStats(c.dir)
}

// LoadIndex loads a private snapshot of the index. maxElements follows
// hnsw.Manager.LoadIndex.
func (s *Store) LoadIndex(ctx context.Context, name string, maxElements int) (*hnsw.Handle, error) {
	c, err := s.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	h, err := s.mgr.LoadIndex(c.dir, maxElements)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	return h, nil
}
