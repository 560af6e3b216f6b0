// Package hnsw maintains the approximate nearest-neighbor index of a
// collection: a Hierarchical Navigable Small World graph over cosine
// distance, persisted as a single artifact (hnsw_index.bin) beside the
// collection's point store.
//
// # Lifecycle
//
//	UNBUILT --BuildFull--> BUILT --ApplyIncremental--> BUILT
//	BUILT --DropIndex / corruption--> UNBUILT --RebuildFromVectors--> BUILT
//
// The point store is always the source of truth, so an index can be rebuilt
// at any time.
//
// # Tombstones
//
// Slots are append-only. Deleting an id tombstones its slot; updating an id
// tombstones the old slot and appends a new one. Tombstoned slots stay in
// the graph for traversal but are never returned, and they keep counting
// toward Stats.StoredCount until a full rebuild compacts them:
//
//	stats.StoredCount == stats.LiveCount + stats.TombstonedCount
//
// # Determinism
//
// Node levels come from a hash of (id, slot) instead of a random source, and
// every comparison breaks distance ties by slot. Building from the same
// vectors in the same order therefore yields the same graph and the same
// query results.
//
// # Concurrency
//
// Manager holds one RWMutex per collection directory. Builds, incremental
// updates, rebuilds and drops take it exclusively; loads share it. The
// artifact is replaced atomically with a rename, and a loaded Handle is an
// immutable snapshot, so queries never see a partial write.
//
// # Usage
//
//	mgr := hnsw.NewManager(hnsw.DefaultConfig())
//	if _, err := mgr.BuildFull(ctx, dir, 384, vectors); err != nil {
//	    return err
//	}
//
//	h, err := mgr.LoadIndex(dir, 0)
//	if err != nil {
//	    return err
//	}
//	hits, err := mgr.Query(h, queryVec, 10)
package hnsw
