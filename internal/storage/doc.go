// Package storage provides SQLite-based persistence for collection points.
//
// Each collection lives in its own directory under the data directory and
// owns a single database file, points.db. The point store is the source of
// truth: the HNSW index beside it can always be rebuilt from these rows.
//
// # Database Schema
//
// Tables:
//   - collection: name, fixed dimension and timestamps (exactly one row)
//   - points: id, little-endian float32 vector blob, msgpack payload
//   - schema_version: applied migrations, compared as semver
//
// # Basic Usage
//
//	store, err := storage.CreatePointStore(ctx, "/data/docs", "docs", 384)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	res, err := store.Upsert(ctx, []types.Point{
//	    {ID: "a", Vector: vec, Payload: map[string]any{"path": "a.go"}},
//	})
//	fmt.Println(res.Added, res.Updated)
//
// Upsert is all-or-nothing: every point is validated against the collection
// dimension before the transaction starts. Delete reports only the ids that
// actually existed.
//
// # Iteration
//
// ForEachVector streams vectors in ascending id order, which keeps index
// rebuilds deterministic:
//
//	err := store.ForEachVector(ctx, func(id string, v []float32) error {
//	    vectors = append(vectors, hnsw.Vector{ID: id, Values: v})
//	    return nil
//	})
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO Build (cgosqlite tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "cgosqlite" ./...
package storage
