// Package vectorstore is the filesystem-backed vector store.
//
// A Store owns one directory per collection. Points live in a SQLite
// database, which is the source of truth; the HNSW artifact next to it can
// always be rebuilt from the points.
//
// Mutations are recorded per collection and applied to the index when an
// indexing session ends:
//
//	_ = store.BeginIndexing(ctx, "code")
//	_, _ = store.UpsertPoints(ctx, "code", points)
//	_, _ = store.DeletePoints(ctx, "code", []string{"old.go"})
//	res, _ := store.EndIndexing(ctx, "code") // res.HNSWUpdate: incremental, full_rebuild or skipped
//
// Fewer than 30% changed points are applied incrementally; anything more,
// or a missing index, triggers a full rebuild. WithWatchMode applies a single
// write immediately through the same path.
//
// Searches embed the query and load the index concurrently. Loaded indexes
// are cached per collection and invalidated by every index write.
package vectorstore
