// Package indexer tracks point mutations between index updates and decides
// how each update is applied.
//
// # Sessions
//
// BeginIndexing and EndIndexing bracket a bulk indexing session. Only one
// session may be open per collection; a second BeginIndexing fails with
// types.ErrSessionAlreadyOpen until the first ends:
//
//	tracker := indexer.NewChangeTracker(logger)
//	if err := tracker.BeginIndexing("docs"); err != nil {
//	    return err
//	}
//	tracker.Record("docs", indexer.ChangeAdded, "a.go", "b.go")
//	cs, err := tracker.EndIndexing("docs")
//
// Mutations recorded while no session is open are kept as pending and folded
// into the next session.
//
// # Recording Rules
//
// The last operation on an id wins. Updating an id that was added earlier in
// the same set keeps it added:
//
//	add, update         -> added
//	update, delete      -> deleted
//	delete, add         -> added
//
// # Update Policy
//
// Decide compares the change set size with the live vector count before the
// changes:
//
//	ratio := changed / max(1, current)
//	empty change set       -> skipped
//	no index, or current 0 -> full_rebuild
//	ratio < 0.30           -> incremental
//	otherwise              -> full_rebuild
package indexer
