// Package mcp exposes a vector store over the Model Context Protocol.
//
// The server registers one tool per store operation:
//   - create_collection, drop_collection, list_collections
//   - upsert_points, delete_points, get_point
//   - begin_indexing, end_indexing, rebuild_index, index_status
//   - search
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol messages only. Logs go to stderr.
//
// # Indexing
//
// Bulk loads bracket their writes with a session:
//
//	{"name": "begin_indexing", "arguments": {"collection": "repo"}}
//	{"name": "upsert_points",  "arguments": {"collection": "repo", "points": [...]}}
//	{"name": "end_indexing",   "arguments": {"collection": "repo"}}
//
// end_indexing reports which update ran:
//
//	{
//	  "collection": "repo",
//	  "hnsw_update": "incremental",
//	  "added": 12,
//	  "updated": 3,
//	  "deleted": 0,
//	  "change_ratio": 0.15,
//	  "vector_count": 115,
//	  "live_count": 112,
//	  "duration_ms": 41
//	}
//
// A file watcher passes "watch_mode": true to upsert_points or delete_points
// instead; the index is updated before the call returns.
//
// # Search
//
//	{
//	  "name": "search",
//	  "arguments": {"collection": "repo", "query": "open the index file", "limit": 5}
//	}
//
// A "vector" argument skips embedding. Results carry id, rank, score
// (cosine similarity), distance and payload, followed by a timing breakdown.
//
// # Errors
//
// Handler errors are *MCPError values:
//
//	-32602  invalid params, including dimension mismatches
//	-32603  internal error
//	-32001  collection not found
//	-32002  indexing session conflict
//	-32003  no HNSW index built yet
//	-32004  neither query nor vector given
//	-32005  collection already exists
//	-32006  embedding provider failure
//	-32007  point not found
package mcp
