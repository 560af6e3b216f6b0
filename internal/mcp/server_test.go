package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gocontext-vecstore/internal/embedder"
	"github.com/dshills/gocontext-vecstore/internal/vectorstore"
)

const testDim = 4

func newTestServer(t *testing.T) *Server {
	t.Helper()

	emb, err := embedder.NewLocalProvider(testDim, nil)
	require.NoError(t, err)

	store, err := vectorstore.New(vectorstore.Config{
		DataDir:  t.TempDir(),
		Embedder: emb,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s, err := NewServer(store, "", zerolog.Nop())
	require.NoError(t, err)
	return s
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// call invokes h and decodes its JSON text result
func call(t *testing.T, h handler, name string, args map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()
	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
	res, err := h(context.Background(), req)
	if err != nil {
		return nil, err
	}
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, nil
}

// errorCode returns the MCP error code carried by err
func errorCode(t *testing.T, err error) int {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	return mcpErr.Code
}

// jsonPoints builds points the way they arrive from a JSON request
func jsonPoints(vectors map[string][]float64) []interface{} {
	out := make([]interface{}, 0, len(vectors))
	for id, v := range vectors {
		vec := make([]interface{}, len(v))
		for i, f := range v {
			vec[i] = f
		}
		out = append(out, map[string]interface{}{
			"id":      id,
			"vector":  vec,
			"payload": map[string]interface{}{"path": id},
		})
	}
	return out
}

func TestServer_Initialization(t *testing.T) {
	t.Run("requires a store", func(t *testing.T) {
		_, err := NewServer(nil, "", zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("lists every tool", func(t *testing.T) {
		s := newTestServer(t)
		msg := s.mcp.HandleMessage(context.Background(), json.RawMessage(
			`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))

		raw, err := json.Marshal(msg)
		require.NoError(t, err)
		for _, name := range []string{
			"create_collection", "drop_collection", "list_collections",
			"upsert_points", "delete_points", "get_point",
			"begin_indexing", "end_indexing", "rebuild_index",
			"index_status", "search",
		} {
			assert.Contains(t, string(raw), `"`+name+`"`)
		}
	})
}

func TestToolWorkflow(t *testing.T) {
	s := newTestServer(t)

	out, err := call(t, s.handleCreateCollection, "create_collection", map[string]interface{}{
		"collection": "docs",
		"dimension":  float64(testDim),
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["created"])

	_, err = call(t, s.handleBeginIndexing, "begin_indexing", map[string]interface{}{"collection": "docs"})
	require.NoError(t, err)

	out, err = call(t, s.handleUpsertPoints, "upsert_points", map[string]interface{}{
		"collection": "docs",
		"points": jsonPoints(map[string][]float64{
			"a.go": {1, 0, 0, 0},
			"b.go": {0, 1, 0, 0},
			"c.go": {0, 0, 1, 0},
		}),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, out["added"])
	assert.NotContains(t, out, "index", "session writes wait for end_indexing")

	out, err = call(t, s.handleIndexStatus, "index_status", map[string]interface{}{"collection": "docs"})
	require.NoError(t, err)
	assert.Equal(t, false, out["indexed"])
	assert.Equal(t, true, out["session_active"])

	out, err = call(t, s.handleEndIndexing, "end_indexing", map[string]interface{}{"collection": "docs"})
	require.NoError(t, err)
	assert.Equal(t, "full_rebuild", out["hnsw_update"])
	assert.EqualValues(t, 3, out["live_count"])

	out, err = call(t, s.handleSearch, "search", map[string]interface{}{
		"collection": "docs",
		"vector":     []interface{}{0.0, 0.9, 0.1, 0.0},
		"limit":      float64(2),
	})
	require.NoError(t, err)
	results := out["results"].([]interface{})
	require.Len(t, results, 2)
	top := results[0].(map[string]interface{})
	assert.Equal(t, "b.go", top["id"])
	assert.EqualValues(t, 1, top["rank"])
	assert.Equal(t, "b.go", top["payload"].(map[string]interface{})["path"])

	out, err = call(t, s.handleDeletePoints, "delete_points", map[string]interface{}{
		"collection": "docs",
		"ids":        []interface{}{"b.go"},
		"watch_mode": true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, out["deleted"])
	index := out["index"].(map[string]interface{})
	assert.Equal(t, "full_rebuild", index["hnsw_update"], "one of three changed is above the threshold")
	assert.EqualValues(t, 2, index["live_count"])

	out, err = call(t, s.handleSearch, "search", map[string]interface{}{
		"collection": "docs",
		"query":      "anything at all",
	})
	require.NoError(t, err)
	assert.Len(t, out["results"], 2)

	out, err = call(t, s.handleGetPoint, "get_point", map[string]interface{}{"collection": "docs", "id": "a.go"})
	require.NoError(t, err)
	assert.Equal(t, "a.go", out["id"])

	out, err = call(t, s.handleRebuildIndex, "rebuild_index", map[string]interface{}{"collection": "docs"})
	require.NoError(t, err)
	assert.Equal(t, "full_rebuild", out["hnsw_update"])

	out, err = call(t, s.handleIndexStatus, "index_status", map[string]interface{}{"collection": "docs"})
	require.NoError(t, err)
	assert.Equal(t, true, out["indexed"])
	stats := out["index"].(map[string]interface{})
	assert.EqualValues(t, 2, stats["live_count"])
	assert.EqualValues(t, 0, stats["tombstoned_count"])

	out, err = call(t, s.handleListCollections, "list_collections", nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"docs"}, out["collections"])

	_, err = call(t, s.handleDropCollection, "drop_collection", map[string]interface{}{"collection": "docs"})
	require.NoError(t, err)
	out, err = call(t, s.handleListCollections, "list_collections", map[string]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, out["collections"])
}

func TestToolErrors(t *testing.T) {
	s := newTestServer(t)
	_, err := call(t, s.handleCreateCollection, "create_collection", map[string]interface{}{
		"collection": "docs",
		"dimension":  float64(testDim),
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		h    handler
		args map[string]interface{}
		code int
	}{
		{"missing collection", s.handleSearch, map[string]interface{}{"query": "x"}, ErrorCodeInvalidParams},
		{"unknown collection", s.handleIndexStatus, map[string]interface{}{"collection": "nope"}, ErrorCodeCollectionNotFound},
		{"invalid collection name", s.handleIndexStatus, map[string]interface{}{"collection": "a/b"}, ErrorCodeInvalidParams},
		{"duplicate collection", s.handleCreateCollection,
			map[string]interface{}{"collection": "docs", "dimension": float64(testDim)}, ErrorCodeAlreadyExists},
		{"zero dimension", s.handleCreateCollection,
			map[string]interface{}{"collection": "other", "dimension": float64(0)}, ErrorCodeInvalidParams},
		{"end without session", s.handleEndIndexing, map[string]interface{}{"collection": "docs"}, ErrorCodeSessionConflict},
		{"search before index", s.handleSearch,
			map[string]interface{}{"collection": "docs", "query": "x"}, ErrorCodeNotIndexed},
		{"empty query", s.handleSearch, map[string]interface{}{"collection": "docs"}, ErrorCodeEmptyQuery},
		{"limit too large", s.handleSearch,
			map[string]interface{}{"collection": "docs", "query": "x", "limit": float64(101)}, ErrorCodeInvalidParams},
		{"bad vector element", s.handleSearch,
			map[string]interface{}{"collection": "docs", "vector": []interface{}{"a"}}, ErrorCodeInvalidParams},
		{"empty points", s.handleUpsertPoints,
			map[string]interface{}{"collection": "docs", "points": []interface{}{}}, ErrorCodeInvalidParams},
		{"wrong dimension", s.handleUpsertPoints, map[string]interface{}{
			"collection": "docs",
			"points":     jsonPoints(map[string][]float64{"a.go": {1, 2}}),
		}, ErrorCodeInvalidParams},
		{"missing point", s.handleGetPoint,
			map[string]interface{}{"collection": "docs", "id": "nope.go"}, ErrorCodePointNotFound},
		{"ids not strings", s.handleDeletePoints,
			map[string]interface{}{"collection": "docs", "ids": []interface{}{1.0}}, ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, tt.h, "tool", tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.code, errorCode(t, err))
		})
	}

	t.Run("double begin", func(t *testing.T) {
		args := map[string]interface{}{"collection": "docs"}
		_, err := call(t, s.handleBeginIndexing, "begin_indexing", args)
		require.NoError(t, err)
		_, err = call(t, s.handleBeginIndexing, "begin_indexing", args)
		assert.Equal(t, ErrorCodeSessionConflict, errorCode(t, err))
	})

	t.Run("dimension detail", func(t *testing.T) {
		_, err := call(t, s.handleUpsertPoints, "upsert_points", map[string]interface{}{
			"collection": "docs",
			"points":     jsonPoints(map[string][]float64{"x.go": {1, 2, 3}}),
		})
		var mcpErr *MCPError
		require.True(t, errors.As(err, &mcpErr))
		data := mcpErr.Data.(map[string]interface{})
		assert.Equal(t, testDim, data["expected"])
		assert.Equal(t, 3, data["actual"])
		assert.Equal(t, "x.go", data["point_id"])
	})
}

func TestParseVector(t *testing.T) {
	v, err := parseVector([]interface{}{1.0, 2.5})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2.5}, v)

	v, err = parseVector([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, v)

	_, err = parseVector("nope")
	assert.Error(t, err)
}
