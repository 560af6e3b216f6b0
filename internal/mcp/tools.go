package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gocontext-vecstore/internal/hnsw"
	"github.com/dshills/gocontext-vecstore/internal/searcher"
	"github.com/dshills/gocontext-vecstore/internal/vectorstore"
	"github.com/dshills/gocontext-vecstore/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeCollectionNotFound = -32001 // Collection does not exist
	ErrorCodeSessionConflict    = -32002 // Session already open, or none open
	ErrorCodeNotIndexed         = -32003 // Collection has no usable HNSW index
	ErrorCodeEmptyQuery         = -32004 // Neither query nor vector given
	ErrorCodeAlreadyExists      = -32005 // Collection already exists
	ErrorCodeEmbeddingFailed    = -32006 // Embedding provider failed
	ErrorCodePointNotFound      = -32007 // Point does not exist
)

// handleCreateCollection handles the create_collection tool invocation
func (s *Server) handleCreateCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}

	dimension := getIntDefault(args, "dimension", 0)
	if dimension < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "dimension must be a positive integer", map[string]interface{}{
			"param": "dimension",
			"value": args["dimension"],
		})
	}

	if err := s.store.CreateCollection(ctx, name, dimension); err != nil {
		return nil, toMCPError("failed to create collection", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"created":    true,
		"collection": name,
		"dimension":  dimension,
	})), nil
}

func (s *Server) handleDropCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}
	if err := s.store.DropCollection(ctx, name); err != nil {
		return nil, toMCPError("failed to drop collection", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"dropped":    true,
		"collection": name,
	})), nil
}

func (s *Server) handleListCollections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, toMCPError("failed to list collections", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collections": names,
	})), nil
}

// handleUpsertPoints handles the upsert_points tool invocation
func (s *Server) handleUpsertPoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}

	points, err := parsePoints(args["points"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid points", map[string]interface{}{
			"param":  "points",
			"reason": err.Error(),
		})
	}

	var opts []vectorstore.WriteOption
	if getBoolDefault(args, "watch_mode", false) {
		opts = append(opts, vectorstore.WithWatchMode())
	}

	res, err := s.store.UpsertPoints(ctx, name, points, opts...)
	if err != nil {
		return nil, toMCPError("upsert failed", err)
	}

	response := map[string]interface{}{
		"collection": name,
		"added":      len(res.Added),
		"updated":    len(res.Updated),
	}
	if res.Index != nil {
		response["index"] = indexingResponse(res.Index)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleDeletePoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}

	ids, err := parseStrings(args["ids"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid ids", map[string]interface{}{
			"param":  "ids",
			"reason": err.Error(),
		})
	}

	var opts []vectorstore.WriteOption
	if getBoolDefault(args, "watch_mode", false) {
		opts = append(opts, vectorstore.WithWatchMode())
	}

	res, err := s.store.DeletePoints(ctx, name, ids, opts...)
	if err != nil {
		return nil, toMCPError("delete failed", err)
	}

	response := map[string]interface{}{
		"collection": name,
		"deleted":    len(res.Deleted),
	}
	if res.Index != nil {
		response["index"] = indexingResponse(res.Index)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleGetPoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}
	id := getStringDefault(args, "id", "")
	if id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	p, err := s.store.GetPoint(ctx, name, id)
	if err != nil {
		return nil, toMCPError("failed to get point", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"id":      p.ID,
		"vector":  p.Vector,
		"payload": p.Payload,
	})), nil
}

func (s *Server) handleBeginIndexing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}
	if err := s.store.BeginIndexing(ctx, name); err != nil {
		return nil, toMCPError("failed to begin indexing", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collection":     name,
		"session_active": true,
	})), nil
}

// handleEndIndexing closes the session and reports the update the policy chose
func (s *Server) handleEndIndexing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}
	res, err := s.store.EndIndexing(ctx, name)
	if err != nil {
		return nil, toMCPError("indexing failed", err)
	}
	response := indexingResponse(res)
	response["collection"] = name
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	opts := vectorstore.SearchOptions{Limit: limit}
	if v, ok := getFloat(args, "min_score"); ok {
		opts.MinScore = &v
	}

	var resp *searcher.SearchResponse
	if raw, ok := args["vector"]; ok && raw != nil {
		vector, err := parseVector(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid vector", map[string]interface{}{
				"param":  "vector",
				"reason": err.Error(),
			})
		}
		resp, err = s.store.SearchVector(ctx, name, vector, opts)
		if err != nil {
			return nil, toMCPError("search failed", err)
		}
	} else {
		query := getStringDefault(args, "query", "")
		if query == "" {
			return nil, newMCPError(ErrorCodeEmptyQuery, "query or vector is required", map[string]interface{}{
				"param":  "query",
				"reason": "missing or empty",
			})
		}
		resp, err = s.store.Search(ctx, name, query, opts)
		if err != nil {
			return nil, toMCPError("search failed", err)
		}
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"id":       r.ID,
			"rank":     r.Rank,
			"score":    r.Score,
			"distance": r.Distance,
			"payload":  r.Payload,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"collection": name,
		"results":    results,
		"timing": map[string]interface{}{
			"embedding_ms":  resp.Timing.EmbeddingMs(),
			"index_load_ms": resp.Timing.IndexLoadMs(),
			"parallel_ms":   resp.Timing.ParallelMs(),
			"query_ms":      resp.Timing.QueryMs(),
			"total_ms":      resp.Timing.TotalMs(),
		},
	})), nil
}

// handleIndexStatus reports a collection whether or not its index exists
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}

	status, err := s.store.CollectionInfo(ctx, name)
	if err != nil {
		return nil, toMCPError("failed to get status", err)
	}

	response := map[string]interface{}{
		"collection":      status.Name,
		"dimension":       status.Dimension,
		"point_count":     status.PointCount,
		"created_at":      status.CreatedAt.Format(time.RFC3339),
		"updated_at":      status.UpdatedAt.Format(time.RFC3339),
		"session_active":  status.SessionActive,
		"pending_changes": status.PendingChanges,
		"indexed":         status.Index != nil,
	}
	if status.Index != nil {
		response["index"] = statsResponse(status.Index)
	} else {
		response["message"] = "No HNSW index. Use end_indexing or rebuild_index to build one."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, name, err := collectionArgs(request)
	if err != nil {
		return nil, err
	}
	res, err := s.store.RebuildIndex(ctx, name)
	if err != nil {
		return nil, toMCPError("rebuild failed", err)
	}
	response := indexingResponse(res)
	response["collection"] = name
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func indexingResponse(res *vectorstore.IndexingResult) map[string]interface{} {
	return map[string]interface{}{
		"hnsw_update":  string(res.HNSWUpdate),
		"added":        res.Added,
		"updated":      res.Updated,
		"deleted":      res.Deleted,
		"change_ratio": res.ChangeRatio,
		"vector_count": res.VectorCount,
		"live_count":   res.LiveCount,
		"duration_ms":  res.Duration.Milliseconds(),
	}
}

func statsResponse(st *hnsw.Stats) map[string]interface{} {
	return map[string]interface{}{
		"dimension":        st.Dimension,
		"stored_count":     st.StoredCount,
		"live_count":       st.LiveCount,
		"tombstoned_count": st.TombstonedCount,
		"capacity":         st.Capacity,
		"max_level":        st.MaxLevel,
		"m":                st.M,
		"ef_construction":  st.EfConstruction,
		"ef_search":        st.EfSearch,
		"file_size_mb":     fmt.Sprintf("%.2f", float64(st.FileSize)/(1024*1024)),
	}
}

// collectionArgs extracts the argument map and the required collection name
func collectionArgs(request mcp.CallToolRequest) (map[string]interface{}, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		if request.Params.Arguments != nil {
			return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
		}
		args = map[string]interface{}{}
	}

	name, ok := args["collection"].(string)
	if !ok || name == "" {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "collection parameter is required", map[string]interface{}{
			"param":  "collection",
			"reason": "missing or empty",
		})
	}
	return args, name, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// toMCPError classifies a store error into an MCP error code
func toMCPError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrCollectionNotFound):
		code = ErrorCodeCollectionNotFound
	case errors.Is(err, types.ErrAlreadyExists):
		code = ErrorCodeAlreadyExists
	case errors.Is(err, types.ErrSessionAlreadyOpen), errors.Is(err, types.ErrNoActiveSession):
		code = ErrorCodeSessionConflict
	case errors.Is(err, types.ErrIndexNotFound):
		code = ErrorCodeNotIndexed
	case errors.Is(err, types.ErrEmbeddingProvider):
		code = ErrorCodeEmbeddingFailed
	case errors.Is(err, types.ErrPointNotFound):
		code = ErrorCodePointNotFound
	case errors.Is(err, types.ErrInvalidArgument):
		code = ErrorCodeInvalidParams
	}

	data := map[string]interface{}{"error": err.Error()}
	var dim *types.DimensionMismatchError
	if errors.As(err, &dim) {
		data["expected"] = dim.Expected
		data["actual"] = dim.Actual
		data["point_id"] = dim.PointID
	}
	return newMCPError(code, message, data)
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// parsePoints decodes the points argument as it arrives from JSON
func parsePoints(raw interface{}) ([]types.Point, error) {
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return nil, errors.New("points must be a non-empty array")
	}

	points := make([]types.Point, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("points[%d] is not an object", i)
		}
		id, _ := obj["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("points[%d].id is required", i)
		}
		vector, err := parseVector(obj["vector"])
		if err != nil {
			return nil, fmt.Errorf("points[%d].vector: %w", i, err)
		}
		p := types.Point{ID: id, Vector: vector}
		if payload, ok := obj["payload"].(map[string]interface{}); ok {
			p.Payload = payload
		}
		points = append(points, p)
	}
	return points, nil
}

// parseVector accepts a JSON number array or a Go float slice
func parseVector(raw interface{}) ([]float32, error) {
	switch v := raw.(type) {
	case []float32:
		return v, nil
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out, nil
	case []interface{}:
		out := make([]float32, len(v))
		for i, e := range v {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("element %d is not a number", i)
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, errors.New("must be an array of numbers")
	}
}

func parseStrings(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, errors.New("must be an array of strings")
	}
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getFloat(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
