package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// collectionProperty is shared by every tool that targets one collection
func collectionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Collection name (letters, digits, '.', '_' or '-'; at most 128 characters)",
	}
}

func watchModeProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": "If true, update the index immediately instead of at end_indexing",
		"default":     false,
	}
}

// collectionOnlyTool builds a tool whose only argument is the collection
func collectionOnlyTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
			},
			Required: []string{"collection"},
		},
	}
}

// createCollectionTool returns the tool definition for create_collection
func createCollectionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "create_collection",
		Description: "Create an empty vector collection with a fixed dimension",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"dimension": map[string]interface{}{
					"type":        "integer",
					"description": "Length of every vector stored in the collection",
					"minimum":     1,
				},
			},
			Required: []string{"collection", "dimension"},
		},
	}
}

func dropCollectionTool() mcp.Tool {
	return collectionOnlyTool("drop_collection", "Delete a collection with its points and index")
}

func listCollectionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_collections",
		Description: "List the collections in the data directory",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// upsertPointsTool returns the tool definition for upsert_points
func upsertPointsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "upsert_points",
		Description: "Insert or replace points. The batch is rejected as a whole if any vector has the wrong dimension",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"points": map[string]interface{}{
					"type":        "array",
					"description": "Points to write",
					"minItems":    1,
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id": map[string]interface{}{
								"type":        "string",
								"description": "Caller chosen point id, e.g. a file path",
							},
							"vector": map[string]interface{}{
								"type":  "array",
								"items": map[string]interface{}{"type": "number"},
							},
							"payload": map[string]interface{}{
								"type":        "object",
								"description": "Opaque metadata returned with search results",
							},
						},
						"required": []string{"id", "vector"},
					},
				},
				"watch_mode": watchModeProperty(),
			},
			Required: []string{"collection", "points"},
		},
	}
}

func deletePointsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_points",
		Description: "Delete points by id. Unknown ids are ignored",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"ids": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
				"watch_mode": watchModeProperty(),
			},
			Required: []string{"collection", "ids"},
		},
	}
}

func getPointTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_point",
		Description: "Fetch one stored point with its vector and payload",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"id":         map[string]interface{}{"type": "string"},
			},
			Required: []string{"collection", "id"},
		},
	}
}

func beginIndexingTool() mcp.Tool {
	return collectionOnlyTool("begin_indexing", "Open an indexing session; later writes are collected until end_indexing")
}

func endIndexingTool() mcp.Tool {
	return collectionOnlyTool("end_indexing",
		"Close the indexing session and update the HNSW index incrementally or by full rebuild")
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Find the nearest points to a text query or a vector",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection": collectionProperty(),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text embedded with the configured provider",
				},
				"vector": map[string]interface{}{
					"type":        "array",
					"description": "Precomputed query vector; takes precedence over query",
					"items":       map[string]interface{}{"type": "number"},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Drop results whose cosine similarity is below this",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"collection"},
		},
	}
}

func indexStatusTool() mcp.Tool {
	return collectionOnlyTool("index_status", "Report point count, index statistics and session state of a collection")
}

func rebuildIndexTool() mcp.Tool {
	return collectionOnlyTool("rebuild_index", "Rebuild the HNSW index of a collection from its stored points")
}
