package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexContentTool returns the tool definition for index_content
func indexContentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_content",
		Description: "Store content units and their embeddings so they can be searched",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"items": map[string]interface{}{
					"type":        "array",
					"description": "Content units to index; units whose text is already stored are skipped",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"key": map[string]interface{}{
								"type":        "string",
								"description": "Caller-chosen key that later items can reference as parent_key",
							},
							"parent_key": map[string]interface{}{
								"type":        "string",
								"description": "Key of a parent item earlier in the same call",
							},
							"parent_id": map[string]interface{}{
								"type":        "integer",
								"description": "ID of an already stored parent node",
							},
							"thread_root_id": map[string]interface{}{
								"type":        "integer",
								"description": "ID of the thread root node",
							},
							"title": map[string]interface{}{
								"type": "string",
							},
							"text": map[string]interface{}{
								"type":        "string",
								"description": "Body text (required)",
							},
							"source_type": map[string]interface{}{
								"type":        "string",
								"description": "Origin of the content, e.g. doc, forum, email",
							},
							"hierarchy_level": map[string]interface{}{
								"type":    "integer",
								"minimum": 0,
								"default": 0,
							},
							"quality_score": map[string]interface{}{
								"type":    "number",
								"minimum": 0.0,
								"maximum": 1.0,
							},
						},
						"required": []string{"text"},
					},
				},
				"batch_size": map[string]interface{}{
					"type":        "integer",
					"description": "Items per embedding call and per transaction",
					"default":     20,
					"minimum":     1,
				},
			},
			Required: []string{"items"},
		},
	}
}

// hybridSearchTool returns the tool definition for hybrid_search
func hybridSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "hybrid_search",
		Description: "Search indexed content with fused embedding and keyword retrieval, optional anchor refinement, reranking and a quality gate",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query; embedded for the dense branch when no vector is given",
				},
				"vector": map[string]interface{}{
					"type":        "array",
					"description": "Explicit query embedding",
					"items":       map[string]interface{}{"type": "number"},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "hybrid (dense + sparse), dense (embedding only) or sparse (keyword only)",
					"enum":        []string{"hybrid", "dense", "sparse"},
					"default":     "hybrid",
				},
				"dense_threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity for dense candidates",
				},
				"dense_weight": map[string]interface{}{
					"type":    "number",
					"default": 0.7,
				},
				"sparse_weight": map[string]interface{}{
					"type":    "number",
					"default": 0.3,
				},
				"rrf_k": map[string]interface{}{
					"type":    "integer",
					"default": 60,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters applied to both candidate queries",
					"properties": map[string]interface{}{
						"source_type":     map[string]interface{}{"type": "string"},
						"hierarchy_level": map[string]interface{}{"type": "integer"},
						"thread_root_id":  map[string]interface{}{"type": "integer"},
						"search_title": map[string]interface{}{
							"type":        "boolean",
							"description": "Match keywords against titles as well as bodies",
						},
					},
				},
				"reranker": map[string]interface{}{
					"type":    "string",
					"enum":    []string{"identity", "score", "diversity"},
					"default": "identity",
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Drop results whose score is below this value",
				},
				"quality": map[string]interface{}{
					"type":        "object",
					"description": "Quality gate settings",
					"properties": map[string]interface{}{
						"min_word_count":        map[string]interface{}{"type": "integer", "default": 30},
						"min_quality_score":     map[string]interface{}{"type": "number"},
						"expand_context":        map[string]interface{}{"type": "boolean", "default": false},
						"max_context_expansion": map[string]interface{}{"type": "integer", "default": 1},
						"include_rejected":      map[string]interface{}{"type": "boolean", "default": false},
					},
				},
				"refine": map[string]interface{}{
					"type":        "object",
					"description": "Anchor refinement settings, used when session_id is set",
					"properties": map[string]interface{}{
						"threshold": map[string]interface{}{
							"type":        "number",
							"description": "Similarity at or above which a negative anchor matches",
							"default":     0.85,
						},
						"mode": map[string]interface{}{
							"type":    "string",
							"enum":    []string{"exclude", "require_dissimilar"},
							"default": "exclude",
						},
						"on_missing": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"keep", "drop"},
							"description": "What to do with results that have no embedding",
							"default":     "keep",
						},
						"min_results": map[string]interface{}{
							"type":        "integer",
							"description": "Restore the best removed results until this many remain",
							"default":     0,
						},
						"positive_weight": map[string]interface{}{"type": "number", "default": 0.3},
						"negative_weight": map[string]interface{}{"type": "number", "default": 0.3},
					},
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Apply this session's anchors and make the results available for marking and harvesting",
				},
				"search_near_anchors": map[string]interface{}{
					"type":        "boolean",
					"description": "Use the session's positive anchor centroid as the query vector",
					"default":     false,
				},
				"use_cache": map[string]interface{}{
					"type":    "boolean",
					"default": true,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics and health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// createSessionTool returns the tool definition for create_session
func createSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "create_session",
		Description: "Start a search session that keeps anchors and harvested results between searches",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// markAnchorTool returns the tool definition for mark_anchor
func markAnchorTool() mcp.Tool {
	return mcp.Tool{
		Name:        "mark_anchor",
		Description: "Promote a result from the session's latest search to a positive or negative anchor",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{"type": "string"},
				"node_id":    map[string]interface{}{"type": "integer"},
				"polarity": map[string]interface{}{
					"type": "string",
					"enum": []string{"positive", "negative"},
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Label for the anchor",
				},
			},
			Required: []string{"session_id", "node_id", "polarity"},
		},
	}
}

// removeAnchorTool returns the tool definition for remove_anchor
func removeAnchorTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_anchor",
		Description: "Remove an anchor from a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{"type": "string"},
				"anchor_id":  map[string]interface{}{"type": "string"},
			},
			Required: []string{"session_id", "anchor_id"},
		},
	}
}

// harvestTool returns the tool definition for harvest_results
func harvestTool() mcp.Tool {
	return mcp.Tool{
		Name:        "harvest_results",
		Description: "Keep results from the session's latest search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{"type": "string"},
				"node_ids": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "integer"},
				},
			},
			Required: []string{"session_id", "node_ids"},
		},
	}
}

// getSessionTool returns the tool definition for get_session
func getSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_session",
		Description: "Show a session's anchors and harvested results",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{"type": "string"},
			},
			Required: []string{"session_id"},
		},
	}
}
