package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/hybridrank/internal/anchor"
	"github.com/dshills/hybridrank/internal/filter"
	"github.com/dshills/hybridrank/internal/indexer"
	"github.com/dshills/hybridrank/internal/pipeline"
	"github.com/dshills/hybridrank/internal/quality"
	"github.com/dshills/hybridrank/internal/reranker"
	"github.com/dshills/hybridrank/internal/searcher"
	"github.com/dshills/hybridrank/internal/storage"
	"github.com/dshills/hybridrank/pkg/types"
)

// maxReportedErrors caps the per-item errors echoed back by index_content
const maxReportedErrors = 5

// handleIndexContent handles the index_content tool invocation
func (s *Server) handleIndexContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	rawItems, ok := args["items"].([]interface{})
	if !ok || len(rawItems) == 0 {
		return nil, invalidParam("items", "missing or empty")
	}

	inputs := make([]indexer.NodeInput, len(rawItems))
	for i, raw := range rawItems {
		item, ok := raw.(map[string]interface{})
		if !ok {
			return nil, invalidParam(fmt.Sprintf("items[%d]", i), "must be an object")
		}
		inputs[i] = indexer.NodeInput{
			Key:            getStringDefault(item, "key", ""),
			ParentKey:      getStringDefault(item, "parent_key", ""),
			ParentID:       getInt64Ptr(item, "parent_id"),
			ThreadRootID:   getInt64Ptr(item, "thread_root_id"),
			Title:          getStringDefault(item, "title", ""),
			Text:           getStringDefault(item, "text", ""),
			SourceType:     getStringDefault(item, "source_type", ""),
			HierarchyLevel: getIntDefault(item, "hierarchy_level", 0),
			QualityScore:   getFloat64Ptr(item, "quality_score"),
		}
	}

	indexConfig := &indexer.Config{
		Workers:   s.cfg.IndexWorkers,
		BatchSize: getIntDefault(args, "batch_size", s.cfg.IndexBatchSize),
	}

	s.metrics.StartIndexing()
	stats, err := s.indexer.Index(ctx, inputs, indexConfig)
	s.metrics.FinishIndexing()
	if err != nil {
		return nil, toMCPError("indexing failed", err)
	}
	s.metrics.ObserveIndexed(stats.NodesIndexed, stats.NodesSkipped, stats.NodesFailed)

	// Cached queries may now miss new content
	if stats.NodesIndexed > 0 || stats.EmbeddingsCreated > 0 {
		s.searcher.InvalidateCache()
	}

	response := map[string]interface{}{
		"indexed":            true,
		"nodes_indexed":      stats.NodesIndexed,
		"nodes_skipped":      stats.NodesSkipped,
		"nodes_failed":       stats.NodesFailed,
		"embeddings_created": stats.EmbeddingsCreated,
		"node_ids":           stats.NodeIDs,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleHybridSearch handles the hybrid_search tool invocation
func (s *Server) handleHybridSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, err := s.parsePipelineRequest(args)
	if err != nil {
		return nil, err
	}

	var res *pipeline.Result
	sessionID := getStringDefault(args, "session_id", "")
	if sessionID != "" {
		sess, err := s.sessions.Get(sessionID)
		if err != nil {
			return nil, toMCPError("session lookup failed", err)
		}
		res, err = sess.Find(ctx, req)
		if err != nil {
			return nil, toMCPError("search failed", err)
		}
	} else {
		res, err = s.pipeline.Run(ctx, req)
		if err != nil {
			return nil, toMCPError("search failed", err)
		}
	}

	response := map[string]interface{}{
		"results":  formatResults(res.Results),
		"count":    len(res.Results),
		"rejected": res.Rejected,
		"reranker": res.Reranker,
		"stats": map[string]interface{}{
			"mode":           string(res.Search.Mode),
			"dense_count":    res.Search.DenseCount,
			"sparse_count":   res.Search.SparseCount,
			"fused_count":    res.Search.FusedCount,
			"overlap_count":  res.Search.OverlapCount,
			"cache_hit":      res.Search.CacheHit,
			"dense_time_ms":  res.Search.DenseTime.Milliseconds(),
			"sparse_time_ms": res.Search.SparseTime.Milliseconds(),
			"fusion_time_ms": res.Search.FusionTime.Milliseconds(),
			"total_time_ms":  res.Timings.Total.Milliseconds(),
		},
	}
	if sessionID != "" {
		response["session_id"] = sessionID
	}
	if res.Refinement != nil {
		response["refinement"] = map[string]interface{}{
			"input_count":                 res.Refinement.InputCount,
			"output_count":                res.Refinement.OutputCount,
			"removed_by_negative":         res.Refinement.RemovedByNegative,
			"dropped_missing":             res.Refinement.DroppedMissing,
			"restored_by_floor":           res.Refinement.RestoredByFloor,
			"average_positive_similarity": res.Refinement.AveragePositiveSimilarity,
			"groups":                      res.Groups,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parsePipelineRequest validates hybrid_search arguments, falling back to configured defaults
func (s *Server) parsePipelineRequest(args map[string]interface{}) (pipeline.Request, error) {
	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	vector, err := getVector(args, "vector")
	if err != nil {
		return pipeline.Request{}, invalidParam("vector", err.Error())
	}
	searchNearAnchors := getBoolDefault(args, "search_near_anchors", false)
	if query == "" && len(vector) == 0 && !searchNearAnchors {
		return pipeline.Request{}, newMCPError(ErrorCodeEmptyQuery, "query or vector is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", s.cfg.SearchLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return pipeline.Request{}, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := getStringDefault(args, "mode", string(searcher.ModeHybrid))
	if mode != string(searcher.ModeHybrid) && mode != string(searcher.ModeDense) && mode != string(searcher.ModeSparse) {
		return pipeline.Request{}, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   mode,
			"allowed": []string{"hybrid", "dense", "sparse"},
		})
	}

	kind := reranker.Kind(getStringDefault(args, "reranker", s.cfg.Reranker))
	if _, err := reranker.New(kind, reranker.DefaultConfig()); err != nil {
		return pipeline.Request{}, newMCPError(ErrorCodeInvalidParams, "invalid reranker", map[string]interface{}{
			"param":   "reranker",
			"value":   string(kind),
			"allowed": reranker.Kinds(),
		})
	}

	filters, _ := args["filters"].(map[string]interface{})
	if filters == nil {
		filters = map[string]interface{}{}
	}

	req := pipeline.Request{
		Search: searcher.SearchRequest{
			Vector:         vector,
			Query:          query,
			Limit:          limit,
			DenseThreshold: getFloatDefault(args, "dense_threshold", 0),
			DenseWeight:    getFloatDefault(args, "dense_weight", s.cfg.SearchDenseWeight),
			SparseWeight:   getFloatDefault(args, "sparse_weight", s.cfg.SearchSparseWeight),
			RRFK:           getIntDefault(args, "rrf_k", s.cfg.SearchRRFK),
			SourceType:     getStringDefault(filters, "source_type", ""),
			HierarchyLevel: getIntPtr(filters, "hierarchy_level"),
			ThreadRootID:   getInt64Ptr(filters, "thread_root_id"),
			SearchTitle:    getBoolDefault(filters, "search_title", false),
			DenseOnly:      mode == string(searcher.ModeDense),
			SparseOnly:     mode == string(searcher.ModeSparse),
			UseCache:       getBoolDefault(args, "use_cache", true),
			CacheTTL:       s.cfg.SearchCacheTTL,
		},
		SearchNearAnchors: searchNearAnchors,
		Reranker:          kind,
		Rerank: reranker.Options{
			Limit:    limit,
			MinScore: getFloat64Ptr(args, "min_score"),
		},
		Quality: s.cfg.QualityOptions(),
	}

	if q, ok := args["quality"].(map[string]interface{}); ok {
		minWords := req.Quality.MinWordCount
		if v := getIntPtr(q, "min_word_count"); v != nil {
			minWords = v
		}
		req.Quality = quality.GateOptions{
			Options: quality.Options{
				MinWordCount:    minWords,
				MinQualityScore: getFloat64Ptr(q, "min_quality_score"),
			},
			ExpandContext:       getBoolDefault(q, "expand_context", false),
			MaxContextExpansion: getIntDefault(q, "max_context_expansion", req.Quality.MaxContextExpansion),
			IncludeRejected:     getBoolDefault(q, "include_rejected", false),
		}
	}

	if r, ok := args["refine"].(map[string]interface{}); ok {
		refine, err := parseRefineOptions(r)
		if err != nil {
			return pipeline.Request{}, err
		}
		req.Refine = refine
	}

	return req, nil
}

// parseRefineOptions maps the refine argument onto anchor refinement options
func parseRefineOptions(r map[string]interface{}) (anchor.Options, error) {
	opts := anchor.Options{
		Threshold:      getFloat64Ptr(r, "threshold"),
		Mode:           filter.Mode(getStringDefault(r, "mode", string(filter.ModeExclude))),
		OnMissing:      filter.MissingPolicy(getStringDefault(r, "on_missing", string(filter.MissingKeep))),
		PositiveWeight: getFloatDefault(r, "positive_weight", 0),
		NegativeWeight: getFloatDefault(r, "negative_weight", 0),
		MinResults:     getIntDefault(r, "min_results", 0),
	}

	if opts.Threshold != nil && (*opts.Threshold < -1 || *opts.Threshold > 1) {
		return opts, invalidParam("refine.threshold", "must be between -1 and 1")
	}
	switch opts.Mode {
	case filter.ModeExclude, filter.ModeRequireDissimilar:
	default:
		return opts, newMCPError(ErrorCodeInvalidParams, "invalid refine mode", map[string]interface{}{
			"param":   "refine.mode",
			"value":   string(opts.Mode),
			"allowed": []string{string(filter.ModeExclude), string(filter.ModeRequireDissimilar)},
		})
	}
	switch opts.OnMissing {
	case filter.MissingKeep, filter.MissingDrop:
	default:
		return opts, newMCPError(ErrorCodeInvalidParams, "invalid refine on_missing", map[string]interface{}{
			"param":   "refine.on_missing",
			"value":   string(opts.OnMissing),
			"allowed": []string{string(filter.MissingKeep), string(filter.MissingDrop)},
		})
	}
	if opts.PositiveWeight < 0 || opts.NegativeWeight < 0 {
		return opts, invalidParam("refine", "weights must be >= 0")
	}
	if opts.MinResults < 0 {
		return opts, invalidParam("refine.min_results", "must be >= 0")
	}
	return opts, nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, toMCPError("failed to get status", err)
	}

	response := map[string]interface{}{
		"schema_version": status.SchemaVersion,
		"build_mode":     status.BuildMode,
		"statistics": map[string]interface{}{
			"nodes_count":      status.NodesCount,
			"embeddings_count": status.EmbeddingsCount,
			"source_types":     status.SourceTypes,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
			"cached_queries":   s.searcher.CacheLen(),
			"active_sessions":  len(s.sessions.List()),
		},
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
			"vector_extension":     storage.VectorExtensionAvailable,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// formatResults renders enriched results for the tool response
func formatResults(results []types.EnrichedResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for i, r := range results {
		if r.Node == nil {
			continue
		}
		entry := map[string]interface{}{
			"rank":        i + 1,
			"node_id":     r.Node.ID,
			"title":       r.Node.Title,
			"text":        r.Node.Text,
			"source_type": r.Node.SourceType,
			"word_count":  r.Node.WordCount,
			"fused_score": r.FusedScore,
			"in_both":     r.InBoth,
			"quality": map[string]interface{}{
				"has_min_words":   r.Quality.HasMinWords,
				"has_min_quality": r.Quality.HasMinQuality,
				"is_complete":     r.Quality.IsComplete,
				"passed_gate":     r.Quality.PassedGate,
			},
		}
		if r.HasDense() {
			entry["dense_rank"] = r.DenseRank
			entry["dense_score"] = r.DenseScore
		}
		if r.HasSparse() {
			entry["sparse_rank"] = r.SparseRank
			entry["sparse_score"] = r.SparseScore
		}
		if r.ContextExpanded {
			entry["context_expanded"] = true
			entry["context_text"] = r.ContextText
			entry["parent_id"] = r.ParentNode.ID
		}
		out = append(out, entry)
	}
	return out
}

// Helper functions

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

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getIntPtr returns nil when the parameter is absent
func getIntPtr(args map[string]interface{}, key string) *int {
	if _, ok := args[key]; !ok {
		return nil
	}
	v := getIntDefault(args, key, 0)
	return &v
}

func getInt64Ptr(args map[string]interface{}, key string) *int64 {
	if _, ok := args[key]; !ok {
		return nil
	}
	v := int64(getIntDefault(args, key, 0))
	return &v
}

func getFloat64Ptr(args map[string]interface{}, key string) *float64 {
	if _, ok := args[key]; !ok {
		return nil
	}
	v := getFloatDefault(args, key, 0)
	return &v
}

// getVector extracts an array of numbers
func getVector(args map[string]interface{}, key string) ([]float32, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of numbers")
	}
	vector := make([]float32, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		vector[i] = float32(f)
	}
	return vector, nil
}

// getInt64Slice extracts an array of integers
func getInt64Slice(args map[string]interface{}, key string) ([]int64, error) {
	items, ok := args[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of integers")
	}
	out := make([]int64, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case float64:
			out[i] = int64(v)
		case int:
			out[i] = int64(v)
		default:
			return nil, fmt.Errorf("element %d is not an integer", i)
		}
	}
	return out, nil
}
