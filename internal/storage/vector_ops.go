package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/dshills/hybridrank/internal/vecmath"
	"github.com/dshills/hybridrank/pkg/types"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, db *sql.DB, queryVector []float32, q EmbeddingQuery) ([]types.ScoredNode, error) {
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, queryVector, q)
	}
	return searchVectorFallback(ctx, db, queryVector, q)
}

// searchVectorOptimized ranks inside SQLite with the sqlite-vec extension
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, q EmbeddingQuery) ([]types.ScoredNode, error) {
	blob := vecmath.Serialize(queryVector)

	// vec_distance_cosine returns a distance, lower is better
	query := `
		SELECT ` + nodeColumns + `,
			1.0 - vec_distance_cosine(e.vector, ?) AS similarity
		FROM nodes n
		INNER JOIN embeddings e ON n.id = e.node_id
		WHERE e.dimension = ?
	`
	args := []interface{}{blob, len(queryVector)}
	query, args = applyFilters(query, args, q.Filters)

	if q.Threshold > 0 {
		query += " AND (1.0 - vec_distance_cosine(e.vector, ?)) >= ?"
		args = append(args, blob, q.Threshold)
	}

	query += " ORDER BY similarity DESC, n.id ASC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ScoredNode, 0, q.Limit)
	for rows.Next() {
		var similarity float64
		node, err := scanNode(rows, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, types.ScoredNode{Node: node, Score: similarity})
	}
	return results, rows.Err()
}

// searchVectorFallback loads candidate vectors and ranks them in Go.
// Used by purego builds, where sqlite-vec is unavailable.
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, q EmbeddingQuery) ([]types.ScoredNode, error) {
	query := `
		SELECT ` + nodeColumns + `, e.vector
		FROM nodes n
		INNER JOIN embeddings e ON n.id = e.node_id
		WHERE e.dimension = ?
	`
	args := []interface{}{len(queryVector)}
	query, args = applyFilters(query, args, q.Filters)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector, q.Threshold)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, nil
}

// computeSimilarityScores scores every row against the query vector
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, threshold float64) ([]types.ScoredNode, error) {
	candidates := make([]types.ScoredNode, 0, 256)

	for rows.Next() {
		var blob []byte
		node, err := scanNode(rows, &blob)
		if err != nil {
			return nil, err
		}

		similarity, err := vecmath.CosineSimilarity(queryVector, vecmath.Deserialize(blob))
		if err != nil {
			continue // corrupt blob; dimension was already filtered in SQL
		}
		if threshold > 0 && similarity < threshold {
			continue
		}

		candidates = append(candidates, types.ScoredNode{Node: node, Score: similarity})
	}

	return candidates, rows.Err()
}

// sortCandidates orders by score descending, lower node ID first on ties
func sortCandidates(candidates []types.ScoredNode) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Node.ID < candidates[j].Node.ID
	})
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, db *sql.DB, text string, q KeywordQuery) ([]types.ScoredNode, error) {
	match := buildFTSQuery(text, q.SearchTitle)
	if match == "" {
		return []types.ScoredNode{}, nil
	}

	query := `
		SELECT ` + nodeColumns + `, bm25(nodes_fts) AS score
		FROM nodes_fts
		INNER JOIN nodes n ON n.id = nodes_fts.rowid
		WHERE nodes_fts MATCH ?
	`
	args := []interface{}{match}
	query, args = applyFilters(query, args, q.Filters)

	query += " ORDER BY score ASC, n.id ASC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ScoredNode, 0, q.Limit)
	for rows.Next() {
		var raw float64
		node, err := scanNode(rows, &raw)
		if err != nil {
			return nil, err
		}
		results = append(results, types.ScoredNode{Node: node, Score: normalizeBM25(raw)})
	}
	return results, rows.Err()
}

// normalizeBM25 maps a raw bm25() value into [0, 1), higher is better.
// FTS5 reports bm25 as a negative number that falls as relevance rises.
func normalizeBM25(raw float64) float64 {
	a := math.Abs(raw)
	return a / (1.0 + a)
}

// applyFilters adds WHERE clause filters shared by both searches
func applyFilters(query string, args []interface{}, filters Filters) (string, []interface{}) {
	if filters.SourceType != "" {
		query += " AND n.source_type = ?"
		args = append(args, filters.SourceType)
	}
	if filters.HierarchyLevel != nil {
		query += " AND n.hierarchy_level = ?"
		args = append(args, *filters.HierarchyLevel)
	}
	if filters.ThreadRootID != nil {
		query += " AND n.thread_root_id = ?"
		args = append(args, *filters.ThreadRootID)
	}
	return query, args
}

// buildFTSQuery turns free text into an FTS5 expression. Every word becomes
// a quoted string joined with OR, so user input can never reach the FTS5
// operator grammar. Without searchTitle only the body column is matched.
func buildFTSQuery(text string, searchTitle bool) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return ""
	}

	prefix := "body : "
	if searchTitle {
		prefix = ""
	}

	terms := make([]string, len(words))
	for i, w := range words {
		terms[i] = prefix + `"` + w + `"`
	}
	return strings.Join(terms, " OR ")
}
