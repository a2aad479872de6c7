package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrank/pkg/types"
)

func seedVectors(t *testing.T, s *SQLiteStorage) (ids []int64) {
	t.Helper()
	ctx := context.Background()

	level1 := 1
	fixtures := []struct {
		node   *types.Node
		vector []float32
	}{
		{&types.Node{Text: "exact match", SourceType: "article"}, []float32{1, 0}},
		{&types.Node{Text: "close match", SourceType: "comment", HierarchyLevel: level1}, []float32{0.8, 0.6}},
		{&types.Node{Text: "orthogonal", SourceType: "article"}, []float32{0, 1}},
		{&types.Node{Text: "other dimension", SourceType: "article"}, []float32{1, 0, 0}},
	}

	for _, f := range fixtures {
		require.NoError(t, s.UpsertNode(ctx, f.node))
		require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{NodeID: f.node.ID, Vector: f.vector}))
		ids = append(ids, f.node.ID)
	}
	return ids
}

func hitIDs(hits []types.ScoredNode) []int64 {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.Node.ID
	}
	return ids
}

func TestSearchByEmbedding(t *testing.T) {
	storage := setupTestDB(t)
	ids := seedVectors(t, storage)
	ctx := context.Background()
	query := []float32{1, 0}

	t.Run("ordered by similarity", func(t *testing.T) {
		hits, err := storage.SearchByEmbedding(ctx, query, EmbeddingQuery{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []int64{ids[0], ids[1], ids[2]}, hitIDs(hits), "other-dimension vectors are skipped")
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.InDelta(t, 0.8, hits[1].Score, 1e-6)
		assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
	})

	t.Run("limit", func(t *testing.T) {
		hits, err := storage.SearchByEmbedding(ctx, query, EmbeddingQuery{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []int64{ids[0]}, hitIDs(hits))
	})

	t.Run("threshold", func(t *testing.T) {
		hits, err := storage.SearchByEmbedding(ctx, query, EmbeddingQuery{Limit: 10, Threshold: 0.5})
		require.NoError(t, err)
		assert.Equal(t, []int64{ids[0], ids[1]}, hitIDs(hits))
	})

	t.Run("source type filter", func(t *testing.T) {
		hits, err := storage.SearchByEmbedding(ctx, query, EmbeddingQuery{
			Limit:   10,
			Filters: Filters{SourceType: "comment"},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ids[1]}, hitIDs(hits))
	})

	t.Run("hierarchy filter", func(t *testing.T) {
		level := 0
		hits, err := storage.SearchByEmbedding(ctx, query, EmbeddingQuery{
			Limit:   10,
			Filters: Filters{HierarchyLevel: &level},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ids[0], ids[2]}, hitIDs(hits))
	})

	t.Run("zero limit", func(t *testing.T) {
		hits, err := storage.SearchByEmbedding(ctx, query, EmbeddingQuery{})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("empty vector", func(t *testing.T) {
		_, err := storage.SearchByEmbedding(ctx, nil, EmbeddingQuery{Limit: 10})
		assert.ErrorIs(t, err, ErrInvalidEmbedding)
	})
}

func seedText(t *testing.T, s *SQLiteStorage) map[string]int64 {
	t.Helper()
	root := &types.Node{Title: "Kubernetes", Text: "container orchestration notes", SourceType: "article"}
	require.NoError(t, s.UpsertNode(context.Background(), root))

	nodes := map[string]*types.Node{
		"root":   root,
		"once":   {Text: "the quick brown fox jumps", SourceType: "article"},
		"thrice": {Text: "quick quick quick fox runs", SourceType: "comment", ThreadRootID: int64Ptr(root.ID)},
		"dog":    {Text: "a lazy dog sleeps all day", SourceType: "article"},
		"cat":    {Text: "cats ignore everything around", SourceType: "article"},
		"bird":   {Text: "birds sing early every morning", SourceType: "article"},
	}
	ids := make(map[string]int64, len(nodes))
	for name, n := range nodes {
		if name != "root" {
			require.NoError(t, s.UpsertNode(context.Background(), n))
		}
		ids[name] = n.ID
	}
	return ids
}

func TestSearchByKeyword(t *testing.T) {
	storage := setupTestDB(t)
	ids := seedText(t, storage)
	ctx := context.Background()

	t.Run("ranked by bm25", func(t *testing.T) {
		hits, err := storage.SearchByKeyword(ctx, "quick", KeywordQuery{Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, ids["thrice"], hits[0].Node.ID)
		assert.Equal(t, ids["once"], hits[1].Node.ID)
		for _, h := range hits {
			assert.Greater(t, h.Score, 0.0)
			assert.LessOrEqual(t, h.Score, 1.0)
		}
		assert.Greater(t, hits[0].Score, hits[1].Score)
	})

	t.Run("any word matches", func(t *testing.T) {
		hits, err := storage.SearchByKeyword(ctx, "dog birds", KeywordQuery{Limit: 10})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{ids["dog"], ids["bird"]}, hitIDs(hits))
	})

	t.Run("title only with search title", func(t *testing.T) {
		hits, err := storage.SearchByKeyword(ctx, "kubernetes", KeywordQuery{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = storage.SearchByKeyword(ctx, "kubernetes", KeywordQuery{Limit: 10, SearchTitle: true})
		require.NoError(t, err)
		assert.Equal(t, []int64{ids["root"]}, hitIDs(hits))
	})

	t.Run("filters", func(t *testing.T) {
		hits, err := storage.SearchByKeyword(ctx, "fox", KeywordQuery{
			Limit:   10,
			Filters: Filters{SourceType: "article"},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ids["once"]}, hitIDs(hits))

		hits, err = storage.SearchByKeyword(ctx, "fox", KeywordQuery{
			Limit:   10,
			Filters: Filters{ThreadRootID: int64Ptr(ids["root"])},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ids["thrice"]}, hitIDs(hits))
	})

	t.Run("operators are literal", func(t *testing.T) {
		_, err := storage.SearchByKeyword(ctx, `quick AND NOT "fox* (NEAR`, KeywordQuery{Limit: 10})
		assert.NoError(t, err)
	})

	t.Run("no words", func(t *testing.T) {
		hits, err := storage.SearchByKeyword(ctx, "?!  ...", KeywordQuery{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestBuildFTSQuery(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		searchTitle bool
		want        string
	}{
		{"body only", "hello, world", false, `body : "hello" OR body : "world"`},
		{"all columns", "hello world", true, `"hello" OR "world"`},
		{"quotes stripped", `say "NOT" now`, true, `"say" OR "NOT" OR "now"`},
		{"empty", " -- ", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFTSQuery(tt.text, tt.searchTitle))
		})
	}
}

func TestNormalizeBM25(t *testing.T) {
	assert.InDelta(t, 0.0, normalizeBM25(0), 1e-9)
	assert.InDelta(t, 0.5, normalizeBM25(-1), 1e-9)
	assert.InDelta(t, 0.5, normalizeBM25(1), 1e-9)

	// more negative bm25 is a better match and must score higher
	assert.Greater(t, normalizeBM25(-5), normalizeBM25(-0.5))
	assert.Less(t, normalizeBM25(-1000), 1.0)
}
