package searcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrank/internal/embedder"
	"github.com/dshills/hybridrank/internal/metrics"
	"github.com/dshills/hybridrank/internal/storage"
	"github.com/dshills/hybridrank/pkg/types"
)

// mockStore implements storage.ContentStore with canned hit lists
type mockStore struct {
	mu sync.Mutex

	dense  []types.ScoredNode
	sparse []types.ScoredNode

	denseErr  error
	sparseErr error

	denseCalls  int
	sparseCalls int
	lastVector  []float32
	lastText    string
	denseQuery  storage.EmbeddingQuery
	sparseQuery storage.KeywordQuery
}

func (m *mockStore) SearchByEmbedding(_ context.Context, vector []float32, q storage.EmbeddingQuery) ([]types.ScoredNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denseCalls++
	m.lastVector = vector
	m.denseQuery = q
	if m.denseErr != nil {
		return nil, m.denseErr
	}
	return m.dense, nil
}

func (m *mockStore) SearchByKeyword(_ context.Context, text string, q storage.KeywordQuery) ([]types.ScoredNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sparseCalls++
	m.lastText = text
	m.sparseQuery = q
	if m.sparseErr != nil {
		return nil, m.sparseErr
	}
	return m.sparse, nil
}

func (m *mockStore) GetNode(context.Context, int64) (*types.Node, error) {
	return nil, storage.ErrNotFound
}

func (m *mockStore) GetNodeByHash(context.Context, [32]byte) (*types.Node, error) {
	return nil, storage.ErrNotFound
}

func (m *mockStore) GetParent(context.Context, int64) (*types.Node, error) {
	return nil, storage.ErrNotFound
}

func (m *mockStore) GetEmbeddings(context.Context, []int64) (map[int64][]float32, error) {
	return map[int64][]float32{}, nil
}

// mockEmbedder returns a fixed vector and records the texts it saw
type mockEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (*embedder.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	if m.err != nil {
		return nil, m.err
	}
	return &embedder.Embedding{Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*embedder.Embedding, error) {
	out := make([]*embedder.Embedding, len(texts))
	for i, text := range texts {
		emb, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

func node(id int64) *types.Node {
	return &types.Node{ID: id, Text: "node text", WordCount: 2, SourceType: "doc"}
}

func hits(scores map[int64]float64, order ...int64) []types.ScoredNode {
	out := make([]types.ScoredNode, len(order))
	for i, id := range order {
		out[i] = types.ScoredNode{Node: node(id), Score: scores[id]}
	}
	return out
}

// fixtureStore returns dense=[1,2] and sparse=[2,3]
func fixtureStore() *mockStore {
	return &mockStore{
		dense:  hits(map[int64]float64{1: 0.9, 2: 0.8}, 1, 2),
		sparse: hits(map[int64]float64{2: 0.7, 3: 0.6}, 2, 3),
	}
}

func newTestSearcher(t *testing.T, store storage.ContentStore, emb embedder.Embedder) *Searcher {
	t.Helper()
	s, err := NewSearcher(store, emb, zerolog.Nop(), Options{})
	require.NoError(t, err)
	return s
}

func ids(results []types.FusedResult) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.Node.ID
	}
	return out
}

func TestNewSearcher_RequiresStore(t *testing.T) {
	_, err := NewSearcher(nil, nil, zerolog.Nop(), Options{})
	assert.Error(t, err)
}

func TestSearch_Hybrid(t *testing.T) {
	store := fixtureStore()
	s := newTestSearcher(t, store, &mockEmbedder{})

	res, err := s.Search(context.Background(), SearchRequest{
		Vector: []float32{1, 0, 0},
		Query:  "connection pool",
		Limit:  5,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 1, 3}, ids(res.Results))
	assert.True(t, res.Results[0].InBoth)
	assert.Equal(t, 2, res.Results[0].DenseRank)
	assert.Equal(t, 1, res.Results[0].SparseRank)
	assert.False(t, res.Results[1].HasSparse())
	assert.False(t, res.Results[2].HasDense())

	assert.Equal(t, ModeHybrid, res.Stats.Mode)
	assert.Equal(t, 2, res.Stats.DenseCount)
	assert.Equal(t, 2, res.Stats.SparseCount)
	assert.Equal(t, 3, res.Stats.FusedCount)
	assert.Equal(t, 1, res.Stats.OverlapCount)
	assert.False(t, res.Stats.CacheHit)
	assert.Positive(t, res.Stats.TotalTime)

	assert.Equal(t, 15, store.denseQuery.Limit)
	assert.Equal(t, 15, store.sparseQuery.Limit)
	assert.Equal(t, "connection pool", store.lastText)
}

// barrierStore makes each query wait until the other one has started,
// so it only completes when both run at the same time.
type barrierStore struct {
	*mockStore
	denseStarted  chan struct{}
	sparseStarted chan struct{}
}

func newBarrierStore() *barrierStore {
	return &barrierStore{
		mockStore:     fixtureStore(),
		denseStarted:  make(chan struct{}),
		sparseStarted: make(chan struct{}),
	}
}

func waitFor(ctx context.Context, ch <-chan struct{}, what string) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New(what + " query never started")
	}
}

func (b *barrierStore) SearchByEmbedding(ctx context.Context, vector []float32, q storage.EmbeddingQuery) ([]types.ScoredNode, error) {
	close(b.denseStarted)
	if err := waitFor(ctx, b.sparseStarted, "sparse"); err != nil {
		return nil, err
	}
	return b.mockStore.SearchByEmbedding(ctx, vector, q)
}

func (b *barrierStore) SearchByKeyword(ctx context.Context, text string, q storage.KeywordQuery) ([]types.ScoredNode, error) {
	close(b.sparseStarted)
	if err := waitFor(ctx, b.denseStarted, "dense"); err != nil {
		return nil, err
	}
	return b.mockStore.SearchByKeyword(ctx, text, q)
}

func TestSearch_QueriesRunConcurrently(t *testing.T) {
	store := newBarrierStore()
	s := newTestSearcher(t, store, &mockEmbedder{})

	res, err := s.Search(context.Background(), SearchRequest{
		Vector:   []float32{1, 0, 0},
		Query:    "connection pool",
		UseCache: false,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 1, 3}, ids(res.Results))
	assert.Equal(t, 1, store.denseCalls)
	assert.Equal(t, 1, store.sparseCalls)
}

func TestSearch_EmbedsQueryWhenNoVector(t *testing.T) {
	store := fixtureStore()
	emb := &mockEmbedder{}
	s := newTestSearcher(t, store, emb)

	_, err := s.Search(context.Background(), SearchRequest{Query: "pool"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pool"}, emb.texts)
	assert.Equal(t, []float32{1, 0, 0}, store.lastVector)
}

func TestSearch_ExplicitVectorSkipsEmbedder(t *testing.T) {
	store := fixtureStore()
	emb := &mockEmbedder{}
	s := newTestSearcher(t, store, emb)

	_, err := s.Search(context.Background(), SearchRequest{Vector: []float32{0, 1, 0}, Query: "pool"})
	require.NoError(t, err)

	assert.Empty(t, emb.texts)
	assert.Equal(t, []float32{0, 1, 0}, store.lastVector)
}

func TestSearch_Modes(t *testing.T) {
	tests := []struct {
		name       string
		req        SearchRequest
		emb        embedder.Embedder
		wantMode   Mode
		wantDense  int
		wantSparse int
		wantIDs    []int64
	}{
		{
			name:       "dense only",
			req:        SearchRequest{Query: "pool", DenseOnly: true},
			emb:        &mockEmbedder{},
			wantMode:   ModeDense,
			wantDense:  1,
			wantSparse: 0,
			wantIDs:    []int64{1, 2},
		},
		{
			name:       "sparse only",
			req:        SearchRequest{Query: "pool", SparseOnly: true},
			emb:        &mockEmbedder{},
			wantMode:   ModeSparse,
			wantDense:  0,
			wantSparse: 1,
			wantIDs:    []int64{2, 3},
		},
		{
			name:       "hybrid without embedder runs keyword search only",
			req:        SearchRequest{Query: "pool"},
			emb:        nil,
			wantMode:   ModeHybrid,
			wantDense:  0,
			wantSparse: 1,
			wantIDs:    []int64{2, 3},
		},
		{
			name:       "hybrid with vector and no text runs dense search only",
			req:        SearchRequest{Vector: []float32{1, 0, 0}},
			emb:        nil,
			wantMode:   ModeHybrid,
			wantDense:  1,
			wantSparse: 0,
			wantIDs:    []int64{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := fixtureStore()
			s := newTestSearcher(t, store, tt.emb)

			res, err := s.Search(context.Background(), tt.req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMode, res.Stats.Mode)
			assert.Equal(t, tt.wantDense, store.denseCalls)
			assert.Equal(t, tt.wantSparse, store.sparseCalls)
			assert.Equal(t, tt.wantIDs, ids(res.Results))
		})
	}
}

func TestSearch_InvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     SearchRequest
		emb     embedder.Embedder
		wantErr error
	}{
		{"both only flags", SearchRequest{Query: "pool", DenseOnly: true, SparseOnly: true}, &mockEmbedder{}, types.ErrConflictingModes},
		{"nothing to search", SearchRequest{}, &mockEmbedder{}, types.ErrEmptyQuery},
		{"whitespace query", SearchRequest{Query: "   "}, &mockEmbedder{}, types.ErrEmptyQuery},
		{"dense only without vector or embedder", SearchRequest{Query: "pool", DenseOnly: true}, nil, types.ErrEmptyQuery},
		{"sparse only without text", SearchRequest{Vector: []float32{1}, SparseOnly: true}, nil, types.ErrEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := fixtureStore()
			s := newTestSearcher(t, store, tt.emb)

			_, err := s.Search(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.denseCalls+store.sparseCalls)
		})
	}
}

func TestSearch_QueryFailureAborts(t *testing.T) {
	boom := errors.New("store unavailable")

	t.Run("dense", func(t *testing.T) {
		store := fixtureStore()
		store.denseErr = boom
		s := newTestSearcher(t, store, &mockEmbedder{})

		res, err := s.Search(context.Background(), SearchRequest{Query: "pool"})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("sparse", func(t *testing.T) {
		store := fixtureStore()
		store.sparseErr = boom
		s := newTestSearcher(t, store, &mockEmbedder{})

		res, err := s.Search(context.Background(), SearchRequest{Query: "pool"})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("embedder", func(t *testing.T) {
		store := fixtureStore()
		s := newTestSearcher(t, store, &mockEmbedder{err: boom})

		res, err := s.Search(context.Background(), SearchRequest{Query: "pool"})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, store.denseCalls)
	})
}

func TestSearch_LimitDefaults(t *testing.T) {
	tests := []struct {
		limit      int
		candidates int
	}{
		{0, DefaultLimit * CandidateMultiplier},
		{-4, DefaultLimit * CandidateMultiplier},
		{7, 21},
		{500, MaxLimit * CandidateMultiplier},
	}

	for _, tt := range tests {
		store := fixtureStore()
		s := newTestSearcher(t, store, nil)

		_, err := s.Search(context.Background(), SearchRequest{Query: "pool", Limit: tt.limit})
		require.NoError(t, err)
		assert.Equal(t, tt.candidates, store.sparseQuery.Limit, "limit %d", tt.limit)
	}
}

func TestSearch_TruncatesToLimit(t *testing.T) {
	store := fixtureStore()
	s := newTestSearcher(t, store, &mockEmbedder{})

	res, err := s.Search(context.Background(), SearchRequest{Query: "pool", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, ids(res.Results))
	assert.Equal(t, 2, res.Stats.FusedCount)
}

func TestSearch_PassesFilters(t *testing.T) {
	store := fixtureStore()
	s := newTestSearcher(t, store, &mockEmbedder{})

	level := 1
	root := int64(42)
	_, err := s.Search(context.Background(), SearchRequest{
		Query:          "pool",
		DenseThreshold: 0.5,
		SourceType:     "forum",
		HierarchyLevel: &level,
		ThreadRootID:   &root,
		SearchTitle:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.5, store.denseQuery.Threshold)
	assert.Equal(t, "forum", store.denseQuery.SourceType)
	assert.Equal(t, &level, store.denseQuery.HierarchyLevel)
	assert.Equal(t, &root, store.denseQuery.ThreadRootID)

	assert.True(t, store.sparseQuery.SearchTitle)
	assert.Equal(t, "forum", store.sparseQuery.SourceType)
	assert.Equal(t, &level, store.sparseQuery.HierarchyLevel)
	assert.Equal(t, &root, store.sparseQuery.ThreadRootID)
}

func TestSearch_Weights(t *testing.T) {
	store := fixtureStore()
	s := newTestSearcher(t, store, &mockEmbedder{})

	// Sparse weight alone: node 1 (dense only) contributes nothing
	res, err := s.Search(context.Background(), SearchRequest{Query: "pool", DenseWeight: 0, SparseWeight: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, ids(res.Results))
	assert.Zero(t, res.Results[2].FusedScore)
}

func TestSearch_Cache(t *testing.T) {
	store := fixtureStore()
	s := newTestSearcher(t, store, &mockEmbedder{})
	req := SearchRequest{Query: "pool", UseCache: true}

	first, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Stats.CacheHit)
	assert.Equal(t, 1, s.CacheLen())

	// Mutating the returned result must not leak into the cache
	first.Results[0].Node.Text = "mutated"
	first.Results = first.Results[:1]

	second, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Stats.CacheHit)
	assert.Equal(t, 1, store.sparseCalls)
	assert.Len(t, second.Results, 3)
	assert.Equal(t, "node text", second.Results[0].Node.Text)

	// A different request misses
	_, err = s.Search(context.Background(), SearchRequest{Query: "pool", UseCache: true, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, store.sparseCalls)

	s.InvalidateCache()
	assert.Zero(t, s.CacheLen())

	third, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Stats.CacheHit)
	assert.Equal(t, 3, store.sparseCalls)
}

func TestSearch_CacheDisabled(t *testing.T) {
	store := fixtureStore()
	s := newTestSearcher(t, store, &mockEmbedder{})

	for i := 0; i < 2; i++ {
		_, err := s.Search(context.Background(), SearchRequest{Query: "pool"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, store.sparseCalls)
	assert.Zero(t, s.CacheLen())
}

func TestSearch_CacheExpiry(t *testing.T) {
	store := fixtureStore()
	s := newTestSearcher(t, store, &mockEmbedder{})
	req := SearchRequest{Query: "pool", UseCache: true, CacheTTL: time.Millisecond}

	_, err := s.Search(context.Background(), req)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	res, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Stats.CacheHit)
	assert.Equal(t, 2, store.sparseCalls)
}

func TestSearch_EmptyResultsAreNotCached(t *testing.T) {
	store := &mockStore{}
	s := newTestSearcher(t, store, &mockEmbedder{})

	res, err := s.Search(context.Background(), SearchRequest{Query: "nothing", UseCache: true})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Zero(t, s.CacheLen())
}

func TestSearch_RecordsMetrics(t *testing.T) {
	store := fixtureStore()
	rec := metrics.New("test")
	s, err := NewSearcher(store, &mockEmbedder{}, zerolog.Nop(), Options{Metrics: rec})
	require.NoError(t, err)

	_, err = s.Search(context.Background(), SearchRequest{Query: "pool", UseCache: true})
	require.NoError(t, err)
	_, err = s.Search(context.Background(), SearchRequest{Query: "pool", UseCache: true})
	require.NoError(t, err)

	families, err := rec.Gatherer().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "hybridrank_search_requests_total")
	assert.Contains(t, names, "hybridrank_search_stage_duration_seconds")
	assert.Contains(t, names, "hybridrank_search_cache_lookups_total")
}

func TestComputeQueryHash(t *testing.T) {
	level := 1
	base := SearchRequest{Query: "pool", Limit: 10}

	variants := []SearchRequest{
		{Query: "pools", Limit: 10},
		{Query: "pool", Limit: 11},
		{Query: "pool", Limit: 10, Vector: []float32{1}},
		{Query: "pool", Limit: 10, HierarchyLevel: &level},
		{Query: "pool", Limit: 10, SourceType: "forum"},
		{Query: "pool", Limit: 10, SparseOnly: true},
		{Query: "pool", Limit: 10, DenseWeight: 0.5},
	}

	assert.Equal(t, computeQueryHash(base), computeQueryHash(SearchRequest{Query: "pool", Limit: 10}))
	for _, v := range variants {
		assert.NotEqual(t, computeQueryHash(base), computeQueryHash(v))
	}

	// Cache behaviour does not change the key
	withTTL := base
	withTTL.UseCache = true
	withTTL.CacheTTL = time.Minute
	assert.Equal(t, computeQueryHash(base), computeQueryHash(withTTL))
}
