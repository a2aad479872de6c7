package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrank/internal/anchor"
	"github.com/dshills/hybridrank/internal/quality"
	"github.com/dshills/hybridrank/internal/reranker"
	"github.com/dshills/hybridrank/internal/searcher"
	"github.com/dshills/hybridrank/internal/storage"
	"github.com/dshills/hybridrank/pkg/types"
)

type fakeSearcher struct {
	results []types.FusedResult
	err     error
	calls   int
	last    searcher.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req searcher.SearchRequest) (*searcher.HybridSearchResult, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &searcher.HybridSearchResult{
		Results: types.CloneFused(f.results),
		Stats:   searcher.Stats{Mode: searcher.ModeHybrid, FusedCount: len(f.results)},
	}, nil
}

type fakeStore struct {
	embeddings map[int64][]float32
	parents    map[int64]*types.Node
	embErr     error
}

func (f *fakeStore) GetEmbeddings(_ context.Context, ids []int64) (map[int64][]float32, error) {
	if f.embErr != nil {
		return nil, f.embErr
	}
	out := make(map[int64][]float32)
	for _, id := range ids {
		if v, ok := f.embeddings[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeStore) GetParent(_ context.Context, id int64) (*types.Node, error) {
	if p, ok := f.parents[id]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n)) + "."
}

func fused(id int64, score float64, wordCount int, inBoth bool) types.FusedResult {
	return types.FusedResult{
		Node:       &types.Node{ID: id, Text: words(wordCount), WordCount: wordCount, SourceType: "doc"},
		FusedScore: score,
		DenseRank:  int(id),
		InBoth:     inBoth,
	}
}

func ids(results []types.EnrichedResult) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.NodeID()
	}
	return out
}

func minWords(n int) quality.GateOptions {
	return quality.GateOptions{Options: quality.Options{MinWordCount: &n}}
}

func fixture() (*fakeSearcher, *fakeStore) {
	s := &fakeSearcher{results: []types.FusedResult{
		fused(1, 0.030, 40, false),
		fused(2, 0.025, 40, true),
		fused(3, 0.020, 40, false),
	}}
	store := &fakeStore{embeddings: map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
		3: {0, 0, 1},
	}}
	return s, store
}

func newPipeline(t *testing.T, s Searcher, store Store) *Pipeline {
	t.Helper()
	p, err := New(s, store, zerolog.Nop(), nil)
	require.NoError(t, err)
	return p
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, &fakeStore{}, zerolog.Nop(), nil)
	assert.Error(t, err)

	_, err = New(&fakeSearcher{}, nil, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestRun_Defaults(t *testing.T) {
	s, store := fixture()
	p := newPipeline(t, s, store)

	res, err := p.Run(context.Background(), Request{Search: searcher.SearchRequest{Query: "pool"}})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, ids(res.Results))
	assert.Equal(t, "identity", res.Reranker)
	assert.Nil(t, res.Refinement)
	assert.Zero(t, res.Rejected)
	assert.Equal(t, 3, res.Search.FusedCount)
	for _, r := range res.Results {
		assert.True(t, r.Quality.PassedGate)
		assert.True(t, r.Quality.IsComplete)
	}
}

func TestRun_NegativeAnchorRemovesResult(t *testing.T) {
	s, store := fixture()
	p := newPipeline(t, s, store)

	neg, err := anchor.New("noise", []float32{1, 0, 0})
	require.NoError(t, err)
	pos, err := anchor.New("wanted", []float32{0, 0, 1})
	require.NoError(t, err)
	set := anchor.Set{}.With(anchor.Negative, neg).With(anchor.Positive, pos)

	res, err := p.Run(context.Background(), Request{
		Search:  searcher.SearchRequest{Query: "pool"},
		Anchors: set,
	})
	require.NoError(t, err)

	require.NotNil(t, res.Refinement)
	assert.Equal(t, 1, res.Refinement.RemovedByNegative)
	assert.NotContains(t, ids(res.Results), int64(1))
	// The positive anchor lifts node 3 above node 2
	assert.Equal(t, []int64{3, 2}, ids(res.Results))
	assert.ElementsMatch(t, []int64{3, 2}, res.Groups[pos.ID])
}

func TestRun_SearchNearAnchors(t *testing.T) {
	s, _ := fixture()
	p := newPipeline(t, s, &fakeStore{})

	a, err := anchor.New("a", []float32{1, 0})
	require.NoError(t, err)
	b, err := anchor.New("b", []float32{0, 1})
	require.NoError(t, err)
	set := anchor.Set{}.With(anchor.Positive, a).With(anchor.Positive, b)

	res, err := p.Run(context.Background(), Request{Anchors: set, SearchNearAnchors: true})
	require.NoError(t, err)
	require.NotNil(t, res.Refinement)

	assert.InDeltaSlice(t, []float32{0.5, 0.5}, s.last.Vector, 1e-6)

	// An explicit vector wins over the centroid
	_, _ = p.Run(context.Background(), Request{
		Search:            searcher.SearchRequest{Vector: []float32{9, 9}},
		SearchNearAnchors: true,
	})
	assert.Equal(t, []float32{9, 9}, s.last.Vector)
}

func TestRun_Rerankers(t *testing.T) {
	s := &fakeSearcher{results: []types.FusedResult{
		fused(1, 0.02, 40, false),
		fused(2, 0.02, 40, true),
	}}
	p := newPipeline(t, s, &fakeStore{})

	res, err := p.Run(context.Background(), Request{Reranker: reranker.KindScore})
	require.NoError(t, err)
	assert.Equal(t, "score", res.Reranker)
	assert.Equal(t, []int64{2, 1}, ids(res.Results))

	res, err = p.Run(context.Background(), Request{Rerank: reranker.Options{Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(res.Results))
}

func TestRun_UnknownReranker(t *testing.T) {
	s, store := fixture()
	p := newPipeline(t, s, store)

	_, err := p.Run(context.Background(), Request{Reranker: "cross-encoder"})
	assert.ErrorIs(t, err, types.ErrUnknownReranker)
	assert.Zero(t, s.calls)
}

func TestRun_QualityGate(t *testing.T) {
	s := &fakeSearcher{results: []types.FusedResult{
		fused(1, 0.03, 40, false),
		fused(2, 0.02, 3, false),
	}}
	p := newPipeline(t, s, &fakeStore{})

	res, err := p.Run(context.Background(), Request{Quality: minWords(10)})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(res.Results))
	assert.Equal(t, 1, res.Rejected)

	opts := minWords(10)
	opts.IncludeRejected = true
	res, err = p.Run(context.Background(), Request{Quality: opts})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(res.Results))
	assert.False(t, res.Results[1].Quality.PassedGate)
	assert.Equal(t, 1, res.Rejected)
}

func TestRun_ContextExpansion(t *testing.T) {
	parentID := int64(10)
	short := fused(2, 0.02, 3, false)
	short.Node.ParentID = &parentID

	s := &fakeSearcher{results: []types.FusedResult{short}}
	store := &fakeStore{parents: map[int64]*types.Node{
		2: {ID: parentID, Text: words(20), WordCount: 20},
	}}
	p := newPipeline(t, s, store)

	opts := minWords(10)
	opts.ExpandContext = true
	res, err := p.Run(context.Background(), Request{Quality: opts})
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	r := res.Results[0]
	assert.True(t, r.ContextExpanded)
	assert.True(t, r.Quality.PassedGate)
	require.NotNil(t, r.ParentNode)
	assert.Equal(t, parentID, r.ParentNode.ID)
	assert.True(t, strings.HasSuffix(r.ContextText, short.Node.Text))
}

func TestRun_Errors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("search", func(t *testing.T) {
		p := newPipeline(t, &fakeSearcher{err: boom}, &fakeStore{})
		_, err := p.Run(context.Background(), Request{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("embeddings", func(t *testing.T) {
		s, store := fixture()
		store.embErr = boom
		p := newPipeline(t, s, store)

		neg, err := anchor.New("noise", []float32{1, 0, 0})
		require.NoError(t, err)
		_, err = p.Run(context.Background(), Request{Anchors: anchor.Set{}.With(anchor.Negative, neg)})
		assert.ErrorIs(t, err, boom)
	})
}

func TestRun_DoesNotMutateSearchResults(t *testing.T) {
	s, store := fixture()
	p := newPipeline(t, s, store)

	pos, err := anchor.New("wanted", []float32{0, 0, 1})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), Request{
		Anchors:  anchor.Set{}.With(anchor.Positive, pos),
		Reranker: reranker.KindScore,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.030, s.results[0].FusedScore)
	assert.Equal(t, int64(1), s.results[0].Node.ID)
}
