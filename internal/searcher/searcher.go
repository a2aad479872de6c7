package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridrank/internal/embedder"
	"github.com/dshills/hybridrank/internal/fusion"
	"github.com/dshills/hybridrank/internal/metrics"
	"github.com/dshills/hybridrank/internal/storage"
	"github.com/dshills/hybridrank/internal/vecmath"
	"github.com/dshills/hybridrank/pkg/types"
)

// Request defaults
const (
	DefaultLimit        = 10
	MaxLimit            = 100
	CandidateMultiplier = 3
	DefaultCacheSize    = 1000
	DefaultCacheTTL     = time.Hour
)

// Mode names which candidate queries a request runs
type Mode string

const (
	ModeHybrid Mode = "hybrid" // Dense + sparse fused with RRF
	ModeDense  Mode = "dense"  // Embedding similarity only
	ModeSparse Mode = "sparse" // Keyword only
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Vector []float32 // Query embedding; computed from Query when empty and an embedder is set
	Query  string    // Keyword query text
	Limit  int

	DenseThreshold float64 // Minimum cosine similarity for dense candidates, applied when > 0
	DenseWeight    float64
	SparseWeight   float64
	RRFK           int

	SourceType     string
	HierarchyLevel *int
	ThreadRootID   *int64
	SearchTitle    bool

	SparseOnly bool
	DenseOnly  bool

	UseCache bool // Whether to use the query cache
	CacheTTL time.Duration
}

// Stats reports per-stage timings and counts
type Stats struct {
	Mode         Mode
	DenseTime    time.Duration
	SparseTime   time.Duration
	FusionTime   time.Duration
	TotalTime    time.Duration
	DenseCount   int
	SparseCount  int
	FusedCount   int
	OverlapCount int
	CacheHit     bool
}

// HybridSearchResult is the fused result list plus its statistics
type HybridSearchResult struct {
	Results []types.FusedResult
	Stats   Stats
}

// Options configures a Searcher
type Options struct {
	CacheSize int               // Query cache entries (default 1000)
	Metrics   *metrics.Recorder // Optional
}

// cacheEntry represents a cached search result with expiration time
type cacheEntry struct {
	result    *HybridSearchResult
	expiresAt time.Time
}

// Searcher coordinates the dense and sparse candidate queries and fuses them
type Searcher struct {
	store    storage.ContentStore
	embedder embedder.Embedder
	logger   zerolog.Logger
	metrics  *metrics.Recorder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// NewSearcher creates a Searcher over the given store. The embedder may be
// nil, in which case dense search needs an explicit query vector.
func NewSearcher(store storage.ContentStore, emb embedder.Embedder, logger zerolog.Logger, opts Options) (*Searcher, error) {
	if store == nil {
		return nil, errors.New("content store is required")
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Searcher{
		store:    store,
		embedder: emb,
		logger:   logger.With().Str("component", "searcher").Logger(),
		metrics:  opts.Metrics,
		cache:    cache,
	}, nil
}

// Search runs the requested candidate queries concurrently and fuses them.
// A failure of either query aborts the call.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*HybridSearchResult, error) {
	start := time.Now()

	mode, err := s.validateRequest(&req)
	if err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		cached := s.checkCache(req)
		s.metrics.ObserveCache(cached != nil)
		if cached != nil {
			cached.Stats.CacheHit = true
			cached.Stats.TotalTime = time.Since(start)
			s.metrics.ObserveSearch(string(mode), nil)
			return cached, nil
		}
	}

	result, err := s.search(ctx, req, mode)
	s.metrics.ObserveSearch(string(mode), err)
	if err != nil {
		return nil, err
	}

	result.Stats.TotalTime = time.Since(start)
	s.metrics.ObserveStage(metrics.StageTotal, result.Stats.TotalTime)

	s.logger.Debug().
		Str("mode", string(mode)).
		Int("dense", result.Stats.DenseCount).
		Int("sparse", result.Stats.SparseCount).
		Int("fused", result.Stats.FusedCount).
		Int("overlap", result.Stats.OverlapCount).
		Dur("dense_time", result.Stats.DenseTime).
		Dur("sparse_time", result.Stats.SparseTime).
		Dur("fusion_time", result.Stats.FusionTime).
		Dur("total_time", result.Stats.TotalTime).
		Msg("hybrid search complete")

	if req.UseCache && len(result.Results) > 0 {
		s.storeInCache(req, result)
	}

	return result, nil
}

func (s *Searcher) search(ctx context.Context, req SearchRequest, mode Mode) (*HybridSearchResult, error) {
	candidates := req.Limit * CandidateMultiplier
	filters := storage.Filters{
		SourceType:     req.SourceType,
		HierarchyLevel: req.HierarchyLevel,
		ThreadRootID:   req.ThreadRootID,
	}

	var (
		dense, sparse []types.RankedResult
		stats         = Stats{Mode: mode}
	)

	g, gctx := errgroup.WithContext(ctx)

	if s.runsDense(req, mode) {
		g.Go(func() error {
			began := time.Now()
			defer func() {
				stats.DenseTime = time.Since(began)
				s.metrics.ObserveStage(metrics.StageDense, stats.DenseTime)
			}()

			vector, err := s.queryVector(gctx, req)
			if err != nil {
				return err
			}
			hits, err := s.store.SearchByEmbedding(gctx, vector, storage.EmbeddingQuery{
				Limit:     candidates,
				Threshold: req.DenseThreshold,
				Filters:   filters,
			})
			if err != nil {
				return fmt.Errorf("dense search failed: %w", err)
			}
			dense = fusion.ToRankedResults(hits, types.SourceDense)
			return nil
		})
	} else if mode == ModeHybrid {
		s.logger.Debug().Msg("no query vector and no embedder, skipping dense search")
	}

	if s.runsSparse(req, mode) {
		g.Go(func() error {
			began := time.Now()
			defer func() {
				stats.SparseTime = time.Since(began)
				s.metrics.ObserveStage(metrics.StageSparse, stats.SparseTime)
			}()

			hits, err := s.store.SearchByKeyword(gctx, req.Query, storage.KeywordQuery{
				Limit:       candidates,
				SearchTitle: req.SearchTitle,
				Filters:     filters,
			})
			if err != nil {
				return fmt.Errorf("sparse search failed: %w", err)
			}
			sparse = fusion.ToRankedResults(hits, types.SourceSparse)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fusionStart := time.Now()
	fused := fusion.FuseResults(dense, sparse, fusion.Options{
		K:            req.RRFK,
		DenseWeight:  req.DenseWeight,
		SparseWeight: req.SparseWeight,
		Limit:        req.Limit,
	})
	overlap := fusion.ComputeOverlapStats(dense, sparse)
	stats.FusionTime = time.Since(fusionStart)
	s.metrics.ObserveStage(metrics.StageFusion, stats.FusionTime)

	stats.DenseCount = len(dense)
	stats.SparseCount = len(sparse)
	stats.FusedCount = len(fused)
	stats.OverlapCount = overlap.Overlap
	s.metrics.ObserveCandidates(string(types.SourceDense), len(dense))
	s.metrics.ObserveCandidates(string(types.SourceSparse), len(sparse))

	return &HybridSearchResult{Results: fused, Stats: stats}, nil
}

// queryVector returns the request vector, embedding the query text when needed
func (s *Searcher) queryVector(ctx context.Context, req SearchRequest) ([]float32, error) {
	if len(req.Vector) > 0 {
		return req.Vector, nil
	}
	emb, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	return emb.Vector, nil
}

func (s *Searcher) canDense(req SearchRequest) bool {
	return len(req.Vector) > 0 || (s.embedder != nil && strings.TrimSpace(req.Query) != "")
}

func canSparse(req SearchRequest) bool {
	return strings.TrimSpace(req.Query) != ""
}

func (s *Searcher) runsDense(req SearchRequest, mode Mode) bool {
	return mode != ModeSparse && s.canDense(req)
}

func (s *Searcher) runsSparse(req SearchRequest, mode Mode) bool {
	return mode != ModeDense && canSparse(req)
}

// validateRequest applies defaults and resolves the search mode
func (s *Searcher) validateRequest(req *SearchRequest) (Mode, error) {
	if req.DenseOnly && req.SparseOnly {
		return "", types.ErrConflictingModes
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	switch {
	case req.DenseOnly:
		if !s.canDense(*req) {
			return "", types.ErrEmptyQuery
		}
		return ModeDense, nil
	case req.SparseOnly:
		if !canSparse(*req) {
			return "", types.ErrEmptyQuery
		}
		return ModeSparse, nil
	default:
		if !s.canDense(*req) && !canSparse(*req) {
			return "", types.ErrEmptyQuery
		}
		return ModeHybrid, nil
	}
}

// checkCache looks up a cached result, returning nil on a miss or expiry
func (s *Searcher) checkCache(req SearchRequest) *HybridSearchResult {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	result := copyResult(entry.result)
	s.cacheMu.RUnlock()

	return result
}

// storeInCache saves a deep copy of the result
func (s *Searcher) storeInCache(req SearchRequest, result *HybridSearchResult) {
	entry := &cacheEntry{
		result:    copyResult(result),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached query, typically after new content is indexed
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached queries
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// copyResult creates a deep copy of a HybridSearchResult
func copyResult(src *HybridSearchResult) *HybridSearchResult {
	if src == nil {
		return nil
	}

	dst := &HybridSearchResult{
		Stats:   src.Stats,
		Results: make([]types.FusedResult, len(src.Results)),
	}
	for i, r := range src.Results {
		dst.Results[i] = r
		dst.Results[i].Node = r.Node.Clone()
	}
	return dst
}

// computeQueryHash computes a unique hash for everything that shapes the result
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	fmt.Fprintf(&data, "|%d|%g|%g|%g|%d", req.Limit, req.DenseThreshold, req.DenseWeight, req.SparseWeight, req.RRFK)
	fmt.Fprintf(&data, "|%s|%t|%t|%t", req.SourceType, req.SearchTitle, req.DenseOnly, req.SparseOnly)

	if req.HierarchyLevel != nil {
		fmt.Fprintf(&data, "|level:%d", *req.HierarchyLevel)
	}
	if req.ThreadRootID != nil {
		fmt.Fprintf(&data, "|thread:%d", *req.ThreadRootID)
	}
	if len(req.Vector) > 0 {
		data.WriteString("|vector:")
		data.Write(vecmath.Serialize(req.Vector))
	}

	return sha256.Sum256([]byte(data.String()))
}
