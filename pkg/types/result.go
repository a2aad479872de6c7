package types

// Source identifies which retrieval branch produced a ranked result
type Source string

const (
	SourceDense  Source = "dense"  // Embedding similarity
	SourceSparse Source = "sparse" // Keyword / BM25
)

// RankedResult is a store hit with its 1-based position in one source's list.
// Scores are source-native and not comparable across sources.
type RankedResult struct {
	Node   *Node
	Rank   int
	Score  float64
	Source Source
}

// FusedResult is one unique node after Reciprocal Rank Fusion.
//
// DenseRank and SparseRank are positions before fusion; 0 means the node
// was absent from that source and the matching score carries no meaning.
type FusedResult struct {
	Node       *Node
	FusedScore float64

	DenseScore  float64
	DenseRank   int
	SparseScore float64
	SparseRank  int

	InBoth bool
}

// HasDense reports whether the node was returned by the dense query
func (r FusedResult) HasDense() bool {
	return r.DenseRank > 0
}

// HasSparse reports whether the node was returned by the sparse query
func (r FusedResult) HasSparse() bool {
	return r.SparseRank > 0
}

// NodeID returns the node identity, or 0 for a result without a node
func (r FusedResult) NodeID() int64 {
	if r.Node == nil {
		return 0
	}
	return r.Node.ID
}

// QualityIndicators is the per-result judgment attached by the quality gate
type QualityIndicators struct {
	HasMinWords   bool
	HasMinQuality bool
	IsComplete    bool
	PassedGate    bool
}

// EnrichedResult is the terminal shape returned to callers
type EnrichedResult struct {
	FusedResult

	ParentNode      *Node  // Nullable - set when context was expanded
	ContextText     string // Ancestor text followed by the node text
	ContextExpanded bool
	Quality         QualityIndicators
}

// CloneFused returns a shallow copy of the slice. Nodes are shared, never copied.
func CloneFused(results []FusedResult) []FusedResult {
	if results == nil {
		return nil
	}
	out := make([]FusedResult, len(results))
	copy(out, results)
	return out
}

// Validate checks if the ranked result is valid
func (r *RankedResult) Validate() error {
	if r.Node == nil {
		return ErrMissingNode
	}
	if r.Rank < 1 {
		return ErrInvalidRank
	}
	if r.Source != SourceDense && r.Source != SourceSparse {
		return ErrInvalidSource
	}
	return nil
}
