package quality

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dshills/hybridrank/internal/storage"
	"github.com/dshills/hybridrank/pkg/types"
)

// DefaultMaxContextExpansion is the number of ancestor hops walked by default
const DefaultMaxContextExpansion = 1

// ParentFetcher resolves the parent of a node. storage.ErrNotFound ends the walk.
type ParentFetcher interface {
	GetParent(ctx context.Context, nodeID int64) (*types.Node, error)
}

// GateOptions extends Options with context expansion
type GateOptions struct {
	Options

	ExpandContext       bool
	MaxContextExpansion int  // ancestor hops (default 1)
	IncludeRejected     bool // return failing results with their indicators
}

// Gate is the store-backed quality gate
type Gate struct {
	parents ParentFetcher
	logger  zerolog.Logger
}

// NewGate creates a gate. parents may be nil when context expansion is unused.
func NewGate(parents ParentFetcher, logger zerolog.Logger) *Gate {
	return &Gate{
		parents: parents,
		logger:  logger.With().Str("component", "quality").Logger(),
	}
}

// Apply judges every result and returns the enriched passing results in
// input order. Short results may be rescued by prepending ancestor text
// when ExpandContext is set.
func (g *Gate) Apply(ctx context.Context, results []types.FusedResult, opts GateOptions) ([]types.EnrichedResult, error) {
	maxHops := opts.MaxContextExpansion
	if maxHops <= 0 {
		maxHops = DefaultMaxContextExpansion
	}

	out := make([]types.EnrichedResult, 0, len(results))
	for _, r := range results {
		if r.Node == nil {
			continue
		}

		enriched, err := g.judge(ctx, r, opts, maxHops)
		if err != nil {
			return nil, err
		}
		if enriched.Quality.PassedGate || opts.IncludeRejected {
			out = append(out, enriched)
		}
	}
	return out, nil
}

func (g *Gate) judge(ctx context.Context, r types.FusedResult, opts GateOptions, maxHops int) (types.EnrichedResult, error) {
	node := r.Node
	enriched := types.EnrichedResult{
		FusedResult: r,
		ContextText: node.Text,
	}

	wordCount := node.WordCount
	quality := hasMinQuality(node, opts.Options)

	// Only short results are worth expanding: a low quality score is not
	// fixed by more context.
	if !hasMinWords(wordCount, opts.Options) && quality && opts.ExpandContext && g.parents != nil {
		expanded, err := g.expand(ctx, node, opts.Options, maxHops)
		if err != nil {
			return enriched, err
		}
		if expanded.parent != nil {
			enriched.ParentNode = expanded.parent
			enriched.ContextText = expanded.text
			enriched.ContextExpanded = true
			wordCount = expanded.wordCount
		}
	}

	enriched.Quality = types.QualityIndicators{
		HasMinWords:   hasMinWords(wordCount, opts.Options),
		HasMinQuality: quality,
		IsComplete:    isComplete(enriched.ContextText),
	}
	enriched.Quality.PassedGate = enriched.Quality.HasMinWords && enriched.Quality.HasMinQuality
	return enriched, nil
}

type expansion struct {
	parent    *types.Node // furthest ancestor reached
	text      string
	wordCount int
}

// expand walks up to maxHops ancestors, prepending their text, and stops
// as soon as the combined text has enough words.
func (g *Gate) expand(ctx context.Context, node *types.Node, opts Options, maxHops int) (expansion, error) {
	result := expansion{text: node.Text, wordCount: node.WordCount}
	current := node

	for hop := 0; hop < maxHops && current.ParentID != nil; hop++ {
		parent, err := g.parents.GetParent(ctx, current.ID)
		if errors.Is(err, storage.ErrNotFound) {
			g.logger.Warn().Int64("node_id", current.ID).Msg("parent referenced but not found")
			break
		}
		if err != nil {
			return result, fmt.Errorf("failed to fetch parent of node %d: %w", current.ID, err)
		}

		result.parent = parent
		result.text = joinContext(parent.Text, result.text)
		result.wordCount += parent.WordCount
		current = parent

		if hasMinWords(result.wordCount, opts) {
			break
		}
	}
	return result, nil
}

func joinContext(ancestor, text string) string {
	ancestor = strings.TrimSpace(ancestor)
	if ancestor == "" {
		return text
	}
	return ancestor + "\n\n" + text
}
