// Package quality applies the final pass/fail gate on content substance and
// optionally expands short results with text from their ancestors.
package quality

import (
	"strings"

	"github.com/dshills/hybridrank/pkg/types"
)

// DefaultMinWordCount is the minimum word count a result needs to pass
const DefaultMinWordCount = 30

// Options configures the gate
type Options struct {
	MinWordCount    *int     // nil uses DefaultMinWordCount, 0 disables the check
	MinQualityScore *float64 // nil disables the quality-score check
}

func (o Options) minWords() int {
	if o.MinWordCount == nil {
		return DefaultMinWordCount
	}
	return *o.MinWordCount
}

// PassesQualityGate reports whether node has enough words and, when a
// minimum quality score is set, a high enough score. Nodes without a
// quality score are not penalised by the score check.
func PassesQualityGate(node *types.Node, opts Options) bool {
	if node == nil {
		return false
	}
	return hasMinWords(node.WordCount, opts) && hasMinQuality(node, opts)
}

// FilterByQuality keeps the passing results, preserving order
func FilterByQuality(results []types.FusedResult, opts Options) []types.FusedResult {
	out := make([]types.FusedResult, 0, len(results))
	for _, r := range results {
		if PassesQualityGate(r.Node, opts) {
			out = append(out, r)
		}
	}
	return out
}

func hasMinWords(wordCount int, opts Options) bool {
	return wordCount >= opts.minWords()
}

func hasMinQuality(node *types.Node, opts Options) bool {
	if opts.MinQualityScore == nil || node.QualityScore == nil {
		return true
	}
	return *node.QualityScore >= *opts.MinQualityScore
}

// isComplete reports whether text ends on a sentence boundary
func isComplete(text string) bool {
	text = strings.TrimRight(strings.TrimSpace(text), `"')]`)
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return strings.HasSuffix(text, "…")
}
