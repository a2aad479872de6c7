// Package anchor implements the find, mark, re-search refinement loop.
//
// A caller promotes promising results to positive anchors and unwanted ones
// to negative anchors. Refine then uses the anchor set to:
//
//  1. drop results too similar to a negative anchor
//  2. restore the best dropped results if fewer than MinResults survive
//  3. nudge scores toward positives and away from negatives
//  4. group survivors by their nearest positive anchor
//
// Anchor sets are values: With and Without return new sets, so a session can
// hand the same set to concurrent searches safely.
//
//	pos, _ := anchor.FromResult("good example", results[0], embeddings)
//	set := anchor.Set{}.With(anchor.Positive, pos)
//	ref, err := anchor.Refine(results, embeddings, set, anchor.Options{MinResults: 5})
package anchor
