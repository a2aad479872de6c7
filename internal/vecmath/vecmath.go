// Package vecmath provides the stateless vector similarity helpers used by
// the filtering, refinement and storage layers.
package vecmath

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dshills/hybridrank/pkg/types"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 when either vector has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", types.ErrDimensionMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp rounding drift so callers can rely on [-1, 1]
	return math.Max(-1, math.Min(1, sim)), nil
}

// MaxSimilarityToSet returns the highest similarity between vector and any
// member of set, and the index of that member. An empty set yields (-1, -1),
// which callers treat as "no constraint". When no similarity is a number
// (NaN or infinite components) it fails with ErrNonFiniteVector.
func MaxSimilarityToSet(vector []float32, set [][]float32) (float64, int, error) {
	if len(set) == 0 {
		return -1, -1, nil
	}

	best, bestIdx := math.Inf(-1), -1
	for i, candidate := range set {
		sim, err := CosineSimilarity(vector, candidate)
		if err != nil {
			return 0, -1, err
		}
		if sim > best {
			best, bestIdx = sim, i
		}
	}
	if bestIdx < 0 {
		return 0, -1, types.ErrNonFiniteVector
	}
	return best, bestIdx, nil
}

// AvgSimilarityToSet returns the mean similarity between vector and the
// members of set, or 0 for an empty set.
func AvgSimilarityToSet(vector []float32, set [][]float32) (float64, error) {
	if len(set) == 0 {
		return 0, nil
	}

	var total float64
	for _, candidate := range set {
		sim, err := CosineSimilarity(vector, candidate)
		if err != nil {
			return 0, err
		}
		total += sim
	}
	return total / float64(len(set)), nil
}

// ComputeCentroid returns the component-wise mean of set
func ComputeCentroid(set [][]float32) ([]float32, error) {
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: centroid of empty set", types.ErrEmptyInput)
	}

	dim := len(set[0])
	sums := make([]float64, dim)
	for _, v := range set {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %d != %d", types.ErrDimensionMismatch, len(v), dim)
		}
		for i, x := range v {
			sums[i] += float64(x)
		}
	}

	centroid := make([]float32, dim)
	for i, s := range sums {
		centroid[i] = float32(s / float64(len(set)))
	}
	return centroid, nil
}

// Serialize converts a float32 slice to a little-endian byte blob
func Serialize(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// Deserialize converts a little-endian byte blob back to a float32 slice
func Deserialize(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}
