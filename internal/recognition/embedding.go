package recognition

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Embedding is a fixed-length face descriptor produced by an EmbeddingProvider.
type Embedding []float32

func (e Embedding) float64s() []float64 {
	out := make([]float64, len(e))
	for i, v := range e {
		out[i] = float64(v)
	}
	return out
}

// FaceDistance returns the Euclidean distance between probe and each known
// embedding, index-aligned with known. Dimension mismatches yield +Inf.
func FaceDistance(known []Embedding, probe Embedding) []float64 {
	p := probe.float64s()
	out := make([]float64, len(known))
	for i, k := range known {
		if len(k) != len(probe) || len(k) == 0 {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = floats.Distance(k.float64s(), p, 2)
	}
	return out
}

// CosineTolerance converts a minimum cosine similarity into the equivalent
// Euclidean tolerance for unit-length embeddings: sqrt(2 - 2cos).
func CosineTolerance(minCosine float64) float64 {
	c := math.Max(-1, math.Min(1, minCosine))
	return math.Sqrt(2 - 2*c)
}

// CompareFaces applies the acceptance test to every distance.
func CompareFaces(distances []float64, tolerance float64) []bool {
	out := make([]bool, len(distances))
	for i, d := range distances {
		out[i] = d <= tolerance
	}
	return out
}

// Confidence maps a distance onto a 0..100 display score rounded to two
// decimals. Distances of 1 or more score 0.
func Confidence(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	c := math.Max(0, 1-distance) * 100
	if c > 100 {
		c = 100
	}
	return math.Round(c*100) / 100
}
