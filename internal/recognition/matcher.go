package recognition

import "math"

// MatchResult is the outcome of classifying one probe against a gallery.
// Confidence is reported for rejected candidates too.
type MatchResult struct {
	Entry      *GalleryEntry // nil unless IsMatch
	Distance   float64
	Confidence float64
	IsMatch    bool
}

// Matcher picks the nearest gallery entry and applies the tolerance test to it.
type Matcher struct {
	tolerance float64
}

func NewMatcher(tolerance float64) *Matcher {
	return &Matcher{tolerance: tolerance}
}

func (m *Matcher) Tolerance() float64 {
	return m.tolerance
}

// Match classifies probe against g. An empty gallery always yields an
// unknown result with zero confidence.
func (m *Matcher) Match(probe Embedding, g *Gallery) MatchResult {
	if g.Len() == 0 {
		return MatchResult{Distance: math.Inf(1)}
	}

	distances := FaceDistance(g.Embeddings(), probe)
	accepted := CompareFaces(distances, m.tolerance)

	best := 0
	for i := 1; i < len(distances); i++ {
		if distances[i] < distances[best] {
			best = i
		}
	}

	res := MatchResult{
		Distance:   distances[best],
		Confidence: Confidence(distances[best]),
	}
	if accepted[best] {
		entry := g.Entry(best)
		res.Entry = &entry
		res.IsMatch = true
	}
	return res
}
