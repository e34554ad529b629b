package recognition

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilant-eye/facewatch/internal/models"
)

func entry(name string, emb ...float32) GalleryEntry {
	return GalleryEntry{
		CitizenID:  uuid.New(),
		Name:       name,
		NationalID: "NID-" + name,
		Status:     models.CitizenStatusWanted,
		Embedding:  emb,
	}
}

func TestMatchEmptyGallery(t *testing.T) {
	m := NewMatcher(0.6)

	for _, probe := range []Embedding{{0, 0}, {0.5, 0.5}, {}} {
		res := m.Match(probe, NewGallery())
		assert.False(t, res.IsMatch)
		assert.Nil(t, res.Entry)
		assert.Equal(t, 0.0, res.Confidence)
	}

	var nilGallery *Gallery
	assert.False(t, m.Match(Embedding{1}, nilGallery).IsMatch)
}

func TestMatchExactEmbedding(t *testing.T) {
	alice := entry("alice", 0.1, 0.2, 0.3)
	res := NewMatcher(0.6).Match(Embedding{0.1, 0.2, 0.3}, NewGallery(alice))

	require.True(t, res.IsMatch)
	require.NotNil(t, res.Entry)
	assert.Equal(t, alice.CitizenID, res.Entry.CitizenID)
	assert.Equal(t, 100.0, res.Confidence)
	assert.Equal(t, 0.0, res.Distance)
}

func TestMatchSelectsNearestNotFirst(t *testing.T) {
	far := entry("far", 0.3)
	near := entry("near", 0.1)

	res := NewMatcher(0.6).Match(Embedding{0}, NewGallery(far, near))

	require.True(t, res.IsMatch)
	assert.Equal(t, "near", res.Entry.Name)
	assert.InDelta(t, 0.1, res.Distance, 1e-6)
	assert.InDelta(t, 90.0, res.Confidence, 1e-6)
}

func TestMatchTieKeepsFirstIndex(t *testing.T) {
	res := NewMatcher(0.6).Match(Embedding{0}, NewGallery(entry("first", 0.2), entry("second", -0.2)))

	require.True(t, res.IsMatch)
	assert.Equal(t, "first", res.Entry.Name)
}

func TestMatchRejectedStillReportsConfidence(t *testing.T) {
	res := NewMatcher(0.6).Match(Embedding{0}, NewGallery(entry("bob", 0.75)))

	assert.False(t, res.IsMatch)
	assert.Nil(t, res.Entry)
	assert.InDelta(t, 25.0, res.Confidence, 1e-6)
}

func TestMatchDistanceBeyondOneClipsConfidence(t *testing.T) {
	res := NewMatcher(0.6).Match(Embedding{0}, NewGallery(entry("carol", 1.5)))

	assert.False(t, res.IsMatch)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestMatchToleranceBoundary(t *testing.T) {
	g := NewGallery(entry("dave", 0.5))

	assert.True(t, NewMatcher(0.5).Match(Embedding{0}, g).IsMatch)
	assert.False(t, NewMatcher(0.49).Match(Embedding{0}, g).IsMatch)
}

func TestMatchDimensionMismatchIsUnknown(t *testing.T) {
	res := NewMatcher(0.6).Match(Embedding{0, 0, 0}, NewGallery(entry("erin", 0, 0)))

	assert.False(t, res.IsMatch)
	assert.Equal(t, 0.0, res.Confidence)
}

// unitPair returns a 512-d unit reference and a unit query vector at the given cosine.
func unitPair(cos float64) (ref, query Embedding) {
	ref = make(Embedding, 512)
	query = make(Embedding, 512)
	ref[0] = 1
	query[0] = float32(cos)
	query[1] = float32(math.Sqrt(1 - cos*cos))
	return ref, query
}

func TestMatchArcFaceScaleEmbeddings(t *testing.T) {
	m := NewMatcher(CosineTolerance(0.4))

	tests := []struct {
		name       string
		cos        float64
		distance   float64
		confidence float64
		match      bool
	}{
		{"same person", 0.6, 0.8944, 10.56, true},
		{"at threshold", 0.41, 1.0863, 0, true},
		{"different person", 0.2, 1.2649, 0, false},
		{"unrelated", 0, 1.4142, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, query := unitPair(tt.cos)
			res := m.Match(query, NewGallery(entry("frank", ref...)))

			assert.Equal(t, tt.match, res.IsMatch)
			assert.InDelta(t, tt.distance, res.Distance, 1e-4)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
		})
	}
}
