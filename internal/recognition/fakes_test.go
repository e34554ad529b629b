package recognition

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vigilant-eye/facewatch/internal/models"
)

// pngBytes encodes a blank image; its width selects the faces fakeProvider returns.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type fakeRegistry struct {
	citizens []models.Citizen
	err      error
}

func (r *fakeRegistry) ListCitizens(context.Context) ([]models.Citizen, error) {
	return r.citizens, r.err
}

type fakeImages map[string][]byte

func (f fakeImages) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := f[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeProvider struct {
	mu     sync.Mutex
	faces  map[int][]Embedding // keyed by image width
	embeds int
}

func (p *fakeProvider) LocateFaces(_ context.Context, img image.Image) ([]models.BoundingBox, error) {
	faces := p.faces[img.Bounds().Dx()]
	boxes := make([]models.BoundingBox, len(faces))
	for i := range faces {
		boxes[i] = models.BoundingBox{Top: i * 10, Right: i*10 + 8, Bottom: i*10 + 8, Left: i * 10}
	}
	return boxes, nil
}

func (p *fakeProvider) EmbedFaces(_ context.Context, img image.Image, boxes []models.BoundingBox) ([]Embedding, error) {
	p.mu.Lock()
	p.embeds++
	p.mu.Unlock()
	return p.faces[img.Bounds().Dx()][:len(boxes)], nil
}
