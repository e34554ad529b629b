package recognition

import (
	"context"
	"image"

	"github.com/vigilant-eye/facewatch/internal/models"
)

// EmbeddingProvider locates faces in an image and describes each one.
// EmbedFaces returns one embedding per box, in box order.
type EmbeddingProvider interface {
	LocateFaces(ctx context.Context, img image.Image) ([]models.BoundingBox, error)
	EmbedFaces(ctx context.Context, img image.Image, boxes []models.BoundingBox) ([]Embedding, error)
}

// Registry is the read side of the citizen registry.
type Registry interface {
	ListCitizens(ctx context.Context) ([]models.Citizen, error)
}

// ImageSource reopens stored images by key.
type ImageSource interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}
