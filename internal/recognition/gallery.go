package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/observability"
)

// GalleryEntry is one known citizen with the embedding of the first face
// found in their reference picture.
type GalleryEntry struct {
	CitizenID  uuid.UUID
	Name       string
	NationalID string
	Status     models.CitizenStatus
	Embedding  Embedding
}

// Gallery is a request-scoped, linearly scanned set of known faces.
type Gallery struct {
	entries    []GalleryEntry
	embeddings []Embedding
}

func NewGallery(entries ...GalleryEntry) *Gallery {
	g := &Gallery{
		entries:    make([]GalleryEntry, 0, len(entries)),
		embeddings: make([]Embedding, 0, len(entries)),
	}
	for _, e := range entries {
		g.add(e)
	}
	return g
}

func (g *Gallery) add(e GalleryEntry) {
	g.entries = append(g.entries, e)
	g.embeddings = append(g.embeddings, e.Embedding)
}

func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Entry returns the entry at index i.
func (g *Gallery) Entry(i int) GalleryEntry {
	return g.entries[i]
}

// Embeddings returns the embeddings index-aligned with the entries.
func (g *Gallery) Embeddings() []Embedding {
	return g.embeddings
}

// GalleryBuilder derives a Gallery from the current citizen registry.
type GalleryBuilder struct {
	registry Registry
	images   ImageSource
	provider EmbeddingProvider
	cache    *cache.Cache // nil when disabled
}

// NewGalleryBuilder returns a builder. A positive cacheTTL keeps reference
// embeddings across builds; citizens whose picture changes get a new key.
func NewGalleryBuilder(registry Registry, images ImageSource, provider EmbeddingProvider, cacheTTL time.Duration) *GalleryBuilder {
	b := &GalleryBuilder{
		registry: registry,
		images:   images,
		provider: provider,
	}
	if cacheTTL > 0 {
		b.cache = cache.New(cacheTTL, cacheTTL*2)
	}
	return b
}

// Build scans every citizen and embeds the first face of their picture.
// Citizens without a usable face are skipped and logged, never surfaced.
func (b *GalleryBuilder) Build(ctx context.Context) (*Gallery, error) {
	start := time.Now()

	citizens, err := b.registry.ListCitizens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list citizens: %w", err)
	}

	g := NewGallery()
	for _, c := range citizens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		emb, reason, err := b.referenceEmbedding(ctx, c)
		if reason != "" {
			observability.GallerySkipped.WithLabelValues(reason).Inc()
			slog.Warn("gallery: skipping citizen",
				"citizen_id", c.ID, "picture", c.PictureKey, "reason", reason, "error", err)
			continue
		}

		status := c.Status
		if !status.Known() {
			status = models.CitizenStatusUnknown
		}
		g.add(GalleryEntry{
			CitizenID:  c.ID,
			Name:       c.Name,
			NationalID: c.NationalID,
			Status:     status,
			Embedding:  emb,
		})
	}

	// A cancelled context makes every fetch fail; don't hand back a gallery
	// that merely looks empty.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	observability.GallerySize.Set(float64(g.Len()))
	observability.GalleryBuildDuration.Observe(time.Since(start).Seconds())
	slog.Debug("gallery built", "citizens", len(citizens), "entries", g.Len(), "duration", time.Since(start).String())

	return g, nil
}

// referenceEmbedding returns the embedding for c, or a non-empty skip reason.
func (b *GalleryBuilder) referenceEmbedding(ctx context.Context, c models.Citizen) (Embedding, string, error) {
	if c.PictureKey == "" {
		return nil, "no_picture", nil
	}

	key := c.ID.String() + "|" + c.PictureKey
	if b.cache != nil {
		if cached, ok := b.cache.Get(key); ok {
			return cached.(Embedding), "", nil
		}
	}

	data, err := b.images.GetObject(ctx, c.PictureKey)
	if err != nil {
		return nil, "fetch", err
	}

	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, "decode", err
	}

	boxes, err := b.provider.LocateFaces(ctx, img)
	if err != nil {
		return nil, "locate", err
	}
	if len(boxes) == 0 {
		return nil, "no_face", nil
	}

	embs, err := b.provider.EmbedFaces(ctx, img, boxes[:1])
	if err != nil {
		return nil, "embed", err
	}
	if len(embs) == 0 || len(embs[0]) == 0 {
		return nil, "embed", fmt.Errorf("provider returned no embedding")
	}

	if b.cache != nil {
		b.cache.Set(key, embs[0], cache.DefaultExpiration)
	}
	return embs[0], "", nil
}
