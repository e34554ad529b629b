package vision

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/vigilant-eye/facewatch/internal/config"
	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/observability"
	"github.com/vigilant-eye/facewatch/internal/recognition"
)

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"
)

// ONNXProvider implements recognition.EmbeddingProvider with RetinaFace and
// ArcFace. Sessions reuse their tensors, so calls are serialised.
type ONNXProvider struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewONNXProvider loads both models from cfg.ModelsDir. The runtime must be
// initialised first with InitRuntime.
func NewONNXProvider(cfg config.VisionConfig) (*ONNXProvider, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	det, err := NewDetector(filepath.Join(cfg.ModelsDir, detectorModel), float32(cfg.DetectionThreshold), opts)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	emb, err := NewEmbedder(filepath.Join(cfg.ModelsDir, embedderModel), opts)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXProvider{detector: det, embedder: emb}, nil
}

// LocateFaces returns face boxes in detector order, highest score first.
// Boxes that collapse after clamping to the image are dropped.
func (p *ONNXProvider) LocateFaces(ctx context.Context, img image.Image) ([]models.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	start := time.Now()
	hits, err := p.detector.Detect(img)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	boxes := make([]models.BoundingBox, 0, len(hits))
	for _, h := range hits {
		if box, ok := h.Box(img.Bounds()); ok {
			boxes = append(boxes, box)
		}
	}
	return boxes, nil
}

// EmbedFaces returns one embedding per box, in box order.
func (p *ONNXProvider) EmbedFaces(ctx context.Context, img image.Image, boxes []models.BoundingBox) ([]recognition.Embedding, error) {
	out := make([]recognition.Embedding, 0, len(boxes))
	for _, box := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		face := cropFace(img, box)
		if face == nil {
			return nil, fmt.Errorf("face box %v outside image %v", box.Array(), img.Bounds())
		}

		p.mu.Lock()
		start := time.Now()
		emb, err := p.embedder.Extract(face)
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		p.mu.Unlock()
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}

func (p *ONNXProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detector.Close()
	p.embedder.Close()
}
