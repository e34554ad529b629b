package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/vigilant-eye/facewatch/internal/recognition"
)

const (
	embInputSize = 112 // ArcFace w600k_r50
	embDim       = 512
	embMean      = 127.5
	embStd       = 127.5
)

// Embedder extracts ArcFace face descriptors with ONNX Runtime.
// It is not safe for concurrent use.
type Embedder struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewEmbedder loads the ArcFace model. opts may be nil.
func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embInputSize, embInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, embDim))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{input},
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{session: session, input: input, output: output}, nil
}

// Extract returns the L2-normalised embedding of a face crop.
func (e *Embedder) Extract(face image.Image) (recognition.Embedding, error) {
	copy(e.input.GetData(), toCHW(face, embInputSize, embInputSize, embMean, embStd))

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	emb := make(recognition.Embedding, embDim)
	copy(emb, e.output.GetData())
	normalize(emb)
	return emb, nil
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
}

// normalize scales v to unit length in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
