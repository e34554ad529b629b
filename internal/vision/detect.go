package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/vigilant-eye/facewatch/internal/models"
)

// Detection is a raw detector hit in original-image pixels.
type Detection struct {
	X1, Y1, X2, Y2 float32
	Score          float32
}

// Box converts the hit to a face box clamped to bounds. ok is false when the
// clamped box is empty.
func (d Detection) Box(bounds image.Rectangle) (box models.BoundingBox, ok bool) {
	box = models.BoundingBox{
		Left:   clampInt(int(math.Floor(float64(d.X1))), bounds.Min.X, bounds.Max.X),
		Top:    clampInt(int(math.Floor(float64(d.Y1))), bounds.Min.Y, bounds.Max.Y),
		Right:  clampInt(int(math.Ceil(float64(d.X2))), bounds.Min.X, bounds.Max.X),
		Bottom: clampInt(int(math.Ceil(float64(d.Y2))), bounds.Min.Y, bounds.Max.Y),
	}
	return box, box.Valid()
}

// det_10g heads, in stride order 8/16/32. Each anchor cell carries two anchors,
// so rows per head = (640/stride)^2 * 2 and the model has no batch dimension.
var retinaHeads = []struct {
	stride                int
	scores, boxes, points string
}{
	{8, "448", "451", "454"},
	{16, "471", "474", "477"},
	{32, "494", "497", "500"},
}

const (
	detInputSize    = 640
	anchorsPerCell  = 2
	nmsIoUThreshold = 0.4
	detInputName    = "input.1"
	detMean         = 127.5
	detStd          = 128.0
)

// Detector runs RetinaFace face detection using ONNX Runtime.
// It is not safe for concurrent use; tensors are reused between runs.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    []*ort.Tensor[float32]
	boxes     []*ort.Tensor[float32]
	points    []*ort.Tensor[float32] // landmarks, bound but unused
	threshold float32
}

// NewDetector loads the RetinaFace model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	d := &Detector{threshold: threshold}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	for _, h := range retinaHeads {
		rows := int64((detInputSize / h.stride) * (detInputSize / h.stride) * anchorsPerCell)
		for _, spec := range []struct {
			dst  *[]*ort.Tensor[float32]
			cols int64
		}{{&d.scores, 1}, {&d.boxes, 4}, {&d.points, 10}} {
			t, err := ort.NewEmptyTensor[float32](ort.NewShape(rows, spec.cols))
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("create output tensor (stride %d): %w", h.stride, err)
			}
			*spec.dst = append(*spec.dst, t)
		}
	}

	// Output order: all score heads, then bbox heads, then landmark heads.
	var names []string
	var outputs []ort.Value
	for i, h := range retinaHeads {
		names = append(names, h.scores)
		outputs = append(outputs, d.scores[i])
	}
	for i, h := range retinaHeads {
		names = append(names, h.boxes)
		outputs = append(outputs, d.boxes[i])
	}
	for i, h := range retinaHeads {
		names = append(names, h.points)
		outputs = append(outputs, d.points[i])
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{detInputName}, names,
		[]ort.Value{d.input}, outputs, opts)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect locates faces in img, highest score first, after NMS.
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	b := img.Bounds()
	copy(d.input.GetData(), toCHW(img, detInputSize, detInputSize, detMean, detStd))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	hits := d.decode(float32(b.Dx())/detInputSize, float32(b.Dy())/detInputSize, b.Min)
	return nms(hits, nmsIoUThreshold), nil
}

// decode turns anchor-relative distances into pixel boxes.
func (d *Detector) decode(scaleX, scaleY float32, origin image.Point) []Detection {
	var hits []Detection
	for hi, h := range retinaHeads {
		scores := d.scores[hi].GetData()
		dist := d.boxes[hi].GetData()
		cells := detInputSize / h.stride
		st := float32(h.stride)

		for i, score := range scores {
			if score < d.threshold {
				continue
			}
			cell := i / anchorsPerCell
			ax := float32(cell%cells) * st
			ay := float32(cell/cells) * st
			hits = append(hits, Detection{
				X1:    (ax-dist[i*4+0]*st)*scaleX + float32(origin.X),
				Y1:    (ay-dist[i*4+1]*st)*scaleY + float32(origin.Y),
				X2:    (ax+dist[i*4+2]*st)*scaleX + float32(origin.X),
				Y2:    (ay+dist[i*4+3]*st)*scaleY + float32(origin.Y),
				Score: score,
			})
		}
	}
	return hits
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range d.scores {
		t.Destroy()
	}
	for _, t := range d.boxes {
		t.Destroy()
	}
	for _, t := range d.points {
		t.Destroy()
	}
}

// nms keeps the highest-scoring hit of every overlapping cluster.
func nms(hits []Detection, threshold float32) []Detection {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	kept := make([]Detection, 0, len(hits))
	for _, h := range hits {
		suppressed := false
		for _, k := range kept {
			if iou(h, k) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, h)
		}
	}
	return kept
}

func iou(a, b Detection) float32 {
	w := min(a.X2, b.X2) - max(a.X1, b.X1)
	h := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
