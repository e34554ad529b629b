package detection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/recognition"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

type memImages struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemImages() *memImages {
	return &memImages{objects: map[string][]byte{}}
}

func (m *memImages) PutObject(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	return nil
}

func (m *memImages) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

type recordingWriter struct {
	events  []models.DetectionEvent
	matches [][]models.DetectionMatch
	err     error
}

func (w *recordingWriter) SaveDetection(_ context.Context, ev *models.DetectionEvent, matches []models.DetectionMatch) error {
	if w.err != nil {
		return w.err
	}
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	w.events = append(w.events, *ev)
	w.matches = append(w.matches, matches)
	return nil
}

type staticGallery struct {
	gallery *recognition.Gallery
	err     error
}

func (g staticGallery) Build(context.Context) (*recognition.Gallery, error) {
	return g.gallery, g.err
}

type scriptedProvider struct {
	boxes      []models.BoundingBox
	embeddings []recognition.Embedding
	locateErr  error
}

func (p *scriptedProvider) LocateFaces(context.Context, image.Image) ([]models.BoundingBox, error) {
	return p.boxes, p.locateErr
}

func (p *scriptedProvider) EmbedFaces(_ context.Context, _ image.Image, boxes []models.BoundingBox) ([]recognition.Embedding, error) {
	return p.embeddings[:len(boxes)], nil
}

type capturePublisher struct {
	published []any
	err       error
}

func (p *capturePublisher) PublishDetection(_ context.Context, _ models.DetectionMethod, data any) error {
	p.published = append(p.published, data)
	return p.err
}

var alice = recognition.GalleryEntry{
	CitizenID:  uuid.MustParse("11111111-1111-1111-1111-111111111111"),
	Name:       "Alice",
	NationalID: "A-001",
	Status:     models.CitizenStatusWanted,
	Embedding:  recognition.Embedding{0, 0},
}

type fixture struct {
	images    *memImages
	writer    *recordingWriter
	provider  *scriptedProvider
	publisher *capturePublisher
	svc       *Service
}

func newFixture(gallery *recognition.Gallery) *fixture {
	f := &fixture{
		images:    newMemImages(),
		writer:    &recordingWriter{},
		provider:  &scriptedProvider{},
		publisher: &capturePublisher{},
	}
	f.svc = NewService(f.images, f.writer, staticGallery{gallery: gallery}, f.provider,
		recognition.NewMatcher(0.6), f.publisher, time.Second)
	return f
}

func TestDetectZeroFaces(t *testing.T) {
	f := newFixture(recognition.NewGallery(alice))

	res, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 8, 8), Filename: "crowd.png"})
	require.NoError(t, err)

	assert.Empty(t, res.Detections)
	assert.Equal(t, 0, res.Event.TotalFaces)
	require.Len(t, f.writer.events, 1)
	assert.Empty(t, f.writer.matches[0])
	assert.Equal(t, models.MethodImageUpload, f.writer.events[0].Method)
	assert.Equal(t, "crowd.png", res.Event.ImageName)
	assert.Contains(t, f.images.objects, res.Event.ImageKey)
}

func TestDetectSingleMatch(t *testing.T) {
	f := newFixture(recognition.NewGallery(alice))
	box := models.BoundingBox{Top: 10, Right: 60, Bottom: 70, Left: 5}
	f.provider.boxes = []models.BoundingBox{box}
	f.provider.embeddings = []recognition.Embedding{{0.03, 0.04}} // distance 0.05

	res, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 100, 100)})
	require.NoError(t, err)

	require.Len(t, res.Detections, 1)
	d := res.Detections[0]
	assert.Equal(t, "Alice", d.Name)
	assert.Equal(t, models.CitizenStatusWanted, d.Status)
	require.NotNil(t, d.NationalID)
	assert.Equal(t, "A-001", *d.NationalID)
	assert.InDelta(t, 95.0, d.Confidence, 1e-9)
	assert.Equal(t, box, d.Box)

	ev := f.writer.events[0]
	assert.Equal(t, 1, ev.TotalFaces)
	assert.Equal(t, 1, ev.KnownFaces)
	assert.Equal(t, 0, ev.UnknownFaces)

	require.Len(t, f.writer.matches[0], 1)
	m := f.writer.matches[0][0]
	assert.True(t, m.IsMatch)
	require.NotNil(t, m.MatchedPersonID)
	assert.Equal(t, alice.CitizenID, *m.MatchedPersonID)
	assert.Equal(t, box, m.Box)
	assert.Len(t, f.publisher.published, 1)
}

func TestDetectMixedFacesKeepsCountsConsistent(t *testing.T) {
	f := newFixture(recognition.NewGallery(alice))
	f.provider.boxes = []models.BoundingBox{
		{Top: 0, Right: 10, Bottom: 10, Left: 0},
		{Top: 20, Right: 30, Bottom: 30, Left: 20},
		{Top: 5, Right: 5, Bottom: 5, Left: 5}, // degenerate
	}
	f.provider.embeddings = []recognition.Embedding{{0, 0}, {3, 4}}

	res, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 40, 40)})
	require.NoError(t, err)

	require.Len(t, res.Detections, 2)
	assert.Equal(t, "Alice", res.Detections[0].Name)
	assert.Equal(t, unknownName, res.Detections[1].Name)
	assert.Equal(t, models.CitizenStatusUnknown, res.Detections[1].Status)
	assert.Nil(t, res.Detections[1].NationalID)
	assert.Zero(t, res.Detections[1].Confidence)

	ev := res.Event
	assert.Equal(t, ev.TotalFaces, ev.KnownFaces+ev.UnknownFaces)
	for _, m := range f.writer.matches[0] {
		assert.Equal(t, m.IsMatch, m.MatchedPersonID != nil)
		assert.True(t, m.Box.Valid())
	}
}

func TestDetectEmptyGalleryNeverMatches(t *testing.T) {
	f := newFixture(recognition.NewGallery())
	f.provider.boxes = []models.BoundingBox{{Top: 0, Right: 10, Bottom: 10, Left: 0}}
	f.provider.embeddings = []recognition.Embedding{{0, 0}}

	res, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 20, 20)})
	require.NoError(t, err)

	require.Len(t, res.Detections, 1)
	assert.Equal(t, unknownName, res.Detections[0].Name)
	assert.Zero(t, res.Detections[0].Confidence)
	assert.False(t, f.writer.matches[0][0].IsMatch)
}

func TestDetectClientErrorsPersistNothing(t *testing.T) {
	tests := []struct {
		name  string
		image []byte
		want  error
	}{
		{"empty", nil, ErrEmptyImage},
		{"not an image", []byte("definitely not a png"), ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(recognition.NewGallery(alice))

			_, err := f.svc.Detect(context.Background(), Request{Image: tt.image})
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsClientError(err))
			assert.Empty(t, f.writer.events)
			assert.Empty(t, f.images.objects)
		})
	}
}

func TestDetectInternalFailures(t *testing.T) {
	t.Run("save fails", func(t *testing.T) {
		f := newFixture(recognition.NewGallery(alice))
		f.writer.err = errors.New("connection reset")

		_, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 8, 8)})
		require.Error(t, err)
		assert.False(t, IsClientError(err))
		assert.Empty(t, f.publisher.published)
	})

	t.Run("provider fails", func(t *testing.T) {
		f := newFixture(recognition.NewGallery(alice))
		f.provider.locateErr = errors.New("session crashed")

		_, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 8, 8)})
		require.Error(t, err)
		assert.False(t, IsClientError(err))
		assert.Empty(t, f.writer.events)
	})

	t.Run("gallery fails", func(t *testing.T) {
		f := newFixture(nil)
		f.svc.gallery = staticGallery{err: errors.New("registry down")}

		_, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 8, 8)})
		require.Error(t, err)
		assert.Empty(t, f.writer.events)
	})

	t.Run("publish failure is not fatal", func(t *testing.T) {
		f := newFixture(recognition.NewGallery(alice))
		f.publisher.err = errors.New("nats down")

		_, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 8, 8)})
		require.NoError(t, err)
		assert.Len(t, f.writer.events, 1)
	})
}

func TestDetectStampsUser(t *testing.T) {
	f := newFixture(recognition.NewGallery(alice))
	user := "officer-7"

	res, err := f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 8, 8), UserID: &user})
	require.NoError(t, err)
	require.NotNil(t, res.Event.UserID)
	assert.Equal(t, user, *res.Event.UserID)

	res, err = f.svc.Detect(context.Background(), Request{Image: pngBytes(t, 8, 8)})
	require.NoError(t, err)
	assert.Nil(t, res.Event.UserID)
}

func TestDetectStored(t *testing.T) {
	f := newFixture(recognition.NewGallery(alice))
	f.images.objects["detections/2026/01/01/job.png"] = pngBytes(t, 8, 8)
	user := "batch"

	res, err := f.svc.DetectStored(context.Background(), models.DetectJob{
		JobID:     uuid.New(),
		ImageKey:  "detections/2026/01/01/job.png",
		ImageName: "gate.png",
		UserID:    &user,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MethodQueuedUpload, res.Event.Method)
	assert.Equal(t, "gate.png", res.Event.ImageName)
	assert.Equal(t, "batch", *res.Event.UserID)

	_, err = f.svc.DetectStored(context.Background(), models.DetectJob{ImageKey: "missing.png"})
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestImageKey(t *testing.T) {
	at := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)

	key := ImageKey(at, "Photo.JPG", "jpeg")
	assert.True(t, strings.HasPrefix(key, "detections/2026/03/04/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	assert.True(t, strings.HasSuffix(ImageKey(at, "", "png"), ".png"))
	assert.True(t, strings.HasSuffix(ImageKey(at, "photo.", "png"), ".png"))
}

func TestUploadExt(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"keeps extension", "gate.PNG", ".png"},
		{"empty name", "", ".jpeg"},
		{"no extension", "photo", ".jpeg"},
		{"trailing dot", "photo.", ".jpeg"},
		{"overlong extension", "photo.averylongext", ".jpeg"},
		{"non alphanumeric", "photo.j%2fg", ".jpeg"},
		{"path in name", "../../etc/x.webp", ".webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UploadExt(tt.filename, "jpeg"))
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "x.png", displayName(`C:\uploads\x.png`, "k/abc.png"))
	assert.Equal(t, "abc.png", displayName("", "k/abc.png"))
}
