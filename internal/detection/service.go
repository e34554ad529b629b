// Package detection runs one image through face location, gallery matching
// and event persistence.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/observability"
	"github.com/vigilant-eye/facewatch/internal/recognition"
)

const unknownName = "Unknown"

var (
	// ErrEmptyImage is returned when no image bytes were supplied.
	ErrEmptyImage = errors.New("no image provided")
	// ErrInvalidImage is returned when the image cannot be loaded or decoded.
	ErrInvalidImage = errors.New("invalid image")
)

// IsClientError reports whether err was caused by the submitted input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyImage) || errors.Is(err, ErrInvalidImage)
}

type ImageStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type EventWriter interface {
	SaveDetection(ctx context.Context, ev *models.DetectionEvent, matches []models.DetectionMatch) error
}

type GallerySource interface {
	Build(ctx context.Context) (*recognition.Gallery, error)
}

type Publisher interface {
	PublishDetection(ctx context.Context, method models.DetectionMethod, data any) error
}

// Request is one uploaded image. UserID is nil for anonymous callers.
type Request struct {
	Image       []byte
	Filename    string
	ContentType string
	UserID      *string
}

// Detection is the caller-facing outcome for one face.
type Detection struct {
	Name       string
	Confidence float64
	Status     models.CitizenStatus
	NationalID *string
	PersonID   *uuid.UUID
	Box        models.BoundingBox
}

type Result struct {
	Event      models.DetectionEvent
	Detections []Detection
}

type Service struct {
	images    ImageStore
	events    EventWriter
	gallery   GallerySource
	provider  recognition.EmbeddingProvider
	matcher   *recognition.Matcher
	publisher Publisher
	timeout   time.Duration
}

// NewService wires the pipeline. publisher may be nil; timeout <= 0 disables
// the per-run budget.
func NewService(images ImageStore, events EventWriter, gallery GallerySource, provider recognition.EmbeddingProvider,
	matcher *recognition.Matcher, publisher Publisher, timeout time.Duration) *Service {
	return &Service{
		images:    images,
		events:    events,
		gallery:   gallery,
		provider:  provider,
		matcher:   matcher,
		publisher: publisher,
		timeout:   timeout,
	}
}

// Detect stores the uploaded image, classifies every face in it and persists
// one event with its matches.
func (s *Service) Detect(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if len(req.Image) == 0 {
		return nil, ErrEmptyImage
	}
	img, format, err := recognition.DecodeImage(req.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	ctx, cancel := s.withBudget(ctx)
	defer cancel()

	key := ImageKey(start, req.Filename, format)
	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/" + format
	}
	if err := s.images.PutObject(ctx, key, req.Image, contentType); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	return s.run(ctx, run{
		img:       img,
		imageKey:  key,
		imageName: displayName(req.Filename, key),
		userID:    req.UserID,
		method:    models.MethodImageUpload,
		start:     start,
	})
}

// DetectStored runs a queued job against an image already in storage.
func (s *Service) DetectStored(ctx context.Context, job models.DetectJob) (*Result, error) {
	start := time.Now()

	ctx, cancel := s.withBudget(ctx)
	defer cancel()

	data, err := s.images.GetObject(ctx, job.ImageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrInvalidImage, job.ImageKey, err)
	}
	img, _, err := recognition.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return s.run(ctx, run{
		img:       img,
		imageKey:  job.ImageKey,
		imageName: displayName(job.ImageName, job.ImageKey),
		userID:    job.UserID,
		method:    models.MethodQueuedUpload,
		start:     start,
	})
}

func (s *Service) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

type run struct {
	img       image.Image
	imageKey  string
	imageName string
	userID    *string
	method    models.DetectionMethod
	start     time.Time
}

func (s *Service) run(ctx context.Context, r run) (*Result, error) {
	gallery, err := s.gallery.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build gallery: %w", err)
	}

	boxes, err := s.provider.LocateFaces(ctx, r.img)
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}
	valid := boxes[:0:0]
	for _, b := range boxes {
		if b.Valid() {
			valid = append(valid, b)
		} else {
			slog.Warn("dropping degenerate face box", "image", r.imageKey, "box", b.Array())
		}
	}
	boxes = valid

	var embeddings []recognition.Embedding
	if len(boxes) > 0 {
		embeddings, err = s.provider.EmbedFaces(ctx, r.img, boxes)
		if err != nil {
			return nil, fmt.Errorf("embed faces: %w", err)
		}
		if len(embeddings) != len(boxes) {
			return nil, fmt.Errorf("embed faces: got %d embeddings for %d boxes", len(embeddings), len(boxes))
		}
	}

	detections := make([]Detection, len(boxes))
	matches := make([]models.DetectionMatch, len(boxes))
	known := 0
	for i, box := range boxes {
		res := s.matcher.Match(embeddings[i], gallery)
		detections[i], matches[i] = classify(res, box, embeddings[i])
		if res.IsMatch {
			known++
		}
	}

	ev := models.DetectionEvent{
		ImageName:         r.imageName,
		ImageKey:          r.imageKey,
		TotalFaces:        len(detections),
		KnownFaces:        known,
		UnknownFaces:      len(detections) - known,
		ProcessingSeconds: time.Since(r.start).Seconds(),
		Method:            r.method,
		UserID:            r.userID,
	}

	// Nothing is written until every face has been classified.
	if err := s.events.SaveDetection(ctx, &ev, matches); err != nil {
		return nil, fmt.Errorf("save detection: %w", err)
	}

	method := string(r.method)
	observability.DetectionsTotal.WithLabelValues(method).Inc()
	observability.FacesDetected.WithLabelValues(method).Add(float64(ev.TotalFaces))
	observability.FacesRecognized.WithLabelValues(method).Add(float64(ev.KnownFaces))

	slog.Info("detection completed",
		"event_id", ev.ID, "method", method, "faces", ev.TotalFaces, "known", ev.KnownFaces,
		"gallery", gallery.Len(), "duration", time.Since(r.start).String())

	if s.publisher != nil {
		if err := s.publisher.PublishDetection(ctx, r.method, ev); err != nil {
			slog.Warn("publish detection failed", "event_id", ev.ID, "error", err)
		}
	}

	return &Result{Event: ev, Detections: detections}, nil
}

// classify turns a match result into the caller-facing detection and the
// record to persist. The matched citizen id comes straight from the gallery.
func classify(res recognition.MatchResult, box models.BoundingBox, emb recognition.Embedding) (Detection, models.DetectionMatch) {
	d := Detection{
		Name:       unknownName,
		Confidence: res.Confidence,
		Status:     models.CitizenStatusUnknown,
		Box:        box,
	}
	m := models.DetectionMatch{
		Confidence: res.Confidence,
		IsMatch:    res.IsMatch,
		Box:        box,
		Embedding:  emb,
	}
	if res.IsMatch && res.Entry != nil {
		id := res.Entry.CitizenID
		nationalID := res.Entry.NationalID
		d.Name = res.Entry.Name
		d.Status = res.Entry.Status
		d.NationalID = &nationalID
		d.PersonID = &id
		m.MatchedPersonID = &id
	}
	return d, m
}

// ImageKey builds the storage key for an upload received at t.
func ImageKey(t time.Time, filename, format string) string {
	return fmt.Sprintf("detections/%s/%s%s", t.UTC().Format("2006/01/02"), uuid.NewString(), UploadExt(filename, format))
}

// UploadExt returns the lowercased extension of filename, or "."+format when
// the name has none, a bare dot, more than five characters or anything but
// letters and digits.
func UploadExt(filename, format string) string {
	ext := strings.ToLower(path.Ext(path.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 || strings.IndexFunc(ext[1:], notAlnum) >= 0 {
		return "." + format
	}
	return ext
}

func notAlnum(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}

func displayName(name, key string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return path.Base(key)
	}
	return name
}
