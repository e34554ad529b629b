package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vigilant-eye/facewatch/internal/auth"
	"github.com/vigilant-eye/facewatch/internal/detection"
	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/recognition"
	"github.com/vigilant-eye/facewatch/pkg/dto"
)

var errUploadTooLarge = errors.New("image exceeds upload limit")

// Detector runs the synchronous pipeline.
type Detector interface {
	Detect(ctx context.Context, req detection.Request) (*detection.Result, error)
}

type ObjectWriter interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type JobPublisher interface {
	PublishJob(ctx context.Context, job models.DetectJob) error
}

type DetectHandler struct {
	detector  Detector
	images    ObjectWriter
	jobs      JobPublisher
	maxUpload int64
}

func NewDetectHandler(detector Detector, images ObjectWriter, jobs JobPublisher, maxUpload int64) *DetectHandler {
	return &DetectHandler{detector: detector, images: images, jobs: jobs, maxUpload: maxUpload}
}

// Detect handles POST /v1/detect with a multipart "image" field.
func (h *DetectHandler) Detect(c *gin.Context) {
	if h.detector == nil {
		fail(c, http.StatusServiceUnavailable, "face detection unavailable")
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, "No image provided")
		return
	}
	data, status, err := readUpload(fh, h.maxUpload)
	if err != nil {
		fail(c, status, err.Error())
		return
	}

	res, err := h.detector.Detect(c.Request.Context(), detection.Request{
		Image:       data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		UserID:      auth.UserID(c),
	})
	if err != nil {
		switch {
		case detection.IsClientError(err):
			fail(c, http.StatusBadRequest, "Failed to load uploaded image: "+err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			slog.Error("detection timed out", "file", fh.Filename, "error", err)
			fail(c, http.StatusGatewayTimeout, "detection timed out")
		default:
			slog.Error("detection failed", "file", fh.Filename, "error", err)
			fail(c, http.StatusInternalServerError, "internal error while processing image")
		}
		return
	}

	items := make([]dto.DetectionItem, 0, len(res.Detections))
	for _, d := range res.Detections {
		items = append(items, dto.DetectionItem{
			Name:       d.Name,
			Confidence: d.Confidence,
			Status:     string(d.Status),
			NationalID: d.NationalID,
			Box:        d.Box.Array(),
		})
	}

	c.JSON(http.StatusOK, dto.DetectResponse{
		Success:    true,
		EventID:    res.Event.ID,
		Detections: items,
		ImageURL:   ImageURL(res.Event.ImageKey),
		Statistics: dto.DetectionStatistics{
			TotalFaces:     res.Event.TotalFaces,
			KnownFaces:     res.Event.KnownFaces,
			UnknownFaces:   res.Event.UnknownFaces,
			ProcessingTime: res.Event.ProcessingSeconds,
		},
	})
}

// DetectAsync stores the image and queues it for a worker.
func (h *DetectHandler) DetectAsync(c *gin.Context) {
	if h.jobs == nil {
		fail(c, http.StatusServiceUnavailable, "job queue not available")
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, "No image provided")
		return
	}
	data, status, err := readUpload(fh, h.maxUpload)
	if err != nil {
		fail(c, status, err.Error())
		return
	}

	_, format, err := recognition.DecodeImage(data)
	if err != nil {
		fail(c, http.StatusBadRequest, "Failed to load uploaded image: "+err.Error())
		return
	}

	now := time.Now()
	key := detection.ImageKey(now, fh.Filename, format)
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/" + format
	}
	if err := h.images.PutObject(c.Request.Context(), key, data, contentType); err != nil {
		slog.Error("store queued image", "key", key, "error", err)
		fail(c, http.StatusInternalServerError, "failed to store image")
		return
	}

	job := models.DetectJob{
		JobID:       uuid.New(),
		ImageKey:    key,
		ImageName:   fh.Filename,
		UserID:      auth.UserID(c),
		SubmittedAt: now,
	}
	if err := h.jobs.PublishJob(c.Request.Context(), job); err != nil {
		slog.Error("queue detect job", "job_id", job.JobID, "error", err)
		fail(c, http.StatusInternalServerError, "failed to queue detection")
		return
	}

	c.JSON(http.StatusAccepted, dto.DetectJobResponse{
		Success:  true,
		JobID:    job.JobID,
		ImageURL: ImageURL(key),
		Status:   "queued",
	})
}
