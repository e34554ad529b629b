package models

import (
	"time"

	"github.com/google/uuid"
)

// DetectionMethod tags how an image reached the pipeline.
type DetectionMethod string

const (
	MethodImageUpload  DetectionMethod = "image_upload"
	MethodQueuedUpload DetectionMethod = "queued_upload"
)

// BoundingBox is a face location in source-image pixels.
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Valid reports whether the box has positive height and width.
func (b BoundingBox) Valid() bool {
	return b.Top < b.Bottom && b.Left < b.Right
}

// Array returns the box as [top, right, bottom, left].
func (b BoundingBox) Array() [4]int {
	return [4]int{b.Top, b.Right, b.Bottom, b.Left}
}

// DetectionEvent is one persisted image-analysis run.
type DetectionEvent struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	ImageName         string          `json:"image_name" db:"image_name"`
	ImageKey          string          `json:"image_key" db:"image_key"`
	TotalFaces        int             `json:"total_faces" db:"total_faces"`
	KnownFaces        int             `json:"known_faces" db:"known_faces"`
	UnknownFaces      int             `json:"unknown_faces" db:"unknown_faces"`
	ProcessingSeconds float64         `json:"processing_seconds" db:"processing_seconds"`
	Method            DetectionMethod `json:"method" db:"method"`
	UserID            *string         `json:"user_id,omitempty" db:"user_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// DetectionMatch is one face found within a DetectionEvent.
type DetectionMatch struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	EventID         uuid.UUID   `json:"event_id" db:"event_id"`
	MatchedPersonID *uuid.UUID  `json:"matched_person_id,omitempty" db:"matched_person_id"`
	Confidence      float64     `json:"confidence" db:"confidence"`
	IsMatch         bool        `json:"is_match" db:"is_match"`
	Box             BoundingBox `json:"box"`
	Embedding       []float32   `json:"-" db:"embedding"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// PersonMatch is a resolved positive match joined with its citizen, read
// back for reporting.
type PersonMatch struct {
	EventID    uuid.UUID     `db:"event_id"`
	PersonID   uuid.UUID     `db:"matched_person_id"`
	Name       string        `db:"name"`
	NationalID string        `db:"national_id"`
	Status     CitizenStatus `db:"status"`
	Confidence float64       `db:"confidence"`
	CreatedAt  time.Time     `db:"created_at"`
}

// DetectJob is the message published to NATS for queued detection.
type DetectJob struct {
	JobID       uuid.UUID `json:"job_id"`
	ImageKey    string    `json:"image_key"` // MinIO object key
	ImageName   string    `json:"image_name"`
	UserID      *string   `json:"user_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
