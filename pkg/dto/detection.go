package dto

import "github.com/google/uuid"

// ErrorResponse is returned by every endpoint on failure.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type DetectionItem struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	NationalID *string `json:"national_id"`
	Box        [4]int  `json:"box"` // top, right, bottom, left
}

type DetectionStatistics struct {
	TotalFaces     int     `json:"total_faces"`
	KnownFaces     int     `json:"known_faces"`
	UnknownFaces   int     `json:"unknown_faces"`
	ProcessingTime float64 `json:"processing_time"`
}

// DetectResponse is the result of POST /v1/detect.
type DetectResponse struct {
	Success    bool                `json:"success"`
	EventID    uuid.UUID           `json:"event_id"`
	Detections []DetectionItem     `json:"detections"`
	ImageURL   string              `json:"image_url"`
	Statistics DetectionStatistics `json:"statistics"`
}

// DetectJobResponse is the result of POST /v1/detect/async.
type DetectJobResponse struct {
	Success  bool      `json:"success"`
	JobID    uuid.UUID `json:"job_id"`
	ImageURL string    `json:"image_url"`
	Status   string    `json:"status"`
}

type DetectionEventResponse struct {
	ID             uuid.UUID `json:"id"`
	ImageName      string    `json:"image_name"`
	ImageURL       string    `json:"image_url"`
	TotalFaces     int       `json:"total_faces_detected"`
	KnownFaces     int       `json:"known_faces_matched"`
	UnknownFaces   int       `json:"unknown_faces_detected"`
	ProcessingTime float64   `json:"processing_time"`
	Method         string    `json:"detection_method"`
	UserID         *string   `json:"user_id"`
	CreatedAt      string    `json:"created_at"`
}

type DetectionMatchResponse struct {
	ID              uuid.UUID  `json:"id"`
	MatchedPersonID *uuid.UUID `json:"matched_person_id"`
	Confidence      float64    `json:"confidence_score"`
	IsMatch         bool       `json:"is_match"`
	Box             [4]int     `json:"box"`
	CreatedAt       string     `json:"created_at"`
}

type DetectionListResponse struct {
	Success bool                     `json:"success"`
	Events  []DetectionEventResponse `json:"events"`
	Total   int                      `json:"total"`
}

type DetectionDetailResponse struct {
	Success bool                     `json:"success"`
	Event   DetectionEventResponse   `json:"event"`
	Matches []DetectionMatchResponse `json:"matches"`
}

type ListQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// WSEvent is a WebSocket message for real-time event delivery.
type WSEvent struct {
	Type string                 `json:"type"` // detection_created
	Data DetectionEventResponse `json:"data"`
}
