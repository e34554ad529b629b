package dto

import "github.com/google/uuid"

type StatisticsQuery struct {
	Days int `form:"days"`
}

type OverviewStats struct {
	TotalDetections      int     `json:"total_detections"`
	TotalFacesDetected   int     `json:"total_faces_detected"`
	KnownFacesMatched    int     `json:"known_faces_matched"`
	UnknownFacesDetected int     `json:"unknown_faces_detected"`
	AvgProcessingTime    float64 `json:"avg_processing_time"`
	MatchRate            float64 `json:"match_rate"`
}

type DailyStats struct {
	Date              string  `json:"date"`
	Detections        int     `json:"detections"`
	TotalFaces        int     `json:"total_faces"`
	KnownFaces        int     `json:"known_faces"`
	UnknownFaces      int     `json:"unknown_faces"`
	AvgProcessingTime float64 `json:"avg_processing_time"`
}

type TopMatch struct {
	PersonID      uuid.UUID `json:"person_id"`
	Name          string    `json:"name"`
	NationalID    string    `json:"national_id"`
	Status        string    `json:"status"`
	MatchCount    int       `json:"match_count"`
	AvgConfidence float64   `json:"avg_confidence"`
}

type StatisticsResponse struct {
	Success      bool                     `json:"success"`
	WindowDays   int                      `json:"window_days"`
	Since        string                   `json:"since"`
	Overview     OverviewStats            `json:"overview"`
	DailyStats   []DailyStats             `json:"daily_stats"`
	TopMatches   []TopMatch               `json:"top_matches"`
	RecentEvents []DetectionEventResponse `json:"recent_events"`
}

type Alert struct {
	EventID    uuid.UUID `json:"event_id"`
	PersonID   uuid.UUID `json:"person_id"`
	Name       string    `json:"name"`
	NationalID string    `json:"national_id"`
	Confidence float64   `json:"confidence"`
	SpottedAt  string    `json:"spotted_at"`
}

type AlertListResponse struct {
	Success bool    `json:"success"`
	Alerts  []Alert `json:"alerts"`
}
