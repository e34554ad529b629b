package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/stats"
	"github.com/vigilant-eye/facewatch/pkg/dto"
)

type Reporter interface {
	Report(ctx context.Context, days int) (*stats.Report, error)
	Alerts(ctx context.Context, days int) ([]models.PersonMatch, error)
}

type StatsHandler struct {
	reporter Reporter
}

func NewStatsHandler(reporter Reporter) *StatsHandler {
	return &StatsHandler{reporter: reporter}
}

// Statistics handles GET /v1/statistics?days=N.
func (h *StatsHandler) Statistics(c *gin.Context) {
	var q dto.StatisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, "days must be an integer")
		return
	}

	r, err := h.reporter.Report(c.Request.Context(), q.Days)
	if err != nil {
		h.reportError(c, err)
		return
	}

	resp := dto.StatisticsResponse{
		Success:    true,
		WindowDays: r.WindowDays,
		Since:      r.Since.Format(timeLayout),
		Overview: dto.OverviewStats{
			TotalDetections:      r.Overview.TotalDetections,
			TotalFacesDetected:   r.Overview.TotalFacesDetected,
			KnownFacesMatched:    r.Overview.KnownFacesMatched,
			UnknownFacesDetected: r.Overview.UnknownFacesDetected,
			AvgProcessingTime:    r.Overview.AvgProcessingTime,
			MatchRate:            r.Overview.MatchRate,
		},
		DailyStats:   make([]dto.DailyStats, 0, len(r.Daily)),
		TopMatches:   make([]dto.TopMatch, 0, len(r.TopMatches)),
		RecentEvents: make([]dto.DetectionEventResponse, 0, len(r.RecentEvents)),
	}
	for _, d := range r.Daily {
		resp.DailyStats = append(resp.DailyStats, dto.DailyStats{
			Date:              d.Date,
			Detections:        d.Detections,
			TotalFaces:        d.TotalFaces,
			KnownFaces:        d.KnownFaces,
			UnknownFaces:      d.UnknownFaces,
			AvgProcessingTime: d.AvgProcessingTime,
		})
	}
	for _, m := range r.TopMatches {
		resp.TopMatches = append(resp.TopMatches, dto.TopMatch{
			PersonID:      m.PersonID,
			Name:          m.Name,
			NationalID:    m.NationalID,
			Status:        string(m.Status),
			MatchCount:    m.MatchCount,
			AvgConfidence: m.AvgConfidence,
		})
	}
	for _, ev := range r.RecentEvents {
		resp.RecentEvents = append(resp.RecentEvents, EventResponse(ev))
	}

	c.JSON(http.StatusOK, resp)
}

// Alerts handles GET /v1/alerts?days=N: sightings of wanted citizens.
func (h *StatsHandler) Alerts(c *gin.Context) {
	var q dto.StatisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, "days must be an integer")
		return
	}

	matches, err := h.reporter.Alerts(c.Request.Context(), q.Days)
	if err != nil {
		h.reportError(c, err)
		return
	}

	alerts := make([]dto.Alert, 0, len(matches))
	for _, m := range matches {
		alerts = append(alerts, dto.Alert{
			EventID:    m.EventID,
			PersonID:   m.PersonID,
			Name:       m.Name,
			NationalID: m.NationalID,
			Confidence: m.Confidence,
			SpottedAt:  m.CreatedAt.Format(timeLayout),
		})
	}
	c.JSON(http.StatusOK, dto.AlertListResponse{Success: true, Alerts: alerts})
}

func (h *StatsHandler) reportError(c *gin.Context, err error) {
	if errors.Is(err, stats.ErrInvalidWindow) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("statistics query failed", "error", err)
	fail(c, http.StatusInternalServerError, "failed to compute statistics")
}
