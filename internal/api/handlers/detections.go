package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/storage"
	"github.com/vigilant-eye/facewatch/pkg/dto"
)

type EventReader interface {
	ListEvents(ctx context.Context, limit, offset int) ([]models.DetectionEvent, int, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*models.DetectionEvent, []models.DetectionMatch, error)
}

type DetectionHandler struct {
	db EventReader
}

func NewDetectionHandler(db EventReader) *DetectionHandler {
	return &DetectionHandler{db: db}
}

func (h *DetectionHandler) List(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.Limit < 0 || q.Offset < 0 {
		fail(c, http.StatusBadRequest, "invalid limit or offset")
		return
	}

	events, total, err := h.db.ListEvents(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		slog.Error("list detections", "error", err)
		fail(c, http.StatusInternalServerError, "failed to list detections")
		return
	}

	resp := make([]dto.DetectionEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, EventResponse(ev))
	}
	c.JSON(http.StatusOK, dto.DetectionListResponse{Success: true, Events: resp, Total: total})
}

func (h *DetectionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid detection id")
		return
	}

	ev, matches, err := h.db.GetEvent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fail(c, http.StatusNotFound, "detection not found")
			return
		}
		slog.Error("get detection", "id", id, "error", err)
		fail(c, http.StatusInternalServerError, "failed to read detection")
		return
	}

	resp := dto.DetectionDetailResponse{
		Success: true,
		Event:   EventResponse(*ev),
		Matches: make([]dto.DetectionMatchResponse, 0, len(matches)),
	}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, dto.DetectionMatchResponse{
			ID:              m.ID,
			MatchedPersonID: m.MatchedPersonID,
			Confidence:      m.Confidence,
			IsMatch:         m.IsMatch,
			Box:             m.Box.Array(),
			CreatedAt:       m.CreatedAt.Format(timeLayout),
		})
	}
	c.JSON(http.StatusOK, resp)
}
