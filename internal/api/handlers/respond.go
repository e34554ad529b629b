package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/pkg/dto"
)

const timeLayout = time.RFC3339

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, dto.ErrorResponse{Success: false, Error: msg})
}

// ImageURL is the API path that serves a stored object.
func ImageURL(key string) string {
	if key == "" {
		return ""
	}
	return "/v1/images/" + key
}

// EventResponse converts a persisted event to its API shape.
func EventResponse(ev models.DetectionEvent) dto.DetectionEventResponse {
	return dto.DetectionEventResponse{
		ID:             ev.ID,
		ImageName:      ev.ImageName,
		ImageURL:       ImageURL(ev.ImageKey),
		TotalFaces:     ev.TotalFaces,
		KnownFaces:     ev.KnownFaces,
		UnknownFaces:   ev.UnknownFaces,
		ProcessingTime: ev.ProcessingSeconds,
		Method:         string(ev.Method),
		UserID:         ev.UserID,
		CreatedAt:      ev.CreatedAt.Format(timeLayout),
	}
}

func citizenResponse(ct models.Citizen) dto.CitizenResponse {
	return dto.CitizenResponse{
		ID:         ct.ID,
		Name:       ct.Name,
		NationalID: ct.NationalID,
		Address:    ct.Address,
		PictureURL: ImageURL(ct.PictureKey),
		Status:     string(ct.Status),
		CreatedAt:  ct.CreatedAt.Format(timeLayout),
		UpdatedAt:  ct.UpdatedAt.Format(timeLayout),
	}
}

// readUpload reads a multipart file, rejecting anything above limit bytes.
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, int, error) {
	if limit > 0 && fh.Size > limit {
		return nil, http.StatusRequestEntityTooLarge, errUploadTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	defer f.Close()

	r := io.Reader(f)
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, http.StatusRequestEntityTooLarge, errUploadTooLarge
	}
	return data, http.StatusOK, nil
}
