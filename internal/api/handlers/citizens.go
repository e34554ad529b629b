package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vigilant-eye/facewatch/internal/detection"
	"github.com/vigilant-eye/facewatch/internal/models"
	"github.com/vigilant-eye/facewatch/internal/recognition"
	"github.com/vigilant-eye/facewatch/internal/storage"
	"github.com/vigilant-eye/facewatch/pkg/dto"
)

type CitizenStore interface {
	CreateCitizen(ctx context.Context, c *models.Citizen) error
	GetCitizen(ctx context.Context, id uuid.UUID) (*models.Citizen, error)
	ListCitizens(ctx context.Context) ([]models.Citizen, error)
	UpdateCitizenStatus(ctx context.Context, id uuid.UUID, status models.CitizenStatus) (*models.Citizen, error)
}

type ObjectStore interface {
	ObjectWriter
	DeleteObject(ctx context.Context, key string) error
}

type CitizenHandler struct {
	db        CitizenStore
	images    ObjectStore
	maxUpload int64
}

func NewCitizenHandler(db CitizenStore, images ObjectStore, maxUpload int64) *CitizenHandler {
	return &CitizenHandler{db: db, images: images, maxUpload: maxUpload}
}

func (h *CitizenHandler) List(c *gin.Context) {
	citizens, err := h.db.ListCitizens(c.Request.Context())
	if err != nil {
		slog.Error("list citizens", "error", err)
		fail(c, http.StatusInternalServerError, "failed to list citizens")
		return
	}

	resp := make([]dto.CitizenResponse, 0, len(citizens))
	for _, ct := range citizens {
		resp = append(resp, citizenResponse(ct))
	}
	c.JSON(http.StatusOK, dto.CitizenListResponse{Success: true, Citizens: resp})
}

func (h *CitizenHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid citizen id")
		return
	}

	ct, err := h.db.GetCitizen(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CitizenEnvelope{Success: true, Citizen: citizenResponse(*ct)})
}

// Create registers a citizen from a multipart form with a reference picture.
// The picture must decode; whether it contains a face is decided at match time.
func (h *CitizenHandler) Create(c *gin.Context) {
	var form dto.CreateCitizenForm
	bindErr := c.ShouldBind(&form)
	fh, fileErr := c.FormFile("image")
	if bindErr != nil || fileErr != nil ||
		strings.TrimSpace(form.Name) == "" || strings.TrimSpace(form.NationalID) == "" {
		fail(c, http.StatusBadRequest, "All fields (name, national_id, address, image) are required")
		return
	}

	data, status, err := readUpload(fh, h.maxUpload)
	if err != nil {
		fail(c, status, err.Error())
		return
	}
	_, format, err := recognition.DecodeImage(data)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid image: "+err.Error())
		return
	}

	key := fmt.Sprintf("citizens/%s%s", uuid.NewString(), detection.UploadExt(fh.Filename, format))

	ctx := c.Request.Context()
	if err := h.images.PutObject(ctx, key, data, fh.Header.Get("Content-Type")); err != nil {
		slog.Error("store citizen picture", "key", key, "error", err)
		fail(c, http.StatusInternalServerError, "failed to store image")
		return
	}

	ct := &models.Citizen{
		Name:       strings.TrimSpace(form.Name),
		NationalID: strings.TrimSpace(form.NationalID),
		Address:    strings.TrimSpace(form.Address),
		PictureKey: key,
		Status:     models.CitizenStatusFree,
	}
	if err := h.db.CreateCitizen(ctx, ct); err != nil {
		if delErr := h.images.DeleteObject(ctx, key); delErr != nil {
			slog.Warn("remove orphaned citizen picture", "key", key, "error", delErr)
		}
		if errors.Is(err, storage.ErrDuplicateNationalID) {
			fail(c, http.StatusConflict, "Citizen with that National ID already exists")
			return
		}
		slog.Error("create citizen", "national_id", ct.NationalID, "error", err)
		fail(c, http.StatusInternalServerError, "failed to save citizen")
		return
	}

	c.JSON(http.StatusCreated, dto.CitizenEnvelope{
		Success: true,
		Message: "Citizen successfully added",
		Citizen: citizenResponse(*ct),
	})
}

// UpdateStatus handles POST /v1/citizens/:id/status/:action with action
// "wanted" or "free".
func (h *CitizenHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid citizen id")
		return
	}
	status, err := models.ParseCitizenStatus(c.Param("action"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ct, err := h.db.UpdateCitizenStatus(c.Request.Context(), id, status)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CitizenEnvelope{
		Success: true,
		Message: "Status updated to " + string(ct.Status),
		Citizen: citizenResponse(*ct),
	})
}

func (h *CitizenHandler) storeError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		fail(c, http.StatusNotFound, "citizen not found")
		return
	}
	slog.Error("citizen store", "path", c.FullPath(), "error", err)
	fail(c, http.StatusInternalServerError, "failed to read citizen")
}
