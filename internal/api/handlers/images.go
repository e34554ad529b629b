package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vigilant-eye/facewatch/internal/storage"
)

type ObjectOpener interface {
	OpenObject(ctx context.Context, key string) (io.ReadCloser, int64, string, error)
}

type ImageHandler struct {
	images ObjectOpener
}

func NewImageHandler(images ObjectOpener) *ImageHandler {
	return &ImageHandler{images: images}
}

// Get streams a stored image by key (GET /v1/images/*key).
func (h *ImageHandler) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		fail(c, http.StatusBadRequest, "invalid image key")
		return
	}

	rc, size, contentType, err := h.images.OpenObject(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fail(c, http.StatusNotFound, "image not found")
			return
		}
		slog.Error("open image", "key", key, "error", err)
		fail(c, http.StatusInternalServerError, "failed to read image")
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, size, contentType, rc, map[string]string{
		"Cache-Control": "private, max-age=86400",
	})
}
