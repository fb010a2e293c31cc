package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linkshelf/server/internal/services"
)

// ThumbnailHandler serves resized attachment images
type ThumbnailHandler struct {
	attachments *services.AttachmentService
}

// NewThumbnailHandler creates a new ThumbnailHandler
func NewThumbnailHandler(attachments *services.AttachmentService) *ThumbnailHandler {
	return &ThumbnailHandler{attachments: attachments}
}

// GetThumbnail serves /images/thumbnails/{attachmentID}/{uuid}?size=640x>
func (h *ThumbnailHandler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	path, contentType, err := h.attachments.Thumbnail(r.Context(),
		chi.URLParam(r, "attachmentID"), chi.URLParam(r, "uuid"), r.URL.Query().Get("size"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Thumbnails never change for a given id and size
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, path)
}
