package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linkshelf/server/internal/middleware"
	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/services"
)

// CollectionHandler handles collection API endpoints
type CollectionHandler struct {
	collectionService *services.CollectionService
	baseURL           string
}

// NewCollectionHandler creates a new CollectionHandler
func NewCollectionHandler(collectionService *services.CollectionService, baseURL string) *CollectionHandler {
	return &CollectionHandler{
		collectionService: collectionService,
		baseURL:           baseURL,
	}
}

// ListCollections returns one page of a user's collections visible to the caller
func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cursor, perPage := pageParams(r)

	page, err := h.collectionService.ListCollections(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "userID"), cursor, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]*models.CollectionResponse, 0, len(page.Collections))
	for _, c := range page.Collections {
		resp = append(resp, models.NewCollectionResponse(c))
	}

	setNextLink(w, r, h.baseURL, page.Next, perPage)
	writeJSON(w, http.StatusOK, resp)
}

// CreateCollection creates a collection for the caller. The path user must
// be the caller.
func (h *CollectionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserIDFromContext(r.Context())
	if actorID == "" || actorID != chi.URLParam(r, "userID") {
		writeError(w, r, models.NewNotAuthorized("create collections"))
		return
	}

	var req models.CreateCollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	collection, err := h.collectionService.CreateCollection(r.Context(), actorID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.NewCollectionResponse(collection))
}

// GetCollection returns a collection by ID
func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	collection, err := h.collectionService.GetCollection(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "collectionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if owner := chi.URLParam(r, "userID"); owner != "" && owner != collection.UserID {
		writeError(w, r, models.ErrCollectionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, models.NewCollectionResponse(collection))
}

// UpdateCollection renames a collection
func (h *CollectionHandler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	collection, err := h.collectionService.UpdateCollection(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "collectionID"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewCollectionResponse(collection))
}

// DeleteCollection soft deletes a collection
func (h *CollectionHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	err := h.collectionService.DeleteCollection(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "collectionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
