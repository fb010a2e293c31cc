package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linkshelf/server/internal/middleware"
	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/services"
)

// ItemHandler handles collection item endpoints
type ItemHandler struct {
	collectionService *services.CollectionService
	baseURL           string
}

// NewItemHandler creates a new ItemHandler
func NewItemHandler(collectionService *services.CollectionService, baseURL string) *ItemHandler {
	return &ItemHandler{
		collectionService: collectionService,
		baseURL:           baseURL,
	}
}

// ListItems returns one page of a collection's items
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	cursor, perPage := pageParams(r)

	page, err := h.collectionService.ListItems(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "collectionID"), cursor, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]*models.ItemResponse, 0, len(page.Items))
	for _, v := range page.Items {
		resp = append(resp, h.collectionService.Present(v))
	}

	setNextLink(w, r, h.baseURL, page.Next, perPage)
	writeJSON(w, http.StatusOK, resp)
}

// CreateItem adds a link, or a clone of another item, to a collection
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req models.CreateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.collectionService.CreateItem(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "collectionID"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := h.collectionService.Present(view)
	w.Header().Set("Location", resp.URL)
	writeJSON(w, http.StatusCreated, resp)
}

// GetItem returns a single item
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.collectionService.GetItem(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.collectionService.Present(view))
}

// UpdateItem changes an item's description
func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.collectionService.UpdateItem(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "itemID"), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.collectionService.Present(view))
}

// DeleteItem soft deletes an item
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	err := h.collectionService.DeleteItem(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Upvote adds the caller's upvote
func (h *ItemHandler) Upvote(w http.ResponseWriter, r *http.Request) {
	resp, err := h.collectionService.UpvoteItem(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// RemoveUpvote withdraws the caller's upvote
func (h *ItemHandler) RemoveUpvote(w http.ResponseWriter, r *http.Request) {
	err := h.collectionService.RemoveUpvote(r.Context(),
		middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
