package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CollectionItem is a single curated link inside a collection. It refers to
// its collection by id only and survives the collection's deletion.
type CollectionItem struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collectionId"`
	UserID       string    `json:"userId"`
	Description  string    `json:"description"`
	State        State     `json:"state"`
	ItemDataID   string    `json:"itemDataId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewCollectionItem creates an active item. The item data reference is bound
// later, once the dedup engine has resolved it.
func NewCollectionItem(collectionID, userID, description string) (*CollectionItem, error) {
	if strings.TrimSpace(collectionID) == "" {
		return nil, ErrItemCollectionRequired
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrItemUserRequired
	}

	now := Now()
	return &CollectionItem{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		UserID:       userID,
		Description:  description,
		State:        StateActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsActive reports whether the item has not been deleted
func (i *CollectionItem) IsActive() bool {
	return i.State == StateActive
}

// ApplyUpdate changes the description only. Link, type and image are owned by
// creation and enrichment, so those fields in the patch are ignored.
func (i *CollectionItem) ApplyUpdate(req *UpdateItemRequest) {
	if req.Description != nil {
		i.Description = *req.Description
	}
	i.UpdatedAt = Now()
}

var (
	ErrItemNotFound           = &NotFoundError{Entity: "item"}
	ErrItemCollectionRequired = &ValidationError{Field: "collection_id", Message: "collection ID is required"}
	ErrItemUserRequired       = &ValidationError{Field: "user_id", Message: "user ID is required"}
	ErrItemLinkRequired       = &ValidationError{Field: "link_url", Message: "link_url is required"}
)
