package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultItemType is the type of new link data until a preview lookup says otherwise
const DefaultItemType = "url"

// ItemData is the deduplicated metadata shared by every item that points at
// the same link. It is created once per normalized link and never deleted.
type ItemData struct {
	ID                string    `json:"id"`
	LinkURL           string    `json:"linkUrl"`
	ItemType          string    `json:"itemType"`
	PostCount         int       `json:"postCount"`
	UpvoteCount       int       `json:"upvoteCount"`
	RootItemID        string    `json:"rootItemId"`
	ImageAttachmentID *string   `json:"imageAttachmentId,omitempty"`
	ImagePending      bool      `json:"imagePending"`
	HTMLPreview       *string   `json:"htmlPreview,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	// Explicit image URL given at creation, kept so replayed jobs can use it
	RequestedImageURL *string `json:"-"`
	// Set once the job system gives up; the record stays pending
	AbandonedAt *time.Time `json:"-"`

	// Joined from attachments when present
	Image *Attachment `json:"-"`
}

// NewItemData creates pending metadata for a normalized link introduced by rootItemID
func NewItemData(linkURL, rootItemID string) *ItemData {
	now := Now()
	return &ItemData{
		ID:           uuid.New().String(),
		LinkURL:      linkURL,
		ItemType:     DefaultItemType,
		PostCount:    1,
		RootItemID:   rootItemID,
		ImagePending: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Upvote is one member of an item data's upvote set
type Upvote struct {
	ItemDataID string    `json:"itemDataId"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EnrichmentResult is what the enrichment pipeline writes back when it leaves
// the pending state. Empty fields leave the stored values untouched.
type EnrichmentResult struct {
	ItemType          string
	HTMLPreview       *string
	ImageAttachmentID *string
	Strategy          string
}

// HasImage reports whether a strategy produced an image
func (r *EnrichmentResult) HasImage() bool {
	return r.ImageAttachmentID != nil
}

// ErrItemDataNotFound is returned when an item points at a missing record
var ErrItemDataNotFound = &NotFoundError{Entity: "item data"}
