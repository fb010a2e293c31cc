package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment is a stored image owned by the attachment store. Its UUID is an
// unguessable token that must accompany the ID in thumbnail URLs.
type Attachment struct {
	ID          string    `json:"id"`
	UUID        string    `json:"uuid"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	StoredPath  string    `json:"storedPath"`
	Orientation int       `json:"orientation"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewAttachment creates attachment metadata. StoredPath is assigned by the store.
func NewAttachment(contentType string, size int64, checksum string) (*Attachment, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ErrAttachmentNotImage
	}
	if size <= 0 {
		return nil, ErrAttachmentEmpty
	}

	return &Attachment{
		ID:          uuid.New().String(),
		UUID:        uuid.New().String(),
		ContentType: contentType,
		Size:        size,
		Checksum:    checksum,
		Orientation: 1,
		CreatedAt:   Now(),
	}, nil
}

var (
	ErrAttachmentNotFound  = &NotFoundError{Entity: "attachment"}
	ErrAttachmentNotImage  = &ValidationError{Field: "content_type", Message: "attachment must be an image"}
	ErrAttachmentEmpty     = &ValidationError{Field: "size", Message: "attachment is empty"}
	ErrAttachmentTooLarge  = &ValidationError{Field: "size", Message: "attachment exceeds maximum size"}
	ErrPathTraversal       = &ValidationError{Field: "stored_path", Message: "path traversal detected"}
	ErrInvalidThumbnailDim = &ValidationError{Field: "size", Message: "invalid thumbnail size"}

	// ErrAttachmentCorrupt means the stored bytes no longer match the checksum
	ErrAttachmentCorrupt = errors.New("attachment checksum mismatch")
)
