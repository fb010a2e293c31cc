package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CollectionVisibility represents access levels for a collection
type CollectionVisibility string

const (
	VisibilityPrivate CollectionVisibility = "private" // Only owner can see
	VisibilityPublic  CollectionVisibility = "public"  // Anyone can see
)

// State is the lifecycle state shared by collections and items
type State string

const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
)

// IsValidVisibility checks if a visibility value is valid
func IsValidVisibility(v string) bool {
	switch CollectionVisibility(v) {
	case VisibilityPrivate, VisibilityPublic:
		return true
	}
	return false
}

// Collection is a named, visibility-scoped container of items owned by one user
type Collection struct {
	ID         string               `json:"id"`
	UserID     string               `json:"userId"`
	Name       string               `json:"name"`
	Visibility CollectionVisibility `json:"visibility"`
	State      State                `json:"state"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

// NewCollection creates a new active collection. An empty visibility defaults to private.
func NewCollection(userID, name, visibility string) (*Collection, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrCollectionUserRequired
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrCollectionNameRequired
	}
	if visibility == "" {
		visibility = string(VisibilityPrivate)
	}
	if !IsValidVisibility(visibility) {
		return nil, ErrCollectionInvalidVisibility
	}

	now := Now()
	return &Collection{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       strings.TrimSpace(name),
		Visibility: CollectionVisibility(visibility),
		State:      StateActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsActive reports whether the collection has not been deleted
func (c *Collection) IsActive() bool {
	return c.State == StateActive
}

// ApplyUpdate validates and applies a patch. Visibility is immutable after
// creation, so a patch carrying a different visibility is rejected and
// nothing is changed.
func (c *Collection) ApplyUpdate(req *UpdateCollectionRequest) error {
	if req.Visibility != nil && CollectionVisibility(*req.Visibility) != c.Visibility {
		return ErrCollectionVisibilityImmutable
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return ErrCollectionNameRequired
		}
		c.Name = name
	}

	c.UpdatedAt = Now()
	return nil
}

// CanView checks if a user can view this collection
func (c *Collection) CanView(userID string) bool {
	// Owner can always view
	if userID != "" && c.UserID == userID {
		return true
	}

	return c.Visibility == VisibilityPublic
}

// CanEdit checks if a user can edit this collection
func (c *Collection) CanEdit(userID string) bool {
	return userID != "" && c.UserID == userID
}

// Now returns the current UTC time at the precision every supported database keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

var (
	ErrCollectionNotFound            = &NotFoundError{Entity: "collection"}
	ErrCollectionNameRequired        = &ValidationError{Field: "name", Message: "collection name is required"}
	ErrCollectionUserRequired        = &ValidationError{Field: "user_id", Message: "user ID is required"}
	ErrCollectionInvalidVisibility   = &ValidationError{Field: "visibility", Message: "invalid collection visibility"}
	ErrCollectionVisibilityImmutable = &ValidationError{Field: "visibility", Message: "visibility cannot be changed after creation"}
)
