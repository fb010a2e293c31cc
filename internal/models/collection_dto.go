package models

import "time"

// CreateCollectionRequest is the request body for creating a collection
type CreateCollectionRequest struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility,omitempty"` // defaults to private
}

// UpdateCollectionRequest is the request body for updating a collection
type UpdateCollectionRequest struct {
	Name       *string `json:"name,omitempty"`
	Visibility *string `json:"visibility,omitempty"` // must match the current value
}

// CollectionResponse is the API presentation of a collection
type CollectionResponse struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Visibility CollectionVisibility `json:"visibility"`
}

// NewCollectionResponse presents a collection
func NewCollectionResponse(c *Collection) *CollectionResponse {
	return &CollectionResponse{
		ID:         c.ID,
		Name:       c.Name,
		Visibility: c.Visibility,
	}
}

// CollectionPage is one page of a collection listing
type CollectionPage struct {
	Collections []*Collection
	Next        *Cursor
}

// CreateItemRequest is the request body for creating an item. LinkURL may
// point at another item's detail URL to clone it.
type CreateItemRequest struct {
	LinkURL     string  `json:"link_url"`
	ImageURL    *string `json:"image_url,omitempty"`
	Description string  `json:"description"`
}

// UpdateItemRequest is the request body for updating an item. Only
// Description is applied; the other fields are accepted and ignored.
type UpdateItemRequest struct {
	Description *string `json:"description,omitempty"`
	LinkURL     *string `json:"link_url,omitempty"`
	ItemType    *string `json:"item_type,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// ItemView joins an item with its shared data for presentation
type ItemView struct {
	Item          *CollectionItem
	Data          *ItemData
	UpvotedByUser bool
}

// ItemPage is one page of an item listing
type ItemPage struct {
	Items []*ItemView
	Next  *Cursor
}

// ItemResponse is the API presentation of an item
type ItemResponse struct {
	ID            string  `json:"id"`
	CollectionID  string  `json:"collection_id"`
	ItemType      string  `json:"item_type"`
	LinkURL       string  `json:"link_url"`
	PostCount     int     `json:"post_count"`
	UpvoteCount   int     `json:"upvote_count"`
	UpvotedByUser bool    `json:"upvoted_by_user"`
	RootItemID    string  `json:"root_item_id"`
	ImageURL      *string `json:"image_url"`
	ImagePending  bool    `json:"image_pending"`
	HTMLPreview   *string `json:"html_preview"`
	Description   string  `json:"description"`
	URL           string  `json:"url"`
}

// NewItemResponse presents an item. imageURL is nil exactly while the data
// has no image attachment.
func NewItemResponse(v *ItemView, imageURL *string, itemURL string) *ItemResponse {
	return &ItemResponse{
		ID:            v.Item.ID,
		CollectionID:  v.Item.CollectionID,
		ItemType:      v.Data.ItemType,
		LinkURL:       v.Data.LinkURL,
		PostCount:     v.Data.PostCount,
		UpvoteCount:   v.Data.UpvoteCount,
		UpvotedByUser: v.UpvotedByUser,
		RootItemID:    v.Data.RootItemID,
		ImageURL:      imageURL,
		ImagePending:  v.Data.ImagePending,
		HTMLPreview:   v.Data.HTMLPreview,
		Description:   v.Item.Description,
		URL:           itemURL,
	}
}

// UpvoteResponse is returned after casting an upvote
type UpvoteResponse struct {
	ItemID     string    `json:"item_id"`
	RootItemID string    `json:"root_item_id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}
