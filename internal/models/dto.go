package models

import "time"

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the body of every API error
type ErrorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// LinkPreview is what a link-preview service knows about a URL
type LinkPreview struct {
	Type   string   `json:"type"`
	Images []string `json:"images"`
	HTML   *string  `json:"html,omitempty"`
}

// FetchResult is the outcome of an HTTP fetch
type FetchResult struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// WSItemDataEnriched is pushed to subscribers once enrichment finishes
type WSItemDataEnriched struct {
	ItemDataID   string  `json:"item_data_id"`
	ItemType     string  `json:"item_type"`
	ImagePending bool    `json:"image_pending"`
	ImageURL     *string `json:"image_url"`
	Strategy     string  `json:"strategy,omitempty"`
}
