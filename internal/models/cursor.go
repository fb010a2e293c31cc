package models

import (
	"encoding/base64"
	"strings"
	"time"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// Cursor marks the last row of a page in (created_at DESC, id DESC) order
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

var ErrInvalidCursor = &ValidationError{Field: "cursor", Message: "invalid pagination cursor"}

// Encode returns the opaque form handed to clients
func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque cursor. An empty string means the first page.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, ErrInvalidCursor
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{CreatedAt: createdAt.UTC(), ID: parts[1]}, nil
}

// ClampPageSize bounds a requested page size
func ClampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
