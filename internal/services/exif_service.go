package services

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"
)

// EXIFService reads the EXIF fields that matter for rendering previews
type EXIFService struct{}

// NewEXIFService creates a new EXIFService
func NewEXIFService() *EXIFService {
	return &EXIFService{}
}

// Orientation returns the EXIF orientation (1-8) of an image, or 1 when the
// image carries no usable EXIF data
func (s *EXIFService) Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	val, err := tag.Int(0)
	if err != nil || val < 1 || val > 8 {
		return 1
	}
	return val
}
