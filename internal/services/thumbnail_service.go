package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
	"github.com/linkshelf/server/internal/models"
	_ "golang.org/x/image/webp"
)

// DefaultThumbnailSize is the geometry used for item preview images
const DefaultThumbnailSize = "640x>"

const maxThumbnailDim = 4096

// ThumbnailSpec is a parsed geometry such as "640x>", "640x480" or "x200".
// A trailing ">" only ever shrinks the image.
type ThumbnailSpec struct {
	Width      int
	Height     int
	ShrinkOnly bool
}

// ParseThumbnailSize parses a "{w}x{h}[>]" geometry. Either dimension may be
// omitted but not both.
func ParseThumbnailSize(size string) (ThumbnailSpec, error) {
	var spec ThumbnailSpec

	size = strings.TrimSpace(size)
	if strings.HasSuffix(size, ">") {
		spec.ShrinkOnly = true
		size = strings.TrimSuffix(size, ">")
	}

	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return spec, models.ErrInvalidThumbnailDim
	}

	var err error
	if spec.Width, err = parseDim(w); err != nil {
		return spec, err
	}
	if spec.Height, err = parseDim(h); err != nil {
		return spec, err
	}
	if spec.Width == 0 && spec.Height == 0 {
		return spec, models.ErrInvalidThumbnailDim
	}
	return spec, nil
}

func parseDim(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > maxThumbnailDim {
		return 0, models.ErrInvalidThumbnailDim
	}
	return n, nil
}

// Key is a filesystem-safe name for the geometry
func (s ThumbnailSpec) Key() string {
	key := fmt.Sprintf("%dx%d", s.Width, s.Height)
	if s.ShrinkOnly {
		key += "s"
	}
	return key
}

// TargetSize returns the output dimensions for a source image, keeping the
// aspect ratio and fitting inside the requested box
func (s ThumbnailSpec) TargetSize(srcW, srcH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}

	scale := 0.0
	switch {
	case s.Width > 0 && s.Height > 0:
		scale = minFloat(float64(s.Width)/float64(srcW), float64(s.Height)/float64(srcH))
	case s.Width > 0:
		scale = float64(s.Width) / float64(srcW)
	default:
		scale = float64(s.Height) / float64(srcH)
	}

	if s.ShrinkOnly && scale >= 1 {
		return srcW, srcH
	}

	w := int(float64(srcW)*scale + 0.5)
	h := int(float64(srcH)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ThumbnailService renders and caches resized previews of stored attachments
type ThumbnailService struct {
	storage *FileStorage
	hash    *HashService
}

// NewThumbnailService creates a new ThumbnailService
func NewThumbnailService(storage *FileStorage, hash *HashService) *ThumbnailService {
	return &ThumbnailService{storage: storage, hash: hash}
}

// Render returns the stored path of the thumbnail for att at spec, creating
// it on first use. The original must still match its checksum before a new
// thumbnail is rendered. Thumbnails live in a .thumbs folder next to the original.
func (s *ThumbnailService) Render(att *models.Attachment, spec ThumbnailSpec) (string, error) {
	thumbPath := filepath.ToSlash(filepath.Join(
		filepath.Dir(filepath.FromSlash(att.StoredPath)), ".thumbs",
		fmt.Sprintf("%s_%s.jpg", att.ID, spec.Key()),
	))
	if s.storage.Exists(thumbPath) {
		return thumbPath, nil
	}

	fullPath, err := s.storage.GetFullPath(att.StoredPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read attachment: %w", err)
	}
	if att.Checksum != "" && !s.hash.Matches(data, att.Checksum) {
		return "", fmt.Errorf("attachment %s: %w", att.ID, models.ErrAttachmentCorrupt)
	}

	encoded, err := s.Generate(data, att.ContentType, att.Orientation, spec)
	if err != nil {
		return "", err
	}

	fullThumbPath, err := s.storage.GetFullPath(thumbPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullThumbPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	// Concurrent renders of the same thumbnail each write a temp file; the
	// last rename wins with identical content.
	tmp, err := os.CreateTemp(filepath.Dir(fullThumbPath), ".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), fullThumbPath); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	return thumbPath, nil
}

// Generate decodes, orients, resizes and JPEG-encodes an image in memory
func (s *ThumbnailService) Generate(data []byte, contentType string, orientation int, spec ThumbnailSpec) ([]byte, error) {
	img, err := decodeImage(data, contentType)
	if err != nil {
		return nil, err
	}

	img = applyOrientation(img, orientation)

	bounds := img.Bounds()
	w, h := spec.TargetSize(bounds.Dx(), bounds.Dy())
	if w != bounds.Dx() || h != bounds.Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// DeleteThumbnails removes every cached thumbnail of an attachment
func (s *ThumbnailService) DeleteThumbnails(att *models.Attachment) {
	dir := filepath.Join(filepath.Dir(filepath.FromSlash(att.StoredPath)), ".thumbs")
	fullDir, err := s.storage.GetFullPath(filepath.ToSlash(dir))
	if err != nil {
		return
	}
	matches, _ := filepath.Glob(filepath.Join(fullDir, att.ID+"_*.jpg"))
	for _, m := range matches {
		os.Remove(m)
	}
}

func decodeImage(data []byte, contentType string) (image.Image, error) {
	if IsHEIC(contentType) {
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode HEIC image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// applyOrientation corrects image orientation based on EXIF data
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// IsHEIC checks whether a content type is HEIC/HEIF, which the standard
// image decoders do not handle
func IsHEIC(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "image/heic" || ct == "image/heif"
}
