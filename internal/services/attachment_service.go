package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/observability"
	"github.com/linkshelf/server/internal/repository"
)

// AttachmentStore persists preview images and hands out their thumbnail URLs
type AttachmentStore interface {
	Store(ctx context.Context, data []byte, contentType string) (*models.Attachment, error)
	Delete(ctx context.Context, att *models.Attachment) error
	ThumbnailURL(att *models.Attachment, size string) string
}

// AttachmentService stores attachment bytes on disk and their metadata in
// the attachments table
type AttachmentService struct {
	repo       repository.AttachmentRepo
	storage    *FileStorage
	thumbnails *ThumbnailService
	hash       *HashService
	exif       *EXIFService
	baseURL    string
	maxBytes   int64
	log        *observability.Logger
}

// NewAttachmentService creates a new AttachmentService
func NewAttachmentService(repo repository.AttachmentRepo, storage *FileStorage, baseURL string, maxBytes int64) *AttachmentService {
	hash := NewHashService()
	return &AttachmentService{
		repo:       repo,
		storage:    storage,
		thumbnails: NewThumbnailService(storage, hash),
		hash:       hash,
		exif:       NewEXIFService(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxBytes:   maxBytes,
		log:        observability.GetLogger().Component("attachments"),
	}
}

// Store validates data as an image, writes it and records its metadata. The
// declared content type is only trusted when sniffing finds nothing better.
func (s *AttachmentService) Store(ctx context.Context, data []byte, contentType string) (*models.Attachment, error) {
	ctx, span := observability.StartServiceSpan(ctx, "AttachmentService", "Store")
	defer span.End()

	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, models.ErrAttachmentTooLarge
	}

	att, err := models.NewAttachment(DetectImageType(data, contentType), int64(len(data)), s.hash.ComputeHashBytes(data))
	if err != nil {
		return nil, err
	}
	att.Orientation = s.exif.Orientation(data)

	storedPath, err := s.storage.Write(att.ID+extensionFor(att.ContentType), data, att.CreatedAt)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to write attachment: %w", err)
	}
	att.StoredPath = storedPath

	if err := s.repo.Add(ctx, att); err != nil {
		s.storage.Delete(storedPath)
		observability.RecordError(span, err)
		return nil, fmt.Errorf("failed to save attachment: %w", err)
	}

	s.log.WithContext(ctx).WithField("attachment_id", att.ID).WithField("size", att.Size).Debug("Attachment stored")
	observability.SetSuccess(span)
	return att, nil
}

// Delete removes the metadata row, the original file and any thumbnails
func (s *AttachmentService) Delete(ctx context.Context, att *models.Attachment) error {
	if _, err := s.repo.Delete(ctx, att.ID); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	s.thumbnails.DeleteThumbnails(att)
	s.storage.Delete(att.StoredPath)
	return nil
}

// ThumbnailURL returns {base}/images/thumbnails/{id}/{uuid}?size={size}
func (s *AttachmentService) ThumbnailURL(att *models.Attachment, size string) string {
	return fmt.Sprintf("%s/images/thumbnails/%s/%s?size=%s",
		s.baseURL, att.ID, att.UUID, url.QueryEscape(size))
}

// Thumbnail resolves a thumbnail request to a file on disk. A wrong uuid is
// reported as not found so ids cannot be probed.
func (s *AttachmentService) Thumbnail(ctx context.Context, id, token, size string) (string, string, error) {
	if size == "" {
		size = DefaultThumbnailSize
	}
	spec, err := ParseThumbnailSize(size)
	if err != nil {
		return "", "", err
	}

	att, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", "", fmt.Errorf("failed to get attachment: %w", err)
	}
	if att == nil || subtle.ConstantTimeCompare([]byte(att.UUID), []byte(token)) != 1 {
		return "", "", models.ErrAttachmentNotFound
	}

	thumbPath, err := s.thumbnails.Render(att, spec)
	if err != nil {
		return "", "", err
	}
	fullPath, err := s.storage.GetFullPath(thumbPath)
	if err != nil {
		return "", "", err
	}
	return fullPath, "image/jpeg", nil
}

// DetectImageType sniffs the content type of data, falling back to the
// declared type (parameters stripped) when sniffing is inconclusive
func DetectImageType(data []byte, declared string) string {
	if isHEIF(data) {
		return "image/heic"
	}

	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}

	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	return sniffed
}

// isHEIF looks for an ISO BMFF ftyp box with a HEIF brand
func isHEIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return true
	}
	return false
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/heic", "image/heif":
		return ".heic"
	default:
		return ".img"
	}
}
