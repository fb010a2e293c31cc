package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linkshelf/server/internal/models"
)

// FileStorage keeps attachment files under a base directory with Year/Month
// organization. Stored paths are relative and always use forward slashes.
type FileStorage struct {
	basePath string
}

// NewFileStorage creates the base directory if needed
func NewFileStorage(basePath string) (*FileStorage, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	return &FileStorage{basePath: absPath}, nil
}

// Write stores data as {yyyy}/{mm}/{name} and returns the relative path.
// It never overwrites an existing file.
func (s *FileStorage) Write(name string, data []byte, at time.Time) (string, error) {
	name = sanitizeFilename(name)
	if name == "" {
		return "", fmt.Errorf("file name cannot be empty")
	}

	relativePath := filepath.Join(at.Format("2006"), at.Format("01"), name)
	fullPath, err := s.GetFullPath(filepath.ToSlash(relativePath))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", err
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(fullPath)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(fullPath)
		return "", err
	}

	return filepath.ToSlash(relativePath), nil
}

// Delete removes a file by its stored path
func (s *FileStorage) Delete(storedPath string) bool {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return false
	}
	return os.Remove(fullPath) == nil
}

// GetFullPath returns the absolute path for a stored path, refusing paths
// that escape the base directory
func (s *FileStorage) GetFullPath(storedPath string) (string, error) {
	if strings.TrimSpace(storedPath) == "" {
		return "", fmt.Errorf("stored path cannot be empty")
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(storedPath))
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}

	if absPath != s.basePath && !strings.HasPrefix(absPath, s.basePath+string(os.PathSeparator)) {
		return "", models.ErrPathTraversal
	}
	return absPath, nil
}

// Exists checks if a file exists at the given stored path
func (s *FileStorage) Exists(storedPath string) bool {
	fullPath, err := s.GetFullPath(storedPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// sanitizeFilename removes path components and invalid characters
func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	if name == "." || name == string(os.PathSeparator) {
		return ""
	}

	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(name)

	const maxLength = 200
	if len(name) > maxLength {
		ext := filepath.Ext(name)
		name = name[:maxLength-len(ext)] + ext
	}
	return name
}
