package services

import (
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const checksumPrefix = "blake2b:"

// HashService computes attachment checksums (BLAKE2b-256, hex encoded)
type HashService struct {
	checksumRegex *regexp.Regexp
}

// NewHashService creates a new HashService
func NewHashService() *HashService {
	return &HashService{
		checksumRegex: regexp.MustCompile(`^[a-f0-9]{64}$`),
	}
}

// ComputeHashBytes computes the checksum of data
func (s *HashService) ComputeHashBytes(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeHash lowercases a checksum and strips an optional "blake2b:" prefix
func normalizeHash(hash string) string {
	normalized := strings.ToLower(strings.TrimSpace(hash))
	return strings.TrimPrefix(normalized, checksumPrefix)
}

// Matches reports whether data has the given checksum
func (s *HashService) Matches(data []byte, checksum string) bool {
	normalized := normalizeHash(checksum)
	if !s.checksumRegex.MatchString(normalized) {
		return false
	}
	return s.ComputeHashBytes(data) == normalized
}
