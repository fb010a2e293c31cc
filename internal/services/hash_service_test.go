package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashService_ComputeHashBytes(t *testing.T) {
	svc := NewHashService()

	t.Run("hex encoded 256 bits", func(t *testing.T) {
		assert.Len(t, svc.ComputeHashBytes([]byte("Hello, World!")), 64)
	})

	t.Run("different content differs", func(t *testing.T) {
		assert.NotEqual(t, svc.ComputeHashBytes([]byte("Content A")), svc.ComputeHashBytes([]byte("Content B")))
	})

	t.Run("known digest of empty input", func(t *testing.T) {
		assert.Equal(t,
			"0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8",
			svc.ComputeHashBytes(nil))
	})

	t.Run("returns lowercase hash", func(t *testing.T) {
		hash := svc.ComputeHashBytes([]byte("test"))
		assert.Equal(t, strings.ToLower(hash), hash)
	})
}

func TestHashService_Matches(t *testing.T) {
	svc := NewHashService()
	content := []byte("image bytes")
	sum := svc.ComputeHashBytes(content)

	tests := []struct {
		name     string
		checksum string
		expected bool
	}{
		{"exact", sum, true},
		{"uppercase", strings.ToUpper(sum), true},
		{"with prefix", "blake2b:" + sum, true},
		{"padded", "  " + sum + " ", true},
		{"empty", "", false},
		{"truncated", sum[:10], false},
		{"other content", svc.ComputeHashBytes([]byte("other")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, svc.Matches(content, tt.checksum))
		})
	}
}
