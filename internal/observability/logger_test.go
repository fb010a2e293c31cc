package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("writes json with fields", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger("test-service", "debug", "json")
		log.SetOutput(&buf)

		log.Component("worker").WithError(errors.New("boom")).WithField("item_data_id", "d1").Warn("job failed")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "job failed", entry["msg"])
		assert.Equal(t, "warning", entry["level"])
		assert.Equal(t, "test-service", entry["service"])
		assert.Equal(t, "worker", entry["component"])
		assert.Equal(t, "d1", entry["item_data_id"])
		assert.Equal(t, "boom", entry["error"])
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger("test-service", "error", "json")
		log.SetOutput(&buf)

		log.Info("hidden")

		assert.Zero(t, buf.Len())
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger("test-service", "loud", "text")
		log.SetOutput(&buf)

		log.Debug("hidden")
		log.Info("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("context without span adds nothing", func(t *testing.T) {
		log := NewLogger("test-service", "info", "json")

		withCtx := log.WithContext(context.Background())

		assert.Same(t, log, withCtx)
	})
}
