package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestZerologLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *ZerologLogger)
	}{
		{"debug", func(l *ZerologLogger) { l.Debug("test message", "key1", "value1", "key2", 42) }},
		{"info", func(l *ZerologLogger) { l.Info("test message", "key1", "value1", "key2", 42) }},
		{"error", func(l *ZerologLogger) { l.Error("test message", "key1", "value1", "key2", 42) }},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewZerologLogger(zerolog.New(&buf)))

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "test message", entry["message"])
			assert.Equal(t, "value1", entry["key1"])
			assert.Equal(t, float64(42), entry["key2"])
		})
	}
}

func TestZerologLogger_OddAndNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	NewZerologLogger(zerolog.New(&buf)).Info("msg", "key1", "value1", 7, "ignored", "dangling")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "value1", entry["key1"])
	assert.NotContains(t, entry, "dangling")
	assert.Len(t, entry, 3) // level, message, key1
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "warn", "store")

	log.Info().Msg("filtered")
	assert.Empty(t, buf.String())

	log.Warn().Msg("kept")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "store", entry["component"])
	assert.Contains(t, entry, "time")

	buf.Reset()
	fallback := NewZerolog(&buf, "bogus", "x")
	fallback.Info().Msg("default level")
	assert.Contains(t, buf.String(), "default level")
}
