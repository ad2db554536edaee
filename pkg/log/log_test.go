package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{" DEBUG ", DebugLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"info", InfoLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestInitJSONWithWorker(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	logger := WithWorker("supervisor", "ocr")
	logger.Info().Msg("filtered out")
	logger.Warn().Int("pid", 42).Msg("Worker exited")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "supervisor", entry["component"])
	assert.Equal(t, "ocr", entry["worker"])
	assert.Equal(t, float64(42), entry["pid"])
	assert.Equal(t, "Worker exited", entry["message"])
}

func TestInitConsoleOutput(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, Output: &buf})

	logger := WithComponent("router")
	logger.Debug().Str("capability", "ocr").Msg("Request routed")

	out := buf.String()
	assert.Contains(t, out, "Request routed")
	assert.Contains(t, out, "router")
	assert.Contains(t, out, "ocr")
	assert.NotContains(t, out, `"message"`, "console output is not JSON")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
