package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/harishm17/study-buddy/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestHandler_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewHandler(&buf, "info"))

	logger.Info("dispatch", "internal_token", "abc123", "Authorization", "Bearer xyz", "job_id", "j-1")

	m := logLine(t, &buf)
	assert.Equal(t, "[REDACTED]", m["internal_token"])
	assert.Equal(t, "[REDACTED]", m["Authorization"])
	assert.Equal(t, "j-1", m["job_id"])
}

func TestHandler_RedactsSecretsInValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewHandler(&buf, "info", "super-secret-value"))

	logger.Error("llm call failed",
		"error", errors.New("401: invalid key sk-abcdefghijklmnopqrstuvwx"),
		"detail", "sent header Bearer eyJhbGciOi.payload.sig",
		"note", "contains super-secret-value inline",
	)

	m := logLine(t, &buf)
	assert.Equal(t, "401: invalid key sk-[REDACTED]", m["error"])
	assert.Equal(t, "sent header Bearer [REDACTED]", m["detail"])
	assert.Equal(t, "contains [REDACTED] inline", m["note"])
}

func TestHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewHandler(&buf, "warn"))

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logging.ParseLevel(tt.in))
		})
	}
}

func TestRedactText_ShortSkPrefixUntouched(t *testing.T) {
	assert.Equal(t, "task-sk-12", logging.RedactText("task-sk-12"))
}
