package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")

		entry := decodeEntry(t, &buf)
		if entry["level"] != "info" {
			t.Errorf("Expected level info, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("warnf formats", func(t *testing.T) {
		buf.Reset()
		logger.Warnf("cache %s unavailable", "redis")

		entry := decodeEntry(t, &buf)
		if entry["msg"] != "cache redis unavailable" {
			t.Errorf("Unexpected message %v", entry["msg"])
		}
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithFields(map[string]interface{}{"user_id": "u1"}).
		WithField("method", "passkey").
		WithError(errors.New("boom")).
		Debug("message")

	entry := decodeEntry(t, &buf)
	if entry["user_id"] != "u1" {
		t.Errorf("Expected user_id u1, got %v", entry["user_id"])
	}
	if entry["method"] != "passkey" {
		t.Errorf("Expected method passkey, got %v", entry["method"])
	}
	if entry["error"] != "boom" {
		t.Errorf("Expected error boom, got %v", entry["error"])
	}
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NopLogger()
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestLogger_Context(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "user-1")

	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("Expected request id req-1, got %s", got)
	}
	if got := GetUserID(ctx); got != "user-1" {
		t.Errorf("Expected user id user-1, got %s", got)
	}

	FromContext(ctx).Info("hello")
	entry := decodeEntry(t, &buf)
	if entry["request_id"] != "req-1" || entry["user_id"] != "user-1" {
		t.Errorf("Expected request and user ids in entry, got %v", entry)
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %s, want %s", tt.level, got, tt.want)
		}
	}
}
