package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v: %q", err, line)
	}
	return entry
}

func TestLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(InfoLevel, &buf)

	log.Info("session established")

	entry := decodeLine(t, &buf)
	if entry["msg"] != "session established" {
		t.Errorf("msg = %v, want %q", entry["msg"], "session established")
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
}

func TestLoggerWithFieldAndError(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(InfoLevel, &buf)

	log.WithField("session_id", "abc123").
		WithError(context.DeadlineExceeded).
		Warn("permission refresh failed")

	entry := decodeLine(t, &buf)
	if entry["session_id"] != "abc123" {
		t.Errorf("session_id = %v, want abc123", entry["session_id"])
	}
	if entry["error"] != context.DeadlineExceeded.Error() {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestLoggerWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(InfoLevel, &buf)

	log.WithError(nil).Info("ok")

	entry := decodeLine(t, &buf)
	if _, ok := entry["error"]; ok {
		t.Error("nil error should not add an error field")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(WarnLevel, &buf)

	log.Debug("hidden")
	log.Info("hidden too")

	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got %q", buf.String())
	}

	log.Warn("visible")
	if buf.Len() == 0 {
		t.Error("warn message should be emitted")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
		"":        InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), base)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSessionID(ctx, "sess-9")

	FromContext(ctx).Info("guarded route")

	entry := decodeLine(t, &buf)
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["session_id"] != "sess-9" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
}

func TestGetLoggerFallback(t *testing.T) {
	if GetLogger(context.Background()) == nil {
		t.Fatal("GetLogger should never return nil")
	}
	if GetRequestID(context.Background()) != "" {
		t.Error("empty context should have no request ID")
	}
	if GetSessionID(context.Background()) != "" {
		t.Error("empty context should have no session ID")
	}
}
