package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestSLogLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Warn("token claims ahead", "subject", "u1", "token_version", int64(3), "active", true, "err", errors.New("boom"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["level"] != "WARN" {
		t.Fatalf("expected WARN level, got %v", line["level"])
	}
	if line["subject"] != "u1" || line["token_version"] != float64(3) || line["active"] != true || line["err"] != "boom" {
		t.Fatalf("unexpected attrs: %v", line)
	}
}

func TestSLogLoggerIgnoresDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.Info("msg", "only-key")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if _, ok := line["only-key"]; ok {
		t.Fatalf("dangling key should be dropped: %v", line)
	}
}
