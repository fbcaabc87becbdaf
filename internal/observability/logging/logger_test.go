package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONCarriesServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "legal-api", "warn", false)
	logger.Info("hidden")
	logger.Warn("shown", "document_id", "doc-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "legal-api" || entry["document_id"] != "doc-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewTextForCLI(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "", "debug", true).Debug("stage_done", "stage", "facts")
	if !strings.Contains(buf.String(), "stage=facts") || strings.Contains(buf.String(), "service=") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel(" WARNING ") != slog.LevelWarn || ParseLevel("nope") != slog.LevelInfo {
		t.Fatalf("unexpected level parsing")
	}
}
