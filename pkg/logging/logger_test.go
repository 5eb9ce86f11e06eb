package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggerWritesRunAndErrorLogs(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "run-1")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	if err := logger.Info(CategorySession, "session_loaded", "loaded stored session", nil); err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if err := logger.Error(CategoryNetwork, "request_failed", "boom", map[string]any{"status": 500}); err != nil {
		t.Fatalf("Error failed: %v", err)
	}

	runEvents := readEvents(t, filepath.Join(dir, "runs", "run-1.jsonl"))
	if len(runEvents) != 2 {
		t.Fatalf("expected 2 run events, got %d", len(runEvents))
	}
	if runEvents[0].RunID != "run-1" {
		t.Errorf("expected run id to be stamped, got %q", runEvents[0].RunID)
	}

	errEvents := readEvents(t, filepath.Join(dir, "errors.jsonl"))
	if len(errEvents) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(errEvents))
	}
	if errEvents[0].EventType != "request_failed" {
		t.Errorf("unexpected error event type %q", errEvents[0].EventType)
	}
}

func TestLoggerMinLevelFiltersDebug(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, "run-2")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	_ = logger.Debug(CategoryRealtime, "frame", "dropped below min level", nil)
	_ = logger.Warn(CategoryRealtime, "reconnect", "backing off", nil)

	events := readEvents(t, filepath.Join(dir, "runs", "run-2.jsonl"))
	if len(events) != 1 {
		t.Fatalf("expected 1 event after level filtering, got %d", len(events))
	}
	if events[0].Level != LevelWarn {
		t.Errorf("expected warn event, got %s", events[0].Level)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	if err := logger.Info(CategoryIPC, "noop", "", nil); err != nil {
		t.Fatalf("nil logger Info returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("nil logger Close returned error: %v", err)
	}
}

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		events = append(events, event)
	}
	return events
}
