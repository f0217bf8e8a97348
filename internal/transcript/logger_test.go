package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 16}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.LogTurn("sess-1", "user", "I want to register")
	logger.LogTurn("sess-1", "assistant", "What is your full name?")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sess-1.ndjson"))
	if err != nil {
		t.Fatalf("transcript file missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if first.Role != "user" || first.Content != "I want to register" {
		t.Errorf("unexpected first event: %+v", first)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: false, Dir: dir}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.LogTurn("sess-1", "user", "hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("disabled logger wrote %d files", len(entries))
	}
}

func TestSanitizeKeepsIDsInsideDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 4}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.LogTurn("../../etc/passwd", "user", "x")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Give the sanitized file a moment to exist, then verify no path
	// escaped the transcript directory.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		entries, _ := os.ReadDir(dir)
		if len(entries) == 1 {
			if strings.Contains(entries[0].Name(), "/") {
				t.Fatalf("unsafe file name %q", entries[0].Name())
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sanitized transcript file never appeared")
}
