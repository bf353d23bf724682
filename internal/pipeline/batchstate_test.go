package pipeline

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenCheckpointStartsEmptyWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.jsonl")
	cp, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	defer cp.Close()

	if cp.isDone("a.go") {
		t.Fatalf("expected no files done on a fresh checkpoint")
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected parent directory to be created: %v", err)
	}
}

func TestCheckpointRecordAndResumeSkipsCompletedFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.jsonl")

	cp, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	if err := cp.record("a.go", true); err != nil {
		t.Fatalf("record success: %v", err)
	}
	if err := cp.record("b.go", false); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := cp.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	resumed, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("reopen checkpoint: %v", err)
	}
	defer resumed.Close()

	if !resumed.isDone("a.go") {
		t.Fatalf("expected a.go to be marked done after resume")
	}
	if resumed.isDone("b.go") {
		t.Fatalf("expected b.go (failure) to not be marked done")
	}
	if resumed.isDone("c.go") {
		t.Fatalf("expected an untouched file to not be marked done")
	}
}

func TestCheckpointToleratesTruncatedLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.jsonl")
	content := `{"file_path":"a.go","status":"success","at":"2024-01-01T00:00:00Z"}
{"file_path":"b.go","status":"succ`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	cp, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	defer cp.Close()

	if !cp.isDone("a.go") {
		t.Fatalf("expected a.go from the well-formed line to be done")
	}
	if cp.isDone("b.go") {
		t.Fatalf("truncated line must not count as done")
	}
}

func TestCheckpointAppendsRatherThanOverwritesOnResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.jsonl")

	first, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("openCheckpoint: %v", err)
	}
	if err := first.record("a.go", true); err != nil {
		t.Fatalf("record: %v", err)
	}
	first.Close()

	second, err := openCheckpoint(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := second.record("b.go", true); err != nil {
		t.Fatalf("record: %v", err)
	}
	second.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	lines := 0
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		if scanner.Text() != "" {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 journal lines after two resumed sessions, got %d", lines)
	}
}
