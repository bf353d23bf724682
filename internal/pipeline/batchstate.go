package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// checkpointRecord is one line of the batch checkpoint journal (spec.md §6):
// `{ file_path, status: "success"|"failure", at: iso8601 }`.
type checkpointRecord struct {
	FilePath string `json:"file_path"`
	Status   string `json:"status"`
	At       string `json:"at"`
}

const (
	checkpointSuccess = "success"
	checkpointFailure = "failure"
)

// checkpoint tracks which files a resumed batch run can skip, and appends a
// record after each file completes so progress survives a crash between
// files (spec.md §5: "batch mode persists per-file progress immediately via
// the checkpoint journal").
type checkpoint struct {
	path      string
	completed map[string]bool
	file      *os.File
	writer    *bufio.Writer
}

// openCheckpoint reads every existing record at path (if any) and opens it
// for append, so a resumed run both knows what to skip and keeps writing to
// the same journal.
func openCheckpoint(path string) (*checkpoint, error) {
	completed := make(map[string]bool)

	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			var rec checkpointRecord
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				continue // tolerate a truncated last line from a crashed run
			}
			if rec.Status == checkpointSuccess {
				completed[rec.FilePath] = true
			}
		}
		existing.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open checkpoint %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s for append: %w", path, err)
	}

	return &checkpoint{
		path:      path,
		completed: completed,
		file:      file,
		writer:    bufio.NewWriter(file),
	}, nil
}

func (c *checkpoint) isDone(filePath string) bool {
	return c.completed[filePath]
}

// record appends one entry and flushes immediately, so a crash right after
// this call still leaves the journal consistent for the next resume.
func (c *checkpoint) record(filePath string, success bool) error {
	status := checkpointFailure
	if success {
		status = checkpointSuccess
		c.completed[filePath] = true
	}
	line, err := json.Marshal(checkpointRecord{
		FilePath: filePath,
		Status:   status,
		At:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint record: %w", err)
	}
	if _, err := c.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append checkpoint record: %w", err)
	}
	return c.writer.Flush()
}

func (c *checkpoint) Close() error {
	if err := c.writer.Flush(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
