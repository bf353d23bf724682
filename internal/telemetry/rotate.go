package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotateConfig configures RotatingFile. Grounded on the teacher's
// cmd/server/main.go logManager (size-triggered rotation checked on a
// ticker, rename-with-timestamp, retention by age and count), lifted out of
// cmd/server and generalized into a reusable io.WriteCloser any Logger can
// be pointed at.
type RotateConfig struct {
	Directory  string
	FileName   string // default "codesearch.log"
	MaxSizeMB  int    // default 10
	MaxBackups int    // default 5
	MaxAgeDays int    // default 30
}

// RotatingFile is an io.WriteCloser backed by a single log file that rotates
// itself once it crosses MaxSizeMB, checked on a background ticker tied to
// ctx. Writes are safe for concurrent use.
type RotatingFile struct {
	mu   sync.Mutex
	path string
	file *os.File
	cfg  RotateConfig
}

// NewRotatingFile opens (creating if needed) the log file under cfg.Directory
// and starts its background rotation checker.
func NewRotatingFile(ctx context.Context, cfg RotateConfig) (*RotatingFile, error) {
	if cfg.FileName == "" {
		cfg.FileName = "codesearch.log"
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 30
	}

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rf := &RotatingFile{path: filepath.Join(cfg.Directory, cfg.FileName), cfg: cfg}
	if err := rf.open(); err != nil {
		return nil, err
	}

	go rf.watch(ctx)
	return rf, nil
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	rf.file = f
	return nil
}

func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.file.Write(p)
}

func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.file.Close()
}

func (rf *RotatingFile) watch(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rf.checkAndRotate()
			rf.cleanOldBackups()
		}
	}
}

func (rf *RotatingFile) checkAndRotate() {
	info, err := os.Stat(rf.path)
	if err != nil {
		return
	}
	maxBytes := int64(rf.cfg.MaxSizeMB) * 1024 * 1024
	if info.Size() <= maxBytes {
		return
	}

	rf.mu.Lock()
	defer rf.mu.Unlock()

	rf.file.Close()
	backupPath := fmt.Sprintf("%s.%s", rf.path, time.Now().UTC().Format("2006-01-02-15-04-05"))
	if err := os.Rename(rf.path, backupPath); err != nil {
		rf.open() // reopen the original path even if the rename failed
		return
	}
	rf.open()
}

func (rf *RotatingFile) cleanOldBackups() {
	entries, err := os.ReadDir(rf.cfg.Directory)
	if err != nil {
		return
	}

	base := filepath.Base(rf.path)
	var backups []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && e.Name() != base && len(e.Name()) > len(base) && e.Name()[:len(base)] == base {
			backups = append(backups, e)
		}
	}

	maxAge := time.Duration(rf.cfg.MaxAgeDays) * 24 * time.Hour
	now := time.Now()
	var kept []os.DirEntry
	for _, e := range backups {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			os.Remove(filepath.Join(rf.cfg.Directory, e.Name()))
			continue
		}
		kept = append(kept, e)
	}

	if len(kept) <= rf.cfg.MaxBackups {
		return
	}
	oldest := oldestFirst(kept)
	for _, e := range oldest[:len(oldest)-rf.cfg.MaxBackups] {
		os.Remove(filepath.Join(rf.cfg.Directory, e.Name()))
	}
}

func oldestFirst(entries []os.DirEntry) []os.DirEntry {
	out := append([]os.DirEntry(nil), entries...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			infoJ, errJ := out[j].Info()
			infoJm1, errJm1 := out[j-1].Info()
			if errJ != nil || errJm1 != nil || infoJ.ModTime().After(infoJm1.ModTime()) {
				break
			}
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

var _ io.WriteCloser = (*RotatingFile)(nil)
