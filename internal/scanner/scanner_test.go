package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
}

func TestScanRepository(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"test.java":     "public class Test {}",
		"src/main.java": "public class Main {}",
		"test.txt":      "not a code file",
		"README.md":     "# README",
	})

	s := New(config.Defaults())
	result, err := s.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Files) != 2 {
		t.Errorf("expected 2 files, got %d", len(result.Files))
	}
	for _, f := range result.Files {
		if filepath.Ext(f.FilePath) != ".java" {
			t.Errorf("non-java file found: %s", f.FilePath)
		}
	}
}

func TestDefaultExcludeDirsAlwaysApply(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"src/main.java":       "public class Main {}",
		"node_modules/lib.js": "ignored",
		"build/output.java":   "ignored",
		".git/config":         "ignored",
		"dist/bundle.js":      "ignored",
	})

	s := New(config.Defaults())
	result, err := s.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Files) != 1 {
		t.Errorf("expected 1 file, got %d", len(result.Files))
		for _, f := range result.Files {
			t.Logf("found: %s", f.FilePath)
		}
	}
}

func TestIncludePatternsOverrideDefaultExcludes(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"build/generated.go": "package build",
		"src/main.go":        "package src",
	})

	cfg := config.Defaults()
	cfg.IncludePatterns = []string{"build/**"}
	s := New(cfg)

	result, err := s.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Files) != 2 {
		t.Errorf("expected include_patterns to rescue build/, got %d files", len(result.Files))
	}
}

func TestFileSizeLimit(t *testing.T) {
	tmpDir := t.TempDir()
	smallFile := filepath.Join(tmpDir, "small.java")
	largeFile := filepath.Join(tmpDir, "large.java")

	if err := os.WriteFile(smallFile, make([]byte, 100), 0644); err != nil {
		t.Fatalf("failed to create small file: %v", err)
	}
	if err := os.WriteFile(largeFile, make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatalf("failed to create large file: %v", err)
	}

	cfg := config.Defaults()
	cfg.MaxFileSizeBytes = 1024 * 1024
	s := New(cfg)

	result, err := s.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(result.Files))
	}
	if result.Files[0].FilePath != smallFile {
		t.Errorf("expected %s, got %s", smallFile, result.Files[0].FilePath)
	}
}

func TestSupportedExtensions(t *testing.T) {
	tmpDir := t.TempDir()
	supported := map[string]bool{
		"test.java": true,
		"test.ts":   true,
		"test.tsx":  true,
		"test.js":   true,
		"test.go":   true,
		"test.py":   true,
		"test.txt":  false,
		"test.md":   false,
		"test":      false,
	}
	for filename := range supported {
		if err := os.WriteFile(filepath.Join(tmpDir, filename), []byte("content"), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}

	s := New(config.Defaults())
	result, err := s.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	for _, f := range result.Files {
		name := filepath.Base(f.FilePath)
		expected, exists := supported[name]
		if !exists {
			t.Errorf("unexpected file found: %s", name)
			continue
		}
		if !expected {
			t.Errorf("unsupported file found: %s", name)
		}
	}
}

func TestEmptyRepository(t *testing.T) {
	tmpDir := t.TempDir()
	s := New(config.Defaults())

	result, err := s.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Files) != 0 {
		t.Errorf("expected 0 files in empty directory, got %d", len(result.Files))
	}
}

func TestNestedDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"a/b/c/deep.java": "content",
		"x/y/z/file.ts":   "content",
		"root.java":       "content",
	})

	s := New(config.Defaults())
	result, err := s.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Files) != 3 {
		t.Errorf("expected 3 files, got %d", len(result.Files))
	}
}

func TestLanguageStatsTracked(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{
		"a.java": "x",
		"b.java": "x",
		"c.go":   "package c",
	})

	s := New(config.Defaults())
	result, err := s.Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Languages["java"] != 2 {
		t.Errorf("expected 2 java files tracked, got %d", result.Languages["java"])
	}
	if result.Languages["go"] != 1 {
		t.Errorf("expected 1 go file tracked, got %d", result.Languages["go"])
	}
}
