package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// Scanner walks a repository directory and reports which files are
// indexable under a VectorStoreConfig. Grounded on the teacher's
// internal/indexer/scanner.go; the teacher's hand-rolled pkg/ignore matcher
// is replaced with github.com/sabhiram/go-gitignore, which (unlike the
// teacher's) correctly handles `**` and negated patterns.
type Scanner struct {
	langDetector     *LanguageDetector
	ignoreMatcher    *gitignore.GitIgnore
	maxFileSizeBytes int64
}

// New builds a Scanner from a resolved config. include_patterns are
// compiled as gitignore-style negation patterns (`!pattern`) layered on top
// of config.DefaultExcludeDirs, matching spec.md §4.1's "safety excludes
// always apply" rule.
func New(cfg config.VectorStoreConfig) *Scanner {
	lines := make([]string, 0, len(config.DefaultExcludeDirs)+len(cfg.IncludePatterns))
	for _, dir := range config.DefaultExcludeDirs {
		lines = append(lines, dir+"/")
	}
	for _, pattern := range cfg.IncludePatterns {
		lines = append(lines, "!"+pattern)
	}

	maxSize := cfg.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = config.DefaultMaxFileSizeBytes
	}

	return &Scanner{
		langDetector:     NewLanguageDetector(),
		ignoreMatcher:    gitignore.CompileIgnoreLines(lines...),
		maxFileSizeBytes: maxSize,
	}
}

// Result is the outcome of a directory scan.
type Result struct {
	Files        []models.FileInfo
	TotalFiles   int
	SkippedFiles int
	Languages    map[string]int
	Errors       []error
}

// Scan walks repoPath and collects every indexable file. Errors accessing
// individual entries are recorded in Result.Errors rather than aborting the
// walk, matching the teacher's fault-tolerant WalkDir callback.
func (s *Scanner) Scan(repoPath string) (*Result, error) {
	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, fmt.Errorf("stat repo path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo path is not a directory: %s", repoPath)
	}

	result := &Result{
		Files:     make([]models.FileInfo, 0),
		Languages: make(map[string]int),
		Errors:    make([]error, 0),
	}

	err = filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Errors = append(result.Errors, fmt.Errorf("access %s: %w", path, walkErr))
			return nil
		}

		relPath, relErr := filepath.Rel(repoPath, path)
		if relErr != nil {
			relPath = path
		}

		if d.IsDir() {
			if s.shouldIgnoreDir(relPath, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		if s.ignoreMatcher.MatchesPath(relPath) {
			result.SkippedFiles++
			return nil
		}

		result.TotalFiles++

		lang, ok := s.langDetector.Detect(path)
		if !ok {
			result.SkippedFiles++
			return nil
		}

		fileInfo, infoErr := d.Info()
		if infoErr != nil {
			result.Errors = append(result.Errors, fmt.Errorf("stat %s: %w", path, infoErr))
			result.SkippedFiles++
			return nil
		}
		if fileInfo.Size() > s.maxFileSizeBytes {
			result.SkippedFiles++
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			result.Errors = append(result.Errors, fmt.Errorf("read %s: %w", path, readErr))
			result.SkippedFiles++
			return nil
		}

		result.Files = append(result.Files, models.FileInfo{
			FilePath:     path,
			RelativePath: filepath.ToSlash(relPath),
			Language:     lang.Name,
			Content:      string(content),
			Size:         fileInfo.Size(),
			LastModified: fileInfo.ModTime().UTC(),
		})
		result.Languages[lang.Name]++

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	return result, nil
}

func (s *Scanner) shouldIgnoreDir(relPath, dirName string) bool {
	if strings.HasPrefix(dirName, ".") && dirName != "." {
		return true
	}
	return s.ignoreMatcher.MatchesPath(relPath)
}

// IsSupported reports whether filePath's extension is indexable.
func (s *Scanner) IsSupported(filePath string) bool {
	return s.langDetector.IsSupported(filePath)
}
