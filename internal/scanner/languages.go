// Package scanner walks a repository tree and yields indexable FileInfo
// records, filtered by language support, ignore patterns, and size.
// Grounded on the teacher's internal/indexer/scanner.go and languages.go.
package scanner

import (
	"path/filepath"
	"strings"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// LanguageDetector maps file extensions to the language the chunker should
// use, and (for AST chunking) which tree-sitter grammar applies.
type LanguageDetector struct {
	languages map[string]models.Language
	extMap    map[string]string
}

// NewLanguageDetector builds the detector over java, typescript, javascript
// and go (internal/chunker parses the first three with tree-sitter and
// chunks go with the fallback chunker), extended with the languages the
// rest of the example pack's tree-sitter bindings cover (python, rust, c,
// c++) so the token-based fallback chunker (internal/chunker) has a
// consistent language tag to key its boundary-regex table on even where no
// AST grammar is wired.
func NewLanguageDetector() *LanguageDetector {
	languages := map[string]models.Language{
		"java": {
			Name:       "java",
			Extensions: []string{".java"},
			Parser:     "tree-sitter-java",
		},
		"typescript": {
			Name:       "typescript",
			Extensions: []string{".ts", ".tsx"},
			Parser:     "tree-sitter-typescript",
		},
		"javascript": {
			Name:       "javascript",
			Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
			Parser:     "tree-sitter-javascript",
		},
		"go": {
			Name:       "go",
			Extensions: []string{".go"},
			Parser:     "tree-sitter-go",
		},
		"python": {
			Name:       "python",
			Extensions: []string{".py"},
		},
		"rust": {
			Name:       "rust",
			Extensions: []string{".rs"},
		},
		"c": {
			Name:       "c",
			Extensions: []string{".c", ".h"},
		},
		"cpp": {
			Name:       "cpp",
			Extensions: []string{".cpp", ".hpp", ".cc"},
		},
	}

	extMap := make(map[string]string)
	for name, lang := range languages {
		for _, ext := range lang.Extensions {
			extMap[ext] = name
		}
	}

	return &LanguageDetector{languages: languages, extMap: extMap}
}

// Detect returns the language a path belongs to.
func (ld *LanguageDetector) Detect(path string) (models.Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return models.Language{}, false
	}
	name, ok := ld.extMap[ext]
	if !ok {
		return models.Language{}, false
	}
	lang, ok := ld.languages[name]
	return lang, ok
}

// IsSupported reports whether path's extension is recognised.
func (ld *LanguageDetector) IsSupported(path string) bool {
	_, ok := ld.Detect(path)
	return ok
}

// GetLanguage looks a language up by canonical name.
func (ld *LanguageDetector) GetLanguage(name string) (models.Language, bool) {
	lang, ok := ld.languages[name]
	return lang, ok
}

// HasASTGrammar reports whether the language's table entry names a
// tree-sitter grammar. internal/chunker parses only java, javascript and
// typescript with tree-sitter, so go reports true but is chunked by the
// fallback chunker.
func (ld *LanguageDetector) HasASTGrammar(name string) bool {
	lang, ok := ld.languages[name]
	return ok && lang.Parser != ""
}
