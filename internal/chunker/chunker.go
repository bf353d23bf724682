// Package chunker splits a loaded file into bounded-size, language-aware
// chunks. It tries an AST walk first (internal/scanner reports which
// languages have a tree-sitter grammar); when no grammar is available, or
// parsing fails, it falls back to a greedy line-based splitter.
//
// Grounded on the teacher's internal/indexer/ast_chunker.go (tree-sitter
// walk, hierarchical class splitting) and chunker.go/token_chunker.go (line
// fallback, boundary regexes), generalized so chunk_size/chunk_overlap are
// config-driven instead of hardcoded byte constants.
package chunker

import (
	"strings"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/scanner"
)

// Chunker is the C2 entry point: chunk(file, config) -> []Chunk.
type Chunker struct {
	ast      *ASTChunker
	detector *scanner.LanguageDetector
}

// New builds a Chunker with AST parsers warmed up for every grammar this
// module vendors.
func New() *Chunker {
	return &Chunker{
		ast:      NewASTChunker(),
		detector: scanner.NewLanguageDetector(),
	}
}

// Close releases chunker resources (tree-sitter parsers).
func (c *Chunker) Close() {
	c.ast.Close()
}

// Chunk implements spec.md §4.2's six-step contract. The result is never
// empty for a file with content.
func (c *Chunker) Chunk(file models.FileInfo, cfg config.ChunkingConfig) ([]models.Chunk, error) {
	if strings.TrimSpace(file.Content) == "" {
		return []models.Chunk{wholeFileChunk(file)}, nil
	}

	chunkSize := cfg.Size
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}
	overlap := cfg.Overlap

	var raw []models.Chunk
	var err error

	if c.ast.CanParseLanguage(file.Language) {
		raw, err = c.ast.Chunk(file.Language, file.Content)
		if err != nil {
			raw = nil // fall through to the line-based fallback below
		}
	}

	if len(raw) == 0 {
		raw = FallbackChunk(file.Language, file.Content, chunkSize, overlap)
		return raw, nil // the fallback already applies its own overlap scheme (step 6)
	}

	refined := refineOversizedChunks(raw, chunkSize)
	withOverlap := applyOverlap(refined, overlap)
	return withOverlap, nil
}

func wholeFileChunk(file models.FileInfo) models.Chunk {
	lines := strings.Count(file.Content, "\n") + 1
	return models.Chunk{
		Content: file.Content,
		SourceLocation: models.SourceLocation{
			StartLine: 1,
			EndLine:   lines,
		},
		ChunkType: models.ChunkTypeFile,
	}
}
