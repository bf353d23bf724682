// Package translator implements C4: turning a code chunk into a prose
// description for the secondary (natural-language) embedding, used when
// config.Chunking.DualEmbedding is on.
//
// Two implementations are required by spec.md §4.4: an LLM-backed
// translator (shares the breaker/provider plumbing with C3) and a
// network-free template translator. The template variant is grounded on
// the teacher's search/searcher.go string-building style (log-friendly,
// printf-composed summaries) extended with the regex boundary patterns
// already defined in indexer/token_chunker.go's GetLanguagePatterns, reused
// here to pull out the chunk's leading symbol name.
package translator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
	"github.com/jamaly87/codebase-semantic-search/internal/llmclient"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// Translator is the C4 contract: describe a batch of chunks in prose.
type Translator interface {
	TranslateBatch(ctx context.Context, file models.FileInfo, chunks []models.Chunk) []string
}

// LLMTranslator calls the model once per chunk, in parallel, through the
// shared circuit breaker. On a per-chunk failure, the chunk's own content
// is used verbatim (identity fallback, per spec.md §4.4).
type LLMTranslator struct {
	provider llmclient.CompletionProvider
	breaker  *breaker.Breaker
}

// NewLLMTranslator builds an LLMTranslator. br may be nil.
func NewLLMTranslator(provider llmclient.CompletionProvider, br *breaker.Breaker) *LLMTranslator {
	return &LLMTranslator{provider: provider, breaker: br}
}

// TranslateBatch implements Translator.
func (t *LLMTranslator) TranslateBatch(ctx context.Context, file models.FileInfo, chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			desc, err := t.runPrompt(ctx, translationPrompt(file, chunk))
			if err != nil {
				out[i] = chunk.Content
				return
			}
			out[i] = strings.TrimSpace(desc)
		}()
	}
	wg.Wait()
	return out
}

func (t *LLMTranslator) runPrompt(ctx context.Context, prompt string) (string, error) {
	if t.breaker == nil {
		return t.provider.Complete(ctx, prompt)
	}
	val, err := t.breaker.Execute(ctx, func() (interface{}, error) {
		return t.provider.Complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

func translationPrompt(file models.FileInfo, chunk models.Chunk) string {
	return fmt.Sprintf(
		"Describe in plain English what the following %s code does, in 1-3 "+
			"sentences, for use as a natural-language search document. Answer "+
			"with the description only.\n\n<code>\n%s\n</code>",
		file.Language, chunk.Content)
}

// TemplateTranslator builds a cost-free description from structural facts
// alone: file, language, chunk type, line range, the chunk's leading symbol
// name (via the per-language boundary patterns), and a trimmed preview.
type TemplateTranslator struct{}

// NewTemplateTranslator builds a TemplateTranslator.
func NewTemplateTranslator() *TemplateTranslator { return &TemplateTranslator{} }

// TranslateBatch implements Translator with no network calls.
func (t *TemplateTranslator) TranslateBatch(ctx context.Context, file models.FileInfo, chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, chunk := range chunks {
		out[i] = templateDescribe(file, chunk)
	}
	return out
}

const previewLen = 160

func templateDescribe(file models.FileInfo, chunk models.Chunk) string {
	symbol := extractSymbol(chunk.Content, file.Language)
	preview := strings.TrimSpace(chunk.Content)
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}

	var name string
	switch {
	case symbol != "":
		name = fmt.Sprintf(" named %q", symbol)
	default:
		name = ""
	}

	return fmt.Sprintf(
		"A %s%s in %s (%s, lines %d-%d): %s",
		chunk.ChunkType, name, file.RelativePath, file.Language,
		chunk.SourceLocation.StartLine, chunk.SourceLocation.EndLine, preview)
}

// languagePatterns mirrors the teacher's GetLanguagePatterns
// (internal/indexer/token_chunker.go), narrowed to the capturing groups
// needed to pull out a leading symbol name rather than just detect a
// boundary line.
var languagePatterns = map[string][]*regexp.Regexp{
	"java": {
		regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?class\s+(\w+)`),
		regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?interface\s+(\w+)`),
		regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?[\w<>\[\]]+\s+(\w+)\s*\(`),
	},
	"javascript": {
		regexp.MustCompile(`^\s*export\s+(?:default\s+)?function\s+(\w+)`),
		regexp.MustCompile(`^\s*export\s+(?:default\s+)?class\s+(\w+)`),
		regexp.MustCompile(`^\s*(?:async\s+)?function\s+(\w+)`),
		regexp.MustCompile(`^\s*class\s+(\w+)`),
	},
	"typescript": {
		regexp.MustCompile(`^\s*export\s+(?:default\s+)?function\s+(\w+)`),
		regexp.MustCompile(`^\s*export\s+(?:default\s+)?class\s+(\w+)`),
		regexp.MustCompile(`^\s*(?:async\s+)?function\s+(\w+)`),
		regexp.MustCompile(`^\s*class\s+(\w+)`),
		regexp.MustCompile(`^\s*interface\s+(\w+)`),
	},
	"go": {
		regexp.MustCompile(`^\s*func\s+(\w+)`),
		regexp.MustCompile(`^\s*func\s+\([^)]+\)\s+(\w+)`),
		regexp.MustCompile(`^\s*type\s+(\w+)\s+(?:struct|interface)`),
	},
	"python": {
		regexp.MustCompile(`^\s*def\s+(\w+)`),
		regexp.MustCompile(`^\s*class\s+(\w+)`),
		regexp.MustCompile(`^\s*async\s+def\s+(\w+)`),
	},
	"rust": {
		regexp.MustCompile(`^\s*(?:pub\s+)?fn\s+(\w+)`),
		regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+(\w+)`),
		regexp.MustCompile(`^\s*(?:pub\s+)?enum\s+(\w+)`),
		regexp.MustCompile(`^\s*(?:pub\s+)?trait\s+(\w+)`),
	},
	"c": {
		regexp.MustCompile(`^\s*\w+\s+(\w+)\s*\(`),
		regexp.MustCompile(`^\s*struct\s+(\w+)`),
	},
	"cpp": {
		regexp.MustCompile(`^\s*\w+\s+\w+::(\w+)\s*\(`),
		regexp.MustCompile(`^\s*class\s+(\w+)`),
		regexp.MustCompile(`^\s*struct\s+(\w+)`),
	},
}

var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*function\s+(\w+)`),
	regexp.MustCompile(`^\s*class\s+(\w+)`),
	regexp.MustCompile(`^\s*def\s+(\w+)`),
}

// extractSymbol returns the first symbol name matched by any of the
// language's boundary patterns, checking each line in order, or "" if none
// match.
func extractSymbol(content, language string) string {
	patterns, ok := languagePatterns[language]
	if !ok {
		patterns = defaultPatterns
	}
	for _, line := range strings.Split(content, "\n") {
		for _, p := range patterns {
			if m := p.FindStringSubmatch(line); m != nil {
				return m[1]
			}
		}
	}
	return ""
}
