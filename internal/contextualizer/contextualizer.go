// Package contextualizer implements C3: generating short retrieval context
// for chunks, either one LLM call per chunk (fast mode) or a single call
// per file that chunks and contextualises at once (single-call mode).
//
// Grounded on the teacher's retry/tolerant-parsing style in
// internal/indexer/token_chunker.go (no hard failure on a malformed line;
// fall back to a coarser result) and routed through the same
// llmclient.CompletionProvider + internal/breaker plumbing the embedder
// (C5) uses, so contextualiser quota errors drain identically.
package contextualizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
	"github.com/jamaly87/codebase-semantic-search/internal/llmclient"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// Contextualiser is the C3 implementation. Its zero value is not usable;
// build one with New.
type Contextualiser struct {
	provider llmclient.CompletionProvider
	breaker  *breaker.Breaker
}

// New builds a Contextualiser. br may be nil to bypass circuit-breaker
// protection (tests, or a provider with its own rate limiting).
func New(provider llmclient.CompletionProvider, br *breaker.Breaker) *Contextualiser {
	return &Contextualiser{provider: provider, breaker: br}
}

// ContextualisePerChunk is the fast mode: every chunk gets its own LLM call,
// all run in parallel. A failed call for one chunk yields that chunk with
// empty context rather than failing the file (spec.md §4.3).
func (c *Contextualiser) ContextualisePerChunk(ctx context.Context, file models.FileInfo, chunks []models.Chunk) []models.ContextualisedChunk {
	out := make([]models.ContextualisedChunk, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.runPrompt(ctx, perChunkPrompt(file, chunk))
			if err != nil {
				out[i] = models.ContextualisedChunk{Chunk: chunk}
				return
			}
			out[i] = models.ContextualisedChunk{Chunk: chunk, Context: strings.TrimSpace(resp)}
		}()
	}
	wg.Wait()
	return out
}

// ContextualiseSingleCall is the single-call mode: one LLM call chunks and
// contextualises the whole file in a structured envelope. A parse failure
// retries once with a refined prompt; if that also fails, the file falls
// back to one whole-file chunk with empty context (spec.md §4.3).
func (c *Contextualiser) ContextualiseSingleCall(ctx context.Context, file models.FileInfo) ([]models.ContextualisedChunk, error) {
	resp, err := c.runPrompt(ctx, singleCallPrompt(file))
	if err == nil {
		if chunks, perr := parseEnvelope(resp); perr == nil && len(chunks) > 0 {
			return chunks, nil
		}
	}

	refined, rerr := c.runPrompt(ctx, refinedPrompt(file, resp))
	if rerr == nil {
		if chunks, perr := parseEnvelope(refined); perr == nil && len(chunks) > 0 {
			return chunks, nil
		}
	}

	return []models.ContextualisedChunk{wholeFileFallback(file)}, nil
}

func (c *Contextualiser) runPrompt(ctx context.Context, prompt string) (string, error) {
	if c.breaker == nil {
		return c.provider.Complete(ctx, prompt)
	}
	val, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.provider.Complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

func perChunkPrompt(file models.FileInfo, chunk models.Chunk) string {
	return fmt.Sprintf(
		"Here is a file for context:\n<file>\n%s\n</file>\n\n"+
			"Here is a chunk from that file:\n<chunk>\n%s\n</chunk>\n\n"+
			"Give a short (2-4 sentence) retrieval context situating this chunk "+
			"within the file. Answer with the context only.",
		file.Content, chunk.Content)
}

func singleCallPrompt(file models.FileInfo) string {
	return fmt.Sprintf(
		"Split the following %s file into logical chunks (functions, classes, "+
			"methods, or blocks) and, for each chunk, give a short retrieval "+
			"context situating it within the file. Respond with one "+
			"<chunk:contextualised> block per chunk:\n\n"+
			"<chunk:contextualised>\n<startLine>N</startLine>\n<endLine>N</endLine>\n"+
			"<chunkType>function|class|method|block|file</chunkType>\n"+
			"<context>short context</context>\n<content>original chunk text</content>\n"+
			"</chunk:contextualised>\n\n<file>\n%s\n</file>",
		file.Language, file.Content)
}

func refinedPrompt(file models.FileInfo, previous string) string {
	return fmt.Sprintf(
		"Your previous response did not match the required format. Previous "+
			"response:\n<previous>\n%s\n</previous>\n\n%s",
		previous, singleCallPrompt(file))
}

func wholeFileFallback(file models.FileInfo) models.ContextualisedChunk {
	lines := strings.Split(file.Content, "\n")
	return models.ContextualisedChunk{
		Chunk: models.Chunk{
			Content: file.Content,
			SourceLocation: models.SourceLocation{
				StartLine: 1,
				EndLine:   len(lines),
			},
			ChunkType: models.ChunkTypeFile,
		},
	}
}
