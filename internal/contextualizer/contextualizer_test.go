package contextualizer

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

type fakeCompletionProvider struct {
	response string
	err      error
	calls    int32
	onCall   func(prompt string) (string, error)
}

func (f *fakeCompletionProvider) Complete(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.onCall != nil {
		return f.onCall(prompt)
	}
	return f.response, f.err
}

func TestContextualisePerChunkSucceeds(t *testing.T) {
	provider := &fakeCompletionProvider{response: "this is the context"}
	c := New(provider, nil)

	file := models.FileInfo{Content: "package main\n\nfunc main() {}\n", Language: "go"}
	chunks := []models.Chunk{
		{Content: "func main() {}", SourceLocation: models.SourceLocation{StartLine: 3, EndLine: 3}, ChunkType: models.ChunkTypeFunction},
	}

	out := c.ContextualisePerChunk(context.Background(), file, chunks)
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].Context != "this is the context" {
		t.Errorf("expected the provider's context, got %q", out[0].Context)
	}
	if out[0].ContextualisedContent() != "this is the context\n\nfunc main() {}" {
		t.Errorf("unexpected contextualised content: %q", out[0].ContextualisedContent())
	}
}

func TestContextualisePerChunkFailureYieldsEmptyContextNotFailure(t *testing.T) {
	provider := &fakeCompletionProvider{err: errors.New("provider down")}
	c := New(provider, nil)

	file := models.FileInfo{Content: "x", Language: "go"}
	chunks := []models.Chunk{
		{Content: "a", SourceLocation: models.SourceLocation{StartLine: 1, EndLine: 1}},
		{Content: "b", SourceLocation: models.SourceLocation{StartLine: 2, EndLine: 2}},
	}

	out := c.ContextualisePerChunk(context.Background(), file, chunks)
	if len(out) != 2 {
		t.Fatalf("expected both chunks to still be emitted, got %d", len(out))
	}
	for i, cc := range out {
		if cc.Context != "" {
			t.Errorf("chunk %d: expected empty context on failure, got %q", i, cc.Context)
		}
		if cc.ContextualisedContent() != cc.Content {
			t.Errorf("chunk %d: expected contextualised content to equal content when context is empty", i)
		}
	}
}

func wellFormedEnvelope() string {
	var b strings.Builder
	b.WriteString("<chunk:contextualised>\n<startLine>1</startLine>\n<endLine>3</endLine>\n")
	b.WriteString("<chunkType>function</chunkType>\n<context>does a thing</context>\n")
	b.WriteString("<content>func Foo() {\n  return\n}</content>\n</chunk:contextualised>\n")
	b.WriteString("<chunk:contextualised>\n<startLine>5</startLine>\n<endLine>7</endLine>\n")
	b.WriteString("<chunkType>function</chunkType>\n<context>does another thing</context>\n")
	b.WriteString("<content>func Bar() {\n  return\n}</content>\n</chunk:contextualised>\n")
	return b.String()
}

func TestContextualiseSingleCallParsesWellFormedEnvelope(t *testing.T) {
	provider := &fakeCompletionProvider{response: wellFormedEnvelope()}
	c := New(provider, nil)

	file := models.FileInfo{Content: "func Foo() {\n  return\n}\n\nfunc Bar() {\n  return\n}\n", Language: "go"}
	chunks, err := c.ContextualiseSingleCall(context.Background(), file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].SourceLocation.StartLine != 1 || chunks[0].SourceLocation.EndLine != 3 {
		t.Errorf("unexpected location for chunk 0: %+v", chunks[0].SourceLocation)
	}
	if chunks[1].Context != "does another thing" {
		t.Errorf("unexpected context for chunk 1: %q", chunks[1].Context)
	}
	if provider.calls != 1 {
		t.Errorf("expected a single LLM call when the first response parses, got %d", provider.calls)
	}
}

func TestContextualiseSingleCallRetriesOnceThenFallsBack(t *testing.T) {
	provider := &fakeCompletionProvider{response: "not the right format at all"}
	c := New(provider, nil)

	file := models.FileInfo{Content: "line one\nline two\n", Language: "text"}
	chunks, err := c.ContextualiseSingleCall(context.Background(), file)
	if err != nil {
		t.Fatalf("fallback must not itself error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected the whole-file fallback, got %d chunks", len(chunks))
	}
	if chunks[0].ChunkType != models.ChunkTypeFile {
		t.Errorf("expected chunk_type file, got %q", chunks[0].ChunkType)
	}
	if chunks[0].Context != "" {
		t.Errorf("expected empty context on fallback, got %q", chunks[0].Context)
	}
	if provider.calls != 2 {
		t.Errorf("expected exactly one retry (2 total calls), got %d", provider.calls)
	}
}

func TestContextualiseSingleCallRetrySucceeds(t *testing.T) {
	first := true
	provider := &fakeCompletionProvider{onCall: func(prompt string) (string, error) {
		if first {
			first = false
			return "garbage", nil
		}
		return wellFormedEnvelope(), nil
	}}
	c := New(provider, nil)

	file := models.FileInfo{Content: "func Foo() {}\n", Language: "go"}
	chunks, err := c.ContextualiseSingleCall(context.Background(), file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected the refined prompt's well-formed response to parse, got %d chunks", len(chunks))
	}
}

func TestContextualiseRoutesThroughBreaker(t *testing.T) {
	provider := &fakeCompletionProvider{response: "ctx"}
	b := breaker.New(breaker.DefaultConfig(), nil)
	defer b.Close()

	c := New(provider, b)
	file := models.FileInfo{Content: "x", Language: "go"}
	out := c.ContextualisePerChunk(context.Background(), file, []models.Chunk{{Content: "x"}})
	if out[0].Context != "ctx" {
		t.Fatalf("expected the breaker to pass through a successful call, got %q", out[0].Context)
	}
}
