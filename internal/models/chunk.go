// Package models holds the data shapes shared across the indexing and
// retrieval pipeline: chunks, embedded chunks, file metadata, and search
// results.
package models

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ChunkType identifies the semantic shape of a Chunk.
type ChunkType string

const (
	ChunkTypeFunction  ChunkType = "function"
	ChunkTypeClass     ChunkType = "class"
	ChunkTypeMethod    ChunkType = "method"
	ChunkTypeInterface ChunkType = "interface"
	ChunkTypeBlock     ChunkType = "block"
	ChunkTypeFile      ChunkType = "file"
)

// SourceLocation is a 1-indexed line range within a file, with optional
// byte-offset precision.
type SourceLocation struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
	StartChar int `json:"start_char,omitempty"`
	EndChar   int `json:"end_char,omitempty"`
}

// Chunk is a contiguous region of one file produced by the chunker.
type Chunk struct {
	Content        string                 `json:"content"`
	SourceLocation SourceLocation         `json:"source_location"`
	ChunkType      ChunkType              `json:"chunk_type"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// FunctionName returns the function_name metadata field, if present.
func (c Chunk) FunctionName() string {
	return stringMeta(c.Metadata, "function_name")
}

// ClassName returns the class_name metadata field, if present.
func (c Chunk) ClassName() string {
	return stringMeta(c.Metadata, "class_name")
}

func stringMeta(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ContextualisedChunk is a Chunk plus a retrieval context. When Context is
// non-empty, ContextualisedContent is Context + "\n\n" + Content; otherwise
// it equals Content.
type ContextualisedChunk struct {
	Chunk
	Context string `json:"context"`
}

// ContextualisedContent implements the composition rule in spec.md §3.
func (c ContextualisedChunk) ContextualisedContent() string {
	if c.Context == "" {
		return c.Content
	}
	return c.Context + "\n\n" + c.Content
}

// EmbeddedChunk wraps a contextualised (or raw) chunk with file-scoped
// identity and its computed vectors.
type EmbeddedChunk struct {
	FilePath                   string         `json:"file_path"`
	Language                   string         `json:"language"`
	Chunk                      ContextualisedChunk `json:"chunk"`
	Embedding                  []float32      `json:"embedding"`
	SecondaryEmbedding         []float32      `json:"secondary_embedding,omitempty"`
	NaturalLanguageDescription string         `json:"natural_language_description,omitempty"`
}

// ID computes the deterministic chunk identity described in spec.md §3: a
// base64url encoding of a colon-joined canonical key over
// (file_path, start_line, end_line). Identical inputs always produce the
// same id, which is what lets upserts be idempotent across runs.
func (e EmbeddedChunk) ID() string {
	return ChunkID(e.FilePath, e.Chunk.SourceLocation.StartLine, e.Chunk.SourceLocation.EndLine)
}

// ChunkID computes the deterministic chunk id for a (file, line range).
func ChunkID(filePath string, startLine, endLine int) string {
	key := fmt.Sprintf("%s:%d:%d", filePath, startLine, endLine)
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeChunkID is the inverse of ChunkID, used by stores that need to
// recover the logical key from an opaque id (debugging, migrations).
func DecodeChunkID(id string) (filePath string, startLine, endLine int, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", 0, 0, fmt.Errorf("decode chunk id: %w", err)
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed chunk id payload: %q", string(raw))
	}
	var s, e int
	if _, err := fmt.Sscanf(parts[1], "%d", &s); err != nil {
		return "", 0, 0, fmt.Errorf("malformed start line: %w", err)
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &e); err != nil {
		return "", 0, 0, fmt.Errorf("malformed end line: %w", err)
	}
	return parts[0], s, e, nil
}
