package chunker

import (
	"strings"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// refineOversizedChunks implements spec.md §4.2 step 4: any AST chunk larger
// than chunkSize characters is re-split on line boundaries into sub-chunks
// each at most chunkSize characters, inheriting chunk_type and metadata and
// with line ranges recomputed for each piece.
func refineOversizedChunks(chunks []models.Chunk, chunkSize int) []models.Chunk {
	if chunkSize <= 0 {
		return chunks
	}

	refined := make([]models.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Content) <= chunkSize {
			refined = append(refined, chunk)
			continue
		}
		refined = append(refined, splitChunk(chunk, chunkSize)...)
	}
	return refined
}

// splitChunk re-splits a single oversized chunk on line boundaries, greedily
// filling each piece up to chunkSize characters.
func splitChunk(chunk models.Chunk, chunkSize int) []models.Chunk {
	lines := strings.Split(chunk.Content, "\n")
	startLine := chunk.SourceLocation.StartLine

	var pieces []models.Chunk
	var current []string
	size := 0
	lineOffset := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		pieceStart := startLine + lineOffset
		pieceEnd := pieceStart + len(current) - 1
		pieces = append(pieces, models.Chunk{
			Content: strings.Join(current, "\n"),
			SourceLocation: models.SourceLocation{
				StartLine: pieceStart,
				EndLine:   pieceEnd,
			},
			ChunkType: chunk.ChunkType,
			Metadata:  chunk.Metadata,
		})
		lineOffset += len(current)
		current = nil
		size = 0
	}

	for _, line := range lines {
		lineSize := len(line) + 1
		if size > 0 && size+lineSize > chunkSize {
			flush()
		}
		current = append(current, line)
		size += lineSize
	}
	flush()

	if len(pieces) == 0 {
		return []models.Chunk{chunk}
	}
	return pieces
}

// applyOverlap implements spec.md §4.2 step 5: when overlapChars > 0 and at
// least two chunks exist, each chunk (after the first) is prefixed with the
// last overlapChars characters of the previous chunk's content, and its
// start_line is shifted backward by the number of newlines in that prefix.
// The first chunk is left unchanged.
func applyOverlap(chunks []models.Chunk, overlapChars int) []models.Chunk {
	if overlapChars <= 0 || len(chunks) < 2 {
		return chunks
	}

	out := make([]models.Chunk, len(chunks))
	out[0] = chunks[0]

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		cur := chunks[i]

		prefix := lastNChars(prev.Content, overlapChars)
		if prefix == "" {
			out[i] = cur
			continue
		}

		shift := strings.Count(prefix, "\n")
		out[i] = models.Chunk{
			Content: prefix + cur.Content,
			SourceLocation: models.SourceLocation{
				StartLine: cur.SourceLocation.StartLine - shift,
				EndLine:   cur.SourceLocation.EndLine,
			},
			ChunkType: cur.ChunkType,
			Metadata:  cur.Metadata,
		}
	}
	return out
}

// lastNChars returns the trailing n characters (by rune) of s, or all of s
// if it's shorter than n.
func lastNChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
