package chunker

import (
	"regexp"
	"strings"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// boundaryPatterns ports the teacher's getFunctionBoundaryPattern table
// (chunker.go) and GetLanguagePatterns (token_chunker.go) into a single
// per-language boundary regex used to prefer splitting at a function/class
// start rather than mid-statement.
var boundaryPatterns = map[string]*regexp.Regexp{
	"java":       regexp.MustCompile(`^(public|private|protected)?\s*(static\s+)?(class|interface|enum|void|int|String|boolean|@)\s+\w+`),
	"javascript": regexp.MustCompile(`^(export\s+)?(async\s+)?(function|class|const|let|var)\s+\w+`),
	"typescript": regexp.MustCompile(`^(export\s+)?(async\s+)?(function|class|const|let|var|interface|type)\s+\w+`),
	"go":         regexp.MustCompile(`^(func|type|const|var)\s+\w+`),
	"python":     regexp.MustCompile(`^(def|class)\s+\w+`),
	"rust":       regexp.MustCompile(`^(pub\s+)?(fn|struct|enum|trait|impl|mod)\s+\w+`),
	"c":          regexp.MustCompile(`^\w[\w\s\*]*\s+\w+\s*\(`),
	"cpp":        regexp.MustCompile(`^\w[\w\s\*:<>]*\s+\w+\s*\(`),
}

// lineLookaheadWindow bounds how far past chunk_size the fallback looks for
// a boundary before giving up and splitting where capacity was reached.
const lineLookaheadWindow = 10

// overlapCharsPerLine is the divisor spec.md §4.2 step 6 specifies:
// "overlap approximated as chunk_overlap / 50 lines".
const overlapCharsPerLine = 50

// FallbackChunk greedily accumulates lines into chunks up to chunkSize
// characters. Once capacity is reached it looks ahead up to
// lineLookaheadWindow lines for a recognised function/class boundary and
// extends the chunk to just before it; otherwise it splits immediately.
// Each subsequent chunk is seeded with the previous chunk's trailing
// overlapLines lines, per spec.md §4.2 step 6.
func FallbackChunk(language, content string, chunkSize, overlapChars int) []models.Chunk {
	lines := strings.Split(content, "\n")
	boundary := boundaryPatterns[language]
	overlapLines := overlapChars / overlapCharsPerLine
	if overlapLines < 0 {
		overlapLines = 0
	}

	var chunks []models.Chunk
	start := 0 // 0-indexed, inclusive

	for start < len(lines) {
		end := start // 0-indexed, inclusive end of this chunk
		size := 0
		for end < len(lines) {
			size += len(lines[end]) + 1
			if size >= chunkSize {
				break
			}
			end++
		}
		if end >= len(lines) {
			end = len(lines) - 1
		} else if boundary != nil {
			for look := end; look < end+1+lineLookaheadWindow && look < len(lines); look++ {
				if look > start && boundary.MatchString(strings.TrimSpace(lines[look])) {
					end = look - 1
					break
				}
			}
		}

		chunks = append(chunks, models.Chunk{
			Content: strings.Join(lines[start:end+1], "\n"),
			SourceLocation: models.SourceLocation{
				StartLine: start + 1,
				EndLine:   end + 1,
			},
			ChunkType: models.ChunkTypeBlock,
		})

		if end+1 >= len(lines) {
			break
		}

		// Seed the next chunk with overlapLines of trailing context, but
		// always make forward progress so a large overlap relative to a
		// short chunk can never loop on the same lines.
		next := end + 1 - overlapLines
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}
