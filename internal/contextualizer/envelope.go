package contextualizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// The single-call response envelope is not well-formed XML: <startLine> and
// friends are bare element text, and <content> holds raw source code that
// may itself contain '<'/'>'. A real XML decoder would choke on that, so
// this is a tolerant, hand-rolled block parser instead.
var (
	chunkBlockPattern = regexp.MustCompile(`(?s)<chunk:contextualised>(.*?)</chunk:contextualised>`)
	startLinePattern  = regexp.MustCompile(`<startLine>\s*(\d+)\s*</startLine>`)
	endLinePattern    = regexp.MustCompile(`<endLine>\s*(\d+)\s*</endLine>`)
	chunkTypePattern  = regexp.MustCompile(`<chunkType>\s*([\w-]+)\s*</chunkType>`)
	contextPattern    = regexp.MustCompile(`(?s)<context>(.*?)</context>`)
	contentPattern    = regexp.MustCompile(`(?s)<content>(.*)</content>`)
)

// parseEnvelope extracts one ContextualisedChunk per <chunk:contextualised>
// block. It returns an error if no block is found, or if any block is
// missing a required field — the caller treats that as "retry once, then
// fall back to a whole-file chunk" per spec.md §4.3.
func parseEnvelope(resp string) ([]models.ContextualisedChunk, error) {
	blocks := chunkBlockPattern.FindAllStringSubmatch(resp, -1)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("contextualizer: no chunk:contextualised blocks in response")
	}

	chunks := make([]models.ContextualisedChunk, 0, len(blocks))
	for i, b := range blocks {
		body := b[1]

		start, err := extractInt(startLinePattern, body)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		end, err := extractInt(endLinePattern, body)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if start < 1 || end < start {
			return nil, fmt.Errorf("block %d: invalid line range %d-%d", i, start, end)
		}

		content := extractString(contentPattern, body)
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("block %d: empty content", i)
		}

		chunkType := extractString(chunkTypePattern, body)
		if chunkType == "" {
			chunkType = string(models.ChunkTypeBlock)
		}

		chunks = append(chunks, models.ContextualisedChunk{
			Chunk: models.Chunk{
				Content:        content,
				SourceLocation: models.SourceLocation{StartLine: start, EndLine: end},
				ChunkType:      models.ChunkType(chunkType),
			},
			Context: strings.TrimSpace(extractString(contextPattern, body)),
		})
	}
	return chunks, nil
}

func extractInt(pattern *regexp.Regexp, body string) (int, error) {
	m := pattern.FindStringSubmatch(body)
	if m == nil {
		return 0, fmt.Errorf("missing %s", pattern.String())
	}
	return strconv.Atoi(m[1])
}

func extractString(pattern *regexp.Regexp, body string) string {
	m := pattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}
