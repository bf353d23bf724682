package mcp

import (
	"strings"
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

func TestFormatSearchResultsEmpty(t *testing.T) {
	got := formatSearchResults(nil)
	if got != "No results found." {
		t.Fatalf("expected no-results message, got %q", got)
	}
}

func TestFormatSearchResultsIncludesLocationAndScore(t *testing.T) {
	results := []models.SearchResult{
		{
			Score: 0.873,
			Document: models.SearchDocument{
				FilePath:     "internal/foo/bar.go",
				FunctionName: "DoThing",
				StartLine:    10,
				EndLine:      20,
				Language:     "go",
				OriginalCode: "func DoThing() {\n\treturn\n}",
			},
		},
	}

	got := formatSearchResults(results)

	if !strings.Contains(got, "internal/foo/bar.go:10-20 (in DoThing)") {
		t.Fatalf("expected location line, got:\n%s", got)
	}
	if !strings.Contains(got, "score: 0.873") {
		t.Fatalf("expected score line, got:\n%s", got)
	}
	if !strings.Contains(got, "Language: go") {
		t.Fatalf("expected language line, got:\n%s", got)
	}
}

func TestFormatSearchResultsFallsBackToClassName(t *testing.T) {
	results := []models.SearchResult{
		{
			Document: models.SearchDocument{
				FilePath:  "pkg/widget.py",
				ClassName: "Widget",
				StartLine: 1,
				EndLine:   5,
			},
		},
	}

	got := formatSearchResults(results)
	if !strings.Contains(got, "pkg/widget.py:1-5 (in Widget)") {
		t.Fatalf("expected class-based location, got:\n%s", got)
	}
}

func TestFormatSearchResultsTruncatesLongPreviewLines(t *testing.T) {
	longLine := strings.Repeat("x", 120)
	results := []models.SearchResult{
		{Document: models.SearchDocument{FilePath: "f.go", OriginalCode: longLine}},
	}

	got := formatSearchResults(results)
	if !strings.Contains(got, strings.Repeat("x", 80)+"...") {
		t.Fatalf("expected truncated preview line, got:\n%s", got)
	}
}

func TestStringArgMissingKeyReturnsEmpty(t *testing.T) {
	if got := stringArg(map[string]interface{}{}, "language"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
