package chunker

import (
	"strings"
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

func TestChunkJavaClassHierarchicalSplit(t *testing.T) {
	c := New()
	defer c.Close()

	largeClass := `public class LargeService {
    private String field1;

    public LargeService() {
        // Constructor
    }

    public void method1() {
        System.out.println("Method 1");
    }

    public void method2() {
        System.out.println("Method 2");
    }
` + strings.Repeat("\n    // padding line to exceed the hierarchical split threshold\n", 200) + "}"

	file := models.FileInfo{FilePath: "LargeService.java", Language: "java", Content: largeClass}
	chunks, err := c.Chunk(file, config.ChunkingConfig{Size: config.DefaultChunkSize, Overlap: 0})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}

	var hasClass, hasMethod bool
	for _, chunk := range chunks {
		if chunk.ChunkType == models.ChunkTypeClass {
			hasClass = true
			if chunk.ClassName() == "" {
				t.Error("class chunk should have class_name metadata")
			}
		}
		if chunk.ChunkType == models.ChunkTypeMethod {
			hasMethod = true
			if chunk.ClassName() != "LargeService" {
				t.Errorf("method chunk should inherit class_name, got %q", chunk.ClassName())
			}
		}
	}
	if !hasClass {
		t.Error("expected a synthesized class summary chunk")
	}
	if !hasMethod {
		t.Error("expected per-method chunks")
	}
}

func TestChunkJavaScriptFunctions(t *testing.T) {
	c := New()
	defer c.Close()

	content := `function add(a, b) {
    return a + b;
}

function subtract(a, b) {
    return a - b;
}
`
	file := models.FileInfo{FilePath: "math.js", Language: "javascript", Content: content}
	chunks, err := c.Chunk(file, config.ChunkingConfig{Size: config.DefaultChunkSize, Overlap: 0})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 function chunks, got %d", len(chunks))
	}
	names := map[string]bool{}
	for _, chunk := range chunks {
		names[chunk.FunctionName()] = true
	}
	if !names["add"] || !names["subtract"] {
		t.Errorf("expected add and subtract function names, got %v", names)
	}
}

func TestChunkUnsupportedLanguageUsesFallback(t *testing.T) {
	c := New()
	defer c.Close()

	content := strings.Repeat("x = 1\n", 10)
	file := models.FileInfo{FilePath: "script.py", Language: "python", Content: content}
	chunks, err := c.Chunk(file, config.ChunkingConfig{Size: 20, Overlap: 0})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the fallback chunker to split a small chunk_size into multiple pieces, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.ChunkType != models.ChunkTypeBlock {
			t.Errorf("fallback chunks should be chunk_type block, got %s", chunk.ChunkType)
		}
	}
}

func TestChunkEmptyFileReturnsWholeFileChunk(t *testing.T) {
	c := New()
	defer c.Close()

	file := models.FileInfo{FilePath: "empty.go", Language: "go", Content: "   \n  "}
	chunks, err := c.Chunk(file, config.ChunkingConfig{Size: config.DefaultChunkSize})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ChunkType != models.ChunkTypeFile {
		t.Fatalf("expected a single file chunk, got %#v", chunks)
	}
}

func TestRefineOversizedChunksSplitsOnLineBoundaries(t *testing.T) {
	content := strings.Repeat("some line of code\n", 50)
	chunks := []models.Chunk{{
		Content:        content,
		SourceLocation: models.SourceLocation{StartLine: 1, EndLine: 50},
		ChunkType:      models.ChunkTypeFunction,
		Metadata:       map[string]interface{}{"function_name": "big"},
	}}

	refined := refineOversizedChunks(chunks, 200)
	if len(refined) < 2 {
		t.Fatalf("expected the oversized chunk to split into multiple pieces, got %d", len(refined))
	}
	for _, piece := range refined {
		if len(piece.Content) > 200 {
			t.Errorf("refined piece exceeds chunk_size: %d bytes", len(piece.Content))
		}
		if piece.ChunkType != models.ChunkTypeFunction {
			t.Errorf("expected chunk_type to be inherited, got %s", piece.ChunkType)
		}
		if piece.FunctionName() != "big" {
			t.Errorf("expected metadata to be inherited, got %q", piece.FunctionName())
		}
	}

	// line ranges should be contiguous and non-overlapping
	for i := 1; i < len(refined); i++ {
		if refined[i].SourceLocation.StartLine != refined[i-1].SourceLocation.EndLine+1 {
			t.Errorf("expected contiguous line ranges, got %d after %d", refined[i].SourceLocation.StartLine, refined[i-1].SourceLocation.EndLine)
		}
	}
}

func TestRefineLeavesSmallChunksUntouched(t *testing.T) {
	chunks := []models.Chunk{{Content: "short", SourceLocation: models.SourceLocation{StartLine: 1, EndLine: 1}}}
	refined := refineOversizedChunks(chunks, 2500)
	if len(refined) != 1 || refined[0].Content != "short" {
		t.Fatalf("expected chunk to pass through unchanged, got %#v", refined)
	}
}

func TestApplyOverlapPrependsPreviousTail(t *testing.T) {
	chunks := []models.Chunk{
		{Content: "line one\nline two\n", SourceLocation: models.SourceLocation{StartLine: 1, EndLine: 2}},
		{Content: "line three\nline four\n", SourceLocation: models.SourceLocation{StartLine: 3, EndLine: 4}},
	}

	overlapped := applyOverlap(chunks, 9) // "line two\n" is 9 chars
	if overlapped[0].Content != chunks[0].Content {
		t.Error("first chunk must be unchanged")
	}
	if !strings.HasPrefix(overlapped[1].Content, "line two\n") {
		t.Errorf("expected second chunk to be prefixed with previous chunk's tail, got %q", overlapped[1].Content)
	}
	if overlapped[1].SourceLocation.StartLine != 2 {
		t.Errorf("expected start_line to shift back by 1, got %d", overlapped[1].SourceLocation.StartLine)
	}
}

func TestApplyOverlapNoopWithoutOverlapOrSingleChunk(t *testing.T) {
	chunks := []models.Chunk{{Content: "only chunk"}}
	if got := applyOverlap(chunks, 100); len(got) != 1 || got[0].Content != "only chunk" {
		t.Errorf("expected single chunk unchanged, got %#v", got)
	}

	two := []models.Chunk{{Content: "a"}, {Content: "b"}}
	if got := applyOverlap(two, 0); got[1].Content != "b" {
		t.Errorf("expected no overlap applied when overlapChars=0, got %q", got[1].Content)
	}
}

func TestFallbackChunkRespectsBoundaryLookahead(t *testing.T) {
	content := "func a() {\n" + strings.Repeat("    x := 1\n", 5) + "}\n\nfunc b() {\n" + strings.Repeat("    y := 2\n", 5) + "}\n"
	chunks := FallbackChunk("go", content, 80, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// the first chunk should end at or before the "func b" boundary, not mid-statement
	if strings.Contains(chunks[0].Content, "func b") {
		t.Error("expected the boundary lookahead to split before the second function")
	}
}

func TestFallbackChunkOverlapAddsTrailingLines(t *testing.T) {
	content := strings.Repeat("line\n", 20)
	withOverlap := FallbackChunk("", content, 30, 100) // overlapChars/50 = 2 lines
	without := FallbackChunk("", content, 30, 0)

	if len(withOverlap) < 2 || len(without) < 2 {
		t.Fatalf("expected multiple chunks from both runs")
	}
	if withOverlap[1].SourceLocation.StartLine >= without[1].SourceLocation.StartLine {
		t.Errorf("expected overlap to pull the second chunk's start_line earlier: with=%d without=%d",
			withOverlap[1].SourceLocation.StartLine, without[1].SourceLocation.StartLine)
	}
}
