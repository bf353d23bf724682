package llmclient

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalization(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected float64
	}{
		{"normalize vector", []float32{3.0, 4.0}, 1.0},
		{"normalize zero vector", []float32{0.0, 0.0, 0.0}, 0.0},
		{"normalize unit vector", []float32{1.0, 0.0, 0.0}, 1.0},
		{"normalize negative values", []float32{-3.0, -4.0}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized := normalize(tt.input)

			var magnitude float64
			for _, v := range normalized {
				magnitude += float64(v) * float64(v)
			}
			magnitude = math.Sqrt(magnitude)

			if math.Abs(magnitude-tt.expected) > 0.0001 {
				t.Errorf("expected magnitude %.4f, got %.4f", tt.expected, magnitude)
			}
			if len(normalized) != len(tt.input) {
				t.Errorf("expected length %d, got %d", len(tt.input), len(normalized))
			}
		})
	}
}

func TestApplyMRLTruncatesToValidDimension(t *testing.T) {
	full := make([]float32, 768)
	for i := range full {
		full[i] = float32(i)
	}

	out := applyMRL(full, 256)
	if len(out) != 256 {
		t.Fatalf("expected 256 dims, got %d", len(out))
	}
	for i := range out {
		if out[i] != full[i] {
			t.Fatalf("expected a prefix slice, diverged at %d", i)
		}
	}

	rounded := applyMRL(full, 300) // not a valid MRL dim, rounds to 256
	if len(rounded) != 256 {
		t.Errorf("expected target 300 to round to 256, got %d", len(rounded))
	}
}

func fakeOllamaServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = float32(len(req.Prompt))
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: vec})
	}))
}

func TestOllamaEmbeddingClientEmbedTagsPromptByTaskType(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Prompt
		json.NewEncoder(w).Encode(embedResponse{Embedding: make([]float32, 8)})
	}))
	defer server.Close()

	client := NewOllamaEmbeddingClient(OllamaEmbeddingConfig{
		Endpoint: server.URL, Model: "test-model", FullDimension: 8, Dimensions: 8,
	})

	if _, err := client.Embed(context.Background(), "func Foo() {}", TaskCodeRetrievalQuery); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if gotPrompt != "search_query: func Foo() {}" {
		t.Errorf("expected query-tagged prompt, got %q", gotPrompt)
	}

	if _, err := client.Embed(context.Background(), "func Foo() {}", TaskRetrievalDocument); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if gotPrompt != "search_document: func Foo() {}" {
		t.Errorf("expected document-tagged prompt, got %q", gotPrompt)
	}
}

func TestOllamaEmbeddingClientEmbedAppliesMRLAndNormalize(t *testing.T) {
	server := fakeOllamaServer(t, 768)
	defer server.Close()

	client := NewOllamaEmbeddingClient(OllamaEmbeddingConfig{
		Endpoint: server.URL, Model: "nomic-embed-text",
		FullDimension: 768, Dimensions: 128, UseMRL: true, Normalize: true,
	})

	vec, err := client.Embed(context.Background(), "hello", TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 128 {
		t.Fatalf("expected 128 dims after MRL, got %d", len(vec))
	}
	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(mag)-1.0) > 0.001 {
		t.Errorf("expected a normalized vector, got magnitude %f", math.Sqrt(mag))
	}
}

func TestOllamaEmbeddingClientEmbedRejectsWrongDimension(t *testing.T) {
	server := fakeOllamaServer(t, 10)
	defer server.Close()

	client := NewOllamaEmbeddingClient(OllamaEmbeddingConfig{
		Endpoint: server.URL, Model: "nomic-embed-text", FullDimension: 768, Dimensions: 768,
	})

	if _, err := client.Embed(context.Background(), "hello", TaskRetrievalDocument); err == nil {
		t.Fatal("expected a dimension mismatch error")
	}
}

func TestOllamaEmbeddingClientEmbedSurfacesStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	client := NewOllamaEmbeddingClient(OllamaEmbeddingConfig{Endpoint: server.URL, Model: "m", FullDimension: 8, Dimensions: 8})

	_, err := client.Embed(context.Background(), "hello", TaskRetrievalDocument)
	if err == nil {
		t.Fatal("expected an error")
	}
	var statusErr *StatusError
	if !asStatusError(err, &statusErr) {
		t.Fatalf("expected a *StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode() != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", statusErr.StatusCode())
	}
}

func TestOllamaEmbeddingClientEmbedBatchPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		vec := []float32{float32(len(req.Prompt))}
		json.NewEncoder(w).Encode(embedResponse{Embedding: vec})
	}))
	defer server.Close()

	client := NewOllamaEmbeddingClient(OllamaEmbeddingConfig{Endpoint: server.URL, Model: "m", FullDimension: 1, Dimensions: 1})

	texts := []string{"a", "bb", "ccc", "dddd"}
	out, err := client.EmbedBatch(context.Background(), texts, TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(out) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(out))
	}
	for i, text := range texts {
		want := float32(len(promptPrefix(TaskRetrievalDocument) + text))
		if out[i][0] != want {
			t.Errorf("result %d: expected %v, got %v", i, want, out[i])
		}
	}
}

func asStatusError(err error, target **StatusError) bool {
	if se, ok := err.(*StatusError); ok {
		*target = se
		return true
	}
	return false
}
