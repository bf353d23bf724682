package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// TaskType distinguishes how a text should be embedded: as a document being
// indexed, a natural-language search query, or a code search query. The
// teacher's Ollama transport has no such concept (a bare prompt goes
// straight to /api/embeddings); this module keeps that transport but tags
// the prompt per task type the way instruction-tuned embedding models
// expect (nomic-embed-text's search_document:/search_query: convention).
type TaskType string

const (
	TaskRetrievalDocument  TaskType = "retrieval_document"
	TaskRetrievalQuery     TaskType = "retrieval_query"
	TaskCodeRetrievalQuery TaskType = "code_retrieval_query"
)

// promptPrefix maps a task type to the instruction prefix nomic-embed-text
// (and compatible Ollama models) expect baked into the prompt text.
func promptPrefix(task TaskType) string {
	switch task {
	case TaskRetrievalQuery, TaskCodeRetrievalQuery:
		return "search_query: "
	default:
		return "search_document: "
	}
}

// EmbeddingProvider is the transport-level contract the embedder (C5)
// builds on: a single text in, one vector out, batched with best-effort
// concurrency at the provider.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float32, error)
	Dimension() int
	Model() string
}

// OllamaEmbeddingConfig configures OllamaEmbeddingClient.
type OllamaEmbeddingConfig struct {
	Endpoint       string
	Model          string
	FullDimension  int
	Dimensions     int
	UseMRL         bool
	Normalize      bool
	MaxConcurrency int
}

// OllamaEmbeddingClient talks to an Ollama-compatible /api/embeddings
// endpoint. Grounded on the teacher's embeddings.Client: same request/
// response shape, same MRL-truncation-then-normalize pipeline, same
// connection-pooled http.Client.
type OllamaEmbeddingClient struct {
	cfg        OllamaEmbeddingConfig
	httpClient *http.Client
}

// NewOllamaEmbeddingClient builds a client ready to serve EmbeddingProvider.
func NewOllamaEmbeddingClient(cfg OllamaEmbeddingConfig) *OllamaEmbeddingClient {
	if cfg.FullDimension == 0 {
		cfg.FullDimension = 768
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = cfg.FullDimension
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	return &OllamaEmbeddingClient{
		cfg:        cfg,
		httpClient: NewHTTPClient(0),
	}
}

func (c *OllamaEmbeddingClient) Dimension() int { return c.cfg.Dimensions }
func (c *OllamaEmbeddingClient) Model() string  { return c.cfg.Model }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text. maxChars mirrors the
// teacher's conservative 4000-char safety net ahead of the chunker's own
// size limits.
func (c *OllamaEmbeddingClient) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	const maxChars = 4000
	prompt := promptPrefix(task) + text
	if len(prompt) > maxChars {
		prompt = prompt[:maxChars]
	}

	reqBody, err := json.Marshal(embedRequest{Model: c.cfg.Model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", c.cfg.Endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if c.cfg.FullDimension > 0 && len(parsed.Embedding) != c.cfg.FullDimension {
		return nil, fmt.Errorf("expected %d dimensions from model, got %d", c.cfg.FullDimension, len(parsed.Embedding))
	}

	embedding := parsed.Embedding
	if c.cfg.UseMRL && c.cfg.Dimensions < len(embedding) {
		embedding = applyMRL(embedding, c.cfg.Dimensions)
	}
	if c.cfg.Normalize {
		embedding = normalize(embedding)
	}
	return embedding, nil
}

// EmbedBatch generates embeddings concurrently, bounded by MaxConcurrency,
// using errgroup instead of the teacher's hand-rolled semaphore+WaitGroup so
// the first error cancels the shared context and the rest unwind cleanly.
func (c *OllamaEmbeddingClient) EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) == 1 {
		v, err := c.Embed(ctx, texts[0], task)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	}

	embeddings := make([][]float32, len(texts))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.MaxConcurrency)

	for i, text := range texts {
		i, text := i, text
		group.Go(func() error {
			v, err := c.Embed(gctx, text, task)
			if err != nil {
				return fmt.Errorf("embed item %d: %w", i, err)
			}
			embeddings[i] = v
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// StatusError carries the response status from a failed transport call so
// the breaker's quota classifier (internal/breaker) can recognize 429s.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Status }

// normalize performs L2 normalization, applied after MRL slicing.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	magnitude := 1.0 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * magnitude)
	}
	return out
}

// validMRLDims are the dimensions nomic-embed-text was trained to support
// Matryoshka truncation at.
var validMRLDims = []int{64, 128, 256, 512, 768}

// applyMRL truncates an embedding to targetDim, rounding to the nearest
// dimension nomic-embed-text actually supports when targetDim isn't one of
// them. Ported from the teacher's applyMRL.
func applyMRL(embedding []float32, targetDim int) []float32 {
	valid := false
	for _, d := range validMRLDims {
		if targetDim == d {
			valid = true
			break
		}
	}
	if !valid {
		targetDim = nearestMRLDim(targetDim)
	}
	if targetDim > len(embedding) {
		targetDim = len(embedding)
	}
	sliced := make([]float32, targetDim)
	copy(sliced, embedding[:targetDim])
	return sliced
}

func nearestMRLDim(target int) int {
	if target < validMRLDims[0] {
		return validMRLDims[0]
	}
	last := len(validMRLDims) - 1
	if target > validMRLDims[last] {
		return validMRLDims[last]
	}
	for i := 0; i < last; i++ {
		if target >= validMRLDims[i] && target <= validMRLDims[i+1] {
			if target-validMRLDims[i] < validMRLDims[i+1]-target {
				return validMRLDims[i]
			}
			return validMRLDims[i+1]
		}
	}
	return target
}
