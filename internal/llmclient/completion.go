package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CompletionProvider is the transport-level contract the contextualiser
// (C3), translator (C4), and reranker (C9) build on: one prompt in, one
// completion out. Grounded on the same pooled-HTTP-client pattern as
// EmbeddingProvider; the teacher never calls a completion endpoint (Ollama
// embeddings only), so this is a sibling transport built in its idiom
// rather than a ported one.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OllamaCompletionConfig configures OllamaCompletionClient.
type OllamaCompletionConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
}

// OllamaCompletionClient talks to an Ollama-compatible /api/generate
// endpoint in non-streaming mode.
type OllamaCompletionClient struct {
	cfg        OllamaCompletionConfig
	httpClient *http.Client
}

// NewOllamaCompletionClient builds a client ready to serve CompletionProvider.
// Completions run longer than embeddings, so this gets a generous timeout.
func NewOllamaCompletionClient(cfg OllamaCompletionConfig) *OllamaCompletionClient {
	return &OllamaCompletionClient{cfg: cfg, httpClient: NewHTTPClient(120 * time.Second)}
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete sends prompt to the model and returns its full (non-streamed)
// response text.
func (c *OllamaCompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:   c.cfg.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: options{Temperature: c.cfg.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", c.cfg.Endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return parsed.Response, nil
}
