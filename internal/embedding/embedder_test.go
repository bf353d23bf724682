package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/llmclient"
)

// fakeProvider lets tests script per-call failures without a real server.
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	failUntil int // first failUntil calls fail with failErr
	failErr   error
	dim       int
}

func (f *fakeProvider) Embed(ctx context.Context, text string, task llmclient.TaskType) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if n <= f.failUntil {
		return nil, f.failErr
	}
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = float32(len(text))
	}
	return vec, nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string, task llmclient.TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t, task)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Model() string  { return "fake-model" }

func testEmbeddingConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{
		QuotaTPM:   0, // disable rate limiting in unit tests
		CacheSize:  64,
		MaxRetries: 3,
	}
}

func TestEmbedReturnsVectorOnSuccess(t *testing.T) {
	provider := &fakeProvider{dim: 4}
	e := New(testEmbeddingConfig(), provider, nil)

	vec, err := e.Embed(context.Background(), "hello", TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected dimension 4, got %d", len(vec))
	}
}

func TestEmbedCachesByTaskTypeAndText(t *testing.T) {
	provider := &fakeProvider{dim: 2}
	e := New(testEmbeddingConfig(), provider, nil)

	if _, err := e.Embed(context.Background(), "foo", TaskRetrievalDocument); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "foo", TaskRetrievalDocument); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Errorf("expected the second call to hit cache, got %d provider calls", provider.calls)
	}

	if _, err := e.Embed(context.Background(), "foo", TaskRetrievalQuery); err != nil {
		t.Fatal(err)
	}
	if provider.calls != 2 {
		t.Errorf("expected a different task_type to bypass cache, got %d provider calls", provider.calls)
	}
}

func TestEmbedRetriesThenSucceeds(t *testing.T) {
	provider := &fakeProvider{dim: 2, failUntil: 2, failErr: errors.New("transient: connection reset")}
	e := New(testEmbeddingConfig(), provider, nil)
	e.baseBackoff = 0

	vec, err := e.Embed(context.Background(), "hello", TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("expected retry to eventually succeed, got %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("expected dimension 2, got %d", len(vec))
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 attempts (2 failures + 1 success), got %d", provider.calls)
	}
}

func TestEmbedRaisesAfterExhaustingRetries(t *testing.T) {
	provider := &fakeProvider{dim: 2, failUntil: 100, failErr: errors.New("persistent failure")}
	cfg := testEmbeddingConfig()
	cfg.MaxRetries = 2
	e := New(cfg, provider, nil)
	e.baseBackoff = 0

	_, err := e.Embed(context.Background(), "hello", TaskRetrievalDocument)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
}

func TestEmbedBatchYieldsEmptyVectorForExhaustedItem(t *testing.T) {
	provider := &fakeProvider{dim: 2, failUntil: 1000, failErr: errors.New("down")}
	cfg := testEmbeddingConfig()
	cfg.MaxRetries = 1
	e := New(cfg, provider, nil)
	e.baseBackoff = 0

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}, TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("EmbedBatch must not fail the whole batch, got %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	for i, v := range out {
		if len(v) != 0 {
			t.Errorf("expected item %d to be an empty vector, got %v", i, v)
		}
	}
}

func TestEmbedBatchPreservesOrderOnSuccess(t *testing.T) {
	provider := &fakeProvider{dim: 1}
	e := New(testEmbeddingConfig(), provider, nil)

	texts := []string{"a", "bb", "ccc"}
	out, err := e.EmbedBatch(context.Background(), texts, TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	for i, text := range texts {
		if out[i][0] != float32(len(text)) {
			t.Errorf("result %d out of order: expected len %d, got %v", i, len(text), out[i])
		}
	}
}

func TestDualEmbedOffOnlyProducesCodeVector(t *testing.T) {
	provider := &fakeProvider{dim: 2}
	e := New(testEmbeddingConfig(), provider, nil)

	code, nl, err := e.DualEmbed(context.Background(), "func f() {}", "does a thing", false)
	if err != nil {
		t.Fatalf("DualEmbed failed: %v", err)
	}
	if code == nil {
		t.Error("expected a code vector")
	}
	if nl != nil {
		t.Errorf("expected no natural-language vector when dual embedding is off, got %v", nl)
	}
}

func TestDualEmbedOnProducesBothVectors(t *testing.T) {
	provider := &fakeProvider{dim: 2}
	e := New(testEmbeddingConfig(), provider, nil)

	code, nl, err := e.DualEmbed(context.Background(), "func f() {}", "does a thing", true)
	if err != nil {
		t.Fatalf("DualEmbed failed: %v", err)
	}
	if code == nil || nl == nil {
		t.Fatalf("expected both vectors, got code=%v nl=%v", code, nl)
	}
}

func TestEmbedRoutesThroughBreaker(t *testing.T) {
	provider := &fakeProvider{dim: 2}
	b := breaker.New(breaker.DefaultConfig(), nil)
	defer b.Close()

	e := New(testEmbeddingConfig(), provider, b)
	if _, err := e.Embed(context.Background(), "hello", TaskRetrievalDocument); err != nil {
		t.Fatalf("Embed through breaker failed: %v", err)
	}
	if b.State() != breaker.Closed {
		t.Errorf("expected breaker to remain closed on success, got %s", b.State())
	}
}

func TestEmbedPropagatesErrClosedWithoutRetrying(t *testing.T) {
	provider := &fakeProvider{dim: 2}
	b := breaker.New(breaker.DefaultConfig(), nil)
	b.Close()

	e := New(testEmbeddingConfig(), provider, b)
	_, err := e.Embed(context.Background(), "hello", TaskRetrievalDocument)
	if !errors.Is(err, breaker.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
