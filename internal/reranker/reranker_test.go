package reranker

import (
	"context"
	"errors"
	"testing"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

type fakeCompletionProvider struct {
	responses map[string]string
	err       error
	response  string
}

func (f *fakeCompletionProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.responses != nil {
		for substr, resp := range f.responses {
			if contains(prompt, substr) {
				return resp, nil
			}
		}
	}
	return f.response, nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func candidate(id string, score float64) models.SearchResult {
	return models.SearchResult{
		ID:    id,
		Score: score,
		Document: models.SearchDocument{
			FilePath:     "f.go",
			OriginalCode: "func " + id + "() {}",
		},
	}
}

func TestPointwiseRerankOrdersByScoreAndPopulatesMetadata(t *testing.T) {
	provider := &fakeCompletionProvider{responses: map[string]string{
		"a()": "2",
		"b()": "9",
	}}
	r := NewPointwiseReranker(provider, nil, 4)

	candidates := []models.SearchResult{candidate("a", 0.9), candidate("b", 0.1)}
	out := r.Rerank(context.Background(), "query", candidates, 10)

	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ID != "b" {
		t.Errorf("expected b to rank first after rescoring, got %s first", out[0].ID)
	}
	if out[0].Document.Metadata[models.MetaRerankingScore] != 0.9 {
		t.Errorf("expected reranking_score 0.9, got %v", out[0].Document.Metadata[models.MetaRerankingScore])
	}
	if out[1].Document.Metadata[models.MetaOriginalScore] != 0.9 {
		t.Errorf("expected original_score to carry over candidate a's prior score, got %v", out[1].Document.Metadata[models.MetaOriginalScore])
	}
}

func TestPointwiseRerankTruncatesToTopK(t *testing.T) {
	provider := &fakeCompletionProvider{response: "5"}
	r := NewPointwiseReranker(provider, nil, 4)

	candidates := []models.SearchResult{candidate("a", 0.1), candidate("b", 0.2), candidate("c", 0.3)}
	out := r.Rerank(context.Background(), "query", candidates, 2)
	if len(out) != 2 {
		t.Fatalf("expected top_k=2 results, got %d", len(out))
	}
}

func TestRerankFailureReturnsOriginalOrderUnchanged(t *testing.T) {
	provider := &fakeCompletionProvider{err: errors.New("provider down")}
	r := NewPointwiseReranker(provider, nil, 4)

	candidates := []models.SearchResult{candidate("a", 0.1), candidate("b", 0.2), candidate("c", 0.3)}
	out := r.Rerank(context.Background(), "query", candidates, 2)

	if len(out) != 2 {
		t.Fatalf("expected fallback truncated to top_k=2, got %d", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Errorf("expected original order preserved on failure, got %s, %s", out[0].ID, out[1].ID)
	}
}

func TestRerankEmptyCandidatesIsNoop(t *testing.T) {
	provider := &fakeCompletionProvider{response: "5"}
	r := NewPointwiseReranker(provider, nil, 4)

	out := r.Rerank(context.Background(), "query", nil, 10)
	if len(out) != 0 {
		t.Fatalf("expected no results, got %d", len(out))
	}
}

func TestCrossEncoderRerankParsesNormalisedScore(t *testing.T) {
	provider := &fakeCompletionProvider{responses: map[string]string{
		"a()": "0.2",
		"b()": "0.95",
	}}
	r := NewCrossEncoderReranker(provider, nil, 4)

	candidates := []models.SearchResult{candidate("a", 0.5), candidate("b", 0.5)}
	out := r.Rerank(context.Background(), "query", candidates, 10)
	if out[0].ID != "b" {
		t.Errorf("expected b to rank first, got %s first", out[0].ID)
	}
}

func TestRerankUnparsableScoreFallsBackToOriginalOrder(t *testing.T) {
	provider := &fakeCompletionProvider{response: "not a number"}
	r := NewPointwiseReranker(provider, nil, 4)

	candidates := []models.SearchResult{candidate("a", 0.1), candidate("b", 0.2)}
	out := r.Rerank(context.Background(), "query", candidates, 10)
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Errorf("expected original order preserved when scores fail to parse, got %s, %s", out[0].ID, out[1].ID)
	}
}

func TestRerankRoutesThroughBreaker(t *testing.T) {
	provider := &fakeCompletionProvider{response: "7"}
	b := breaker.New(breaker.DefaultConfig(), nil)
	defer b.Close()

	r := NewPointwiseReranker(provider, b, 4)
	candidates := []models.SearchResult{candidate("a", 0.1)}
	out := r.Rerank(context.Background(), "query", candidates, 10)
	if out[0].Document.Metadata[models.MetaRerankingScore] != 0.7 {
		t.Errorf("expected the breaker to pass through a successful call, got %v", out[0].Document.Metadata[models.MetaRerankingScore])
	}
}
