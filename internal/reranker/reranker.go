// Package reranker implements C9: re-scoring a candidate list for a query
// using a second model. Two strategies are required by spec.md §4.9: a
// cross-encoder-style provider call and a pointwise LLM relevance scorer.
// Both route through the shared llmclient.CompletionProvider + breaker
// plumbing C3/C4/C5 use, and both fail open — on any scoring error or
// context cancellation the original candidate order survives, truncated to
// top_k, matching the teacher's own "never let a ranking heuristic crash
// the caller" posture in search/searcher.go.
package reranker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
	"github.com/jamaly87/codebase-semantic-search/internal/llmclient"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// Reranker is the C9 contract.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.SearchResult, topK int) []models.SearchResult
}

const defaultConcurrency = 8

type scoringFunc func(ctx context.Context, query string, candidate models.SearchResult) (float64, error)

// rerank is the shared scoring/fallback loop both strategies use: score
// every candidate concurrently (bounded), and on any failure return the
// original top_k slice untouched.
func rerank(ctx context.Context, query string, candidates []models.SearchResult, topK int, concurrency int, score scoringFunc) []models.SearchResult {
	if len(candidates) == 0 {
		return candidates
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	scores := make([]float64, len(candidates))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, cand := range candidates {
		i, cand := i, cand
		group.Go(func() error {
			s, err := score(gctx, query, cand)
			if err != nil {
				return err
			}
			scores[i] = s
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return truncate(candidates, topK)
	}

	out := make([]models.SearchResult, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Document.Metadata = withMetadata(out[i].Document.Metadata, models.MetaOriginalScore, out[i].Score)
		out[i].Document.Metadata = withMetadata(out[i].Document.Metadata, models.MetaRerankingScore, scores[i])
	}
	sortByScoreDesc(out, scores)
	return truncate(out, topK)
}

func truncate(candidates []models.SearchResult, topK int) []models.SearchResult {
	if topK <= 0 || topK >= len(candidates) {
		return candidates
	}
	return candidates[:topK]
}

func withMetadata(meta map[string]interface{}, key string, value float64) map[string]interface{} {
	if meta == nil {
		meta = make(map[string]interface{}, 2)
	}
	meta[key] = value
	return meta
}

// sortByScoreDesc reorders candidates (and the parallel scores slice) by
// score descending using a plain insertion sort — candidate lists here are
// bounded by search_limit (spec.md §4.10), never large enough to need
// anything fancier.
func sortByScoreDesc(candidates []models.SearchResult, scores []float64) {
	for i := 1; i < len(candidates); i++ {
		j := i
		for j > 0 && scores[j-1] < scores[j] {
			scores[j-1], scores[j] = scores[j], scores[j-1]
			candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
			j--
		}
	}
}

func renderDocument(candidate models.SearchResult) string {
	doc := candidate.Document
	var b strings.Builder
	if doc.NaturalLanguageDescription != "" {
		b.WriteString(doc.NaturalLanguageDescription)
		b.WriteString("\n\n")
	}
	if doc.Context != "" {
		b.WriteString(doc.Context)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "File: %s", doc.FilePath)
	if doc.FunctionName != "" {
		fmt.Fprintf(&b, " (function %s)", doc.FunctionName)
	}
	if doc.ClassName != "" {
		fmt.Fprintf(&b, " (class %s)", doc.ClassName)
	}
	b.WriteString("\n\n")
	b.WriteString(doc.OriginalCode)
	return b.String()
}

// CrossEncoderReranker passes the concatenated document rendering straight
// to the provider and expects a bare numeric relevance score back.
type CrossEncoderReranker struct {
	provider    llmclient.CompletionProvider
	breaker     *breaker.Breaker
	concurrency int
}

// NewCrossEncoderReranker builds a CrossEncoderReranker. br may be nil.
func NewCrossEncoderReranker(provider llmclient.CompletionProvider, br *breaker.Breaker, concurrency int) *CrossEncoderReranker {
	return &CrossEncoderReranker{provider: provider, breaker: br, concurrency: concurrency}
}

// Rerank implements Reranker.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []models.SearchResult, topK int) []models.SearchResult {
	return rerank(ctx, query, candidates, topK, r.concurrency, r.score)
}

func (r *CrossEncoderReranker) score(ctx context.Context, query string, candidate models.SearchResult) (float64, error) {
	prompt := fmt.Sprintf("Query: %s\n\nDocument:\n%s\n\nRelevance score (0.0-1.0):", query, renderDocument(candidate))
	resp, err := runPrompt(ctx, r.provider, r.breaker, prompt)
	if err != nil {
		return 0, err
	}
	return parseScore(resp, 1.0)
}

// PointwiseReranker asks the model to rate relevance on an explicit 0-10
// scale and normalises the answer to [0,1].
type PointwiseReranker struct {
	provider    llmclient.CompletionProvider
	breaker     *breaker.Breaker
	concurrency int
}

// NewPointwiseReranker builds a PointwiseReranker. br may be nil.
func NewPointwiseReranker(provider llmclient.CompletionProvider, br *breaker.Breaker, concurrency int) *PointwiseReranker {
	return &PointwiseReranker{provider: provider, breaker: br, concurrency: concurrency}
}

// Rerank implements Reranker.
func (r *PointwiseReranker) Rerank(ctx context.Context, query string, candidates []models.SearchResult, topK int) []models.SearchResult {
	return rerank(ctx, query, candidates, topK, r.concurrency, r.score)
}

func (r *PointwiseReranker) score(ctx context.Context, query string, candidate models.SearchResult) (float64, error) {
	prompt := fmt.Sprintf(
		"On a scale of 0 to 10, how relevant is this code to the query %q? "+
			"Answer with a single integer only.\n\n%s", query, renderDocument(candidate))
	resp, err := runPrompt(ctx, r.provider, r.breaker, prompt)
	if err != nil {
		return 0, err
	}
	return parseScore(resp, 10.0)
}

func runPrompt(ctx context.Context, provider llmclient.CompletionProvider, br *breaker.Breaker, prompt string) (string, error) {
	if br == nil {
		return provider.Complete(ctx, prompt)
	}
	val, err := br.Execute(ctx, func() (interface{}, error) {
		return provider.Complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

// parseScore extracts the first numeric token from resp and normalises it
// by dividing by scale.
func parseScore(resp string, scale float64) (float64, error) {
	field := strings.TrimSpace(resp)
	if i := strings.IndexAny(field, " \n\t"); i >= 0 {
		field = field[:i]
	}
	field = strings.TrimSpace(field)
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("reranker: could not parse score from %q: %w", resp, err)
	}
	if scale > 0 {
		v /= scale
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, nil
}
