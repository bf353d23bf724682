// Package embedding implements C5: converting contextualised chunks and
// queries into fixed-dimension vectors, gated by a sliding-window token
// quota and a shared circuit breaker, with an LRU response cache so an
// unchanged chunk costs nothing to re-embed on an incremental run.
//
// Grounded on the teacher's embeddings.Client (transport, MRL truncation,
// normalize — now in internal/llmclient) and embeddings.Batcher
// (semaphore-bounded concurrent batches, generalized here to errgroup).
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/llmclient"
)

// TaskType and its three values are re-exported from llmclient so callers
// outside this package never need to import the transport layer directly.
type TaskType = llmclient.TaskType

const (
	TaskRetrievalDocument  = llmclient.TaskRetrievalDocument
	TaskRetrievalQuery     = llmclient.TaskRetrievalQuery
	TaskCodeRetrievalQuery = llmclient.TaskCodeRetrievalQuery
)

// batchConcurrency bounds EmbedBatch's fan-out, matching the teacher's
// Batcher default of 10 concurrent requests.
const batchConcurrency = 10

const defaultBaseBackoff = 200 * time.Millisecond

// Embedder is the C5 implementation. Its zero value is not usable; build
// one with New.
type Embedder struct {
	provider    llmclient.EmbeddingProvider
	breaker     *breaker.Breaker
	limiter     *RateLimiter
	cache       *responseCache
	maxRetries  int
	baseBackoff time.Duration
}

// New builds an Embedder. br may be nil, in which case calls go straight to
// provider without circuit-breaker protection (useful for tests and for the
// template/no-network paths elsewhere in the pipeline).
func New(cfg config.EmbeddingConfig, provider llmclient.EmbeddingProvider, br *breaker.Breaker) *Embedder {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Embedder{
		provider:    provider,
		breaker:     br,
		limiter:     NewRateLimiter(cfg.QuotaTPM),
		cache:       newResponseCache(cfg.CacheSize),
		maxRetries:  retries,
		baseBackoff: defaultBaseBackoff,
	}
}

// Dimension reports the vector size this embedder produces.
func (e *Embedder) Dimension() int { return e.provider.Dimension() }

// Model reports the underlying provider's model identifier.
func (e *Embedder) Model() string { return e.provider.Model() }

// Embed implements the single-item embed contract. On final failure it
// raises, per spec.md §4.5's "implementer's choice" for single-item mode.
func (e *Embedder) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	if v, ok := e.cache.get(task, text); ok {
		return v, nil
	}
	v, err := e.embedWithRetry(ctx, text, task)
	if err != nil {
		return nil, err
	}
	e.cache.put(task, text, v)
	return v, nil
}

// EmbedBatch implements the batch embed contract: results preserve input
// order, and an item that exhausts its retries yields an empty vector
// rather than failing the whole batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(batchConcurrency)

	for i, text := range texts {
		i, text := i, text
		group.Go(func() error {
			if v, ok := e.cache.get(task, text); ok {
				out[i] = v
				return nil
			}
			v, err := e.embedWithRetry(gctx, text, task)
			if err != nil {
				out[i] = []float32{}
				return nil
			}
			e.cache.put(task, text, v)
			out[i] = v
			return nil
		})
	}

	// Every goroutine above swallows its own error into an empty vector, so
	// group.Wait() never actually returns a non-nil error; the explicit
	// check just documents that this call can't poison the batch.
	_ = group.Wait()
	return out, nil
}

// DualEmbed composes two Embed calls in parallel: the code vector (always)
// and, when dualOn, a natural-language vector. When dualOn is false, nlVec
// is nil, matching spec.md §4.5's "natural-language slot is empty" rule.
func (e *Embedder) DualEmbed(ctx context.Context, code, naturalLanguage string, dualOn bool) (codeVec, nlVec []float32, err error) {
	if !dualOn {
		v, err := e.Embed(ctx, code, TaskCodeRetrievalQuery)
		return v, nil, err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		v, err := e.Embed(gctx, code, TaskCodeRetrievalQuery)
		codeVec = v
		return err
	})
	group.Go(func() error {
		v, err := e.Embed(gctx, naturalLanguage, TaskRetrievalDocument)
		nlVec = v
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return codeVec, nlVec, nil
}

// embedWithRetry runs one embed call through the rate limiter and circuit
// breaker, retrying with exponential backoff on any error except a closed
// breaker or a cancelled/expired context, which propagate immediately.
func (e *Embedder) embedWithRetry(ctx context.Context, text string, task TaskType) ([]float32, error) {
	tokens := e.limiter.CountTokens(text)
	backoff := e.baseBackoff
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		if err := e.limiter.Wait(ctx, tokens); err != nil {
			return nil, err
		}

		val, err := e.runEmbed(ctx, text, task)
		if err == nil {
			return val, nil
		}
		lastErr = err
		if errors.Is(err, breaker.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("embed: exhausted %d retries: %w", e.maxRetries, lastErr)
}

func (e *Embedder) runEmbed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	if e.breaker == nil {
		return e.provider.Embed(ctx, text, task)
	}
	val, err := e.breaker.Execute(ctx, func() (interface{}, error) {
		return e.provider.Embed(ctx, text, task)
	})
	if err != nil {
		return nil, err
	}
	return val.([]float32), nil
}
