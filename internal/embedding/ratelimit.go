package embedding

import (
	"context"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// window is the sliding-window span spec.md §4.5 rate-limits over.
const window = 60 * time.Second

// slack is added on top of the oldest in-window entry's age before a
// blocked caller is allowed to proceed, so two callers racing the same
// expiry don't both slip in over quota.
const slack = 50 * time.Millisecond

type usage struct {
	tokens int
	at     time.Time
}

// RateLimiter maintains a sliding per-minute token budget shared across
// every embed call. Grounded on the teacher's TokenChunker use of
// tiktoken-go for token counts (internal/indexer/token_chunker.go); the
// teacher never used that count for rate limiting, only for chunk sizing.
type RateLimiter struct {
	quota int // tokens per 60s window; <= 0 disables limiting

	mu      sync.Mutex
	entries []usage
	enc     *tiktoken.Tiktoken
}

// NewRateLimiter builds a limiter against a fixed token-per-minute quota.
// enc may be nil, in which case CountTokens falls back to a byte-based
// estimate (still deterministic, just coarser).
func NewRateLimiter(quotaTokensPerMinute int) *RateLimiter {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &RateLimiter{quota: quotaTokensPerMinute, enc: enc}
}

// CountTokens returns the tiktoken cl100k_base token count for text, or a
// ~4-chars-per-token estimate if the encoder failed to load.
func (l *RateLimiter) CountTokens(text string) int {
	if l.enc != nil {
		return len(l.enc.Encode(text, nil, nil))
	}
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// Wait blocks until adding tokens to the current 60-second window would not
// exceed quota, then records the usage. Returns ctx.Err() if ctx is done
// first. A non-positive quota disables the gate entirely.
func (l *RateLimiter) Wait(ctx context.Context, tokens int) error {
	if l.quota <= 0 {
		return nil
	}
	for {
		l.mu.Lock()
		now := time.Now()
		l.evict(now)

		sum := 0
		for _, e := range l.entries {
			sum += e.tokens
		}

		if sum+tokens <= l.quota || len(l.entries) == 0 {
			// An empty window means nothing is in flight to wait on: either
			// this is the first call, or a single request exceeds the whole
			// quota. Either way, admit it rather than waiting forever on
			// entries[0], which doesn't exist.
			l.entries = append(l.entries, usage{tokens: tokens, at: now})
			l.mu.Unlock()
			return nil
		}

		oldest := l.entries[0].at
		l.mu.Unlock()

		wait := window - now.Sub(oldest) + slack
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// evict drops entries older than the sliding window. Callers must hold mu.
func (l *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.entries) && l.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.entries = l.entries[i:]
	}
}
