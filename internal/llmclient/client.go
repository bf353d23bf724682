// Package llmclient holds the HTTP transport shared by every component that
// talks to a local or remote model server: the embedder (C5), contextualiser
// (C3), translator (C4), and reranker (C9). The connection-pooling tuning
// here is ported directly from the teacher's embeddings.NewClient.
package llmclient

import (
	"net/http"
	"time"
)

// NewHTTPClient builds the pooled *http.Client every provider in this
// package shares. Grounded on the teacher's embeddings.NewClient transport
// settings (100 idle/per-host/total connections, 90s idle timeout, HTTP/1.1).
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
		ForceAttemptHTTP2:   false,
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
