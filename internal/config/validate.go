package config

import "fmt"

// Validate enforces the invariants spec.md §4.11 requires of a resolved
// config before it reaches any other component. It never mutates cfg.
func Validate(cfg VectorStoreConfig) error {
	if cfg.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", cfg.Chunking.Size)
	}
	if cfg.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got %d", cfg.Chunking.Overlap)
	}
	if cfg.Chunking.Overlap >= cfg.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.size (%d)", cfg.Chunking.Overlap, cfg.Chunking.Size)
	}
	switch cfg.Chunking.Strategy {
	case ChunkStrategyAST, ChunkStrategyLLM, "":
	default:
		return fmt.Errorf("unknown chunking.strategy %q", cfg.Chunking.Strategy)
	}
	if cfg.Embedding.Model == "" {
		return fmt.Errorf("embedding.model must not be empty")
	}
	if cfg.Embedding.QuotaTPM <= 0 {
		return fmt.Errorf("embedding.quota_tokens_per_minute must be positive, got %d", cfg.Embedding.QuotaTPM)
	}
	if cfg.Search.Reranking.TopK < 0 {
		return fmt.Errorf("search.reranking.top_k must not be negative, got %d", cfg.Search.Reranking.TopK)
	}
	if cfg.SQL.VectorWeight < 0 || cfg.SQL.VectorWeight > 1 {
		return fmt.Errorf("sql.vector_weight must be within [0,1], got %f", cfg.SQL.VectorWeight)
	}
	switch cfg.Backend {
	case BackendSQL, BackendManaged, "":
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.ParallelWorkers < 0 {
		return fmt.Errorf("parallel_workers must not be negative, got %d", cfg.ParallelWorkers)
	}
	return nil
}
