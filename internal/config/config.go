// Package config loads, merges, and validates the layered VectorStoreConfig
// that drives every other component: chunking strategy, embedding provider,
// search defaults, and backend selection. Ported from the teacher's
// pkg/config/config.go (yaml + env-override + default-merge pattern),
// reshaped around spec.md §4.11's key names and nested under chunking/search.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ChunkStrategy selects how files are split into chunks.
type ChunkStrategy string

const (
	ChunkStrategyAST ChunkStrategy = "ast"
	ChunkStrategyLLM ChunkStrategy = "llm"
)

// Backend selects which vector-store shape an orchestrator run uses.
type Backend string

const (
	BackendSQL     Backend = "sql"
	BackendManaged Backend = "managed"
)

// ChunkingConfig configures C2 (AST chunker) and C3/C4 (contextualiser,
// translator).
type ChunkingConfig struct {
	Size               int           `json:"size" yaml:"size"`
	Overlap            int           `json:"overlap" yaml:"overlap"`
	Strategy           ChunkStrategy `json:"strategy" yaml:"strategy"`
	DualEmbedding      bool          `json:"dual_embedding" yaml:"dual_embedding"`
	ContextualChunking bool          `json:"contextual_chunking" yaml:"contextual_chunking"`
}

// EmbeddingConfig configures C5.
type EmbeddingConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Project  string `json:"project,omitempty" yaml:"project,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	QuotaTPM int    `json:"quota_tokens_per_minute" yaml:"quota_tokens_per_minute"`

	// FullDimension is the raw dimension the provider returns before any MRL
	// truncation; Dimensions is the (possibly smaller) dimension callers
	// actually get back. UseMRL/Normalize mirror the teacher's
	// pkg/config.EmbeddingsConfig knobs of the same name.
	FullDimension int  `json:"full_dimension,omitempty" yaml:"full_dimension,omitempty"`
	Dimensions    int  `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	UseMRL        bool `json:"use_mrl,omitempty" yaml:"use_mrl,omitempty"`
	Normalize     bool `json:"normalize" yaml:"normalize"`

	// CacheSize bounds the LRU response cache entry count; 0 disables it.
	CacheSize int `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
	// MaxRetries bounds the embedder's retry-with-backoff attempts.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// RerankingConfig configures C9.
type RerankingConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	TopK     int    `json:"top_k" yaml:"top_k"`
}

// SearchConfig configures default search behaviour.
type SearchConfig struct {
	HybridSearch bool            `json:"hybrid_search" yaml:"hybrid_search"`
	Reranking    RerankingConfig `json:"reranking" yaml:"reranking"`
}

// SQLBackendConfig configures the Shape A (SQL+ANN+lexical) store.
type SQLBackendConfig struct {
	Host           string  `json:"host" yaml:"host"`
	Port           int     `json:"port" yaml:"port"`
	Database       string  `json:"database" yaml:"database"`
	User           string  `json:"user" yaml:"user"`
	Password       string  `json:"password" yaml:"password"`
	EmbeddingModel string  `json:"embedding_model" yaml:"embedding_model"`
	VectorWeight   float64 `json:"vector_weight" yaml:"vector_weight"`
}

// ManagedBackendConfig configures the Shape B (managed search service) store.
type ManagedBackendConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Collection     string `json:"collection" yaml:"collection"`
	EmbeddingModel string `json:"embedding_model" yaml:"embedding_model"`
}

// VectorStoreConfig is the full, resolved per-repository configuration.
// This is the value the orchestrator owns exclusively for the duration of a
// call (spec.md §3 Ownership).
type VectorStoreConfig struct {
	Name             string               `json:"name,omitempty" yaml:"name,omitempty"`
	IncludePatterns  []string             `json:"include_patterns,omitempty" yaml:"include_patterns,omitempty"`
	FileExtensions   []string             `json:"file_extensions,omitempty" yaml:"file_extensions,omitempty"`
	MaxFileSizeBytes int64                `json:"max_file_size,omitempty" yaml:"max_file_size,omitempty"`
	Chunking         ChunkingConfig       `json:"chunking" yaml:"chunking"`
	Embedding        EmbeddingConfig      `json:"embedding" yaml:"embedding"`
	Search           SearchConfig         `json:"search" yaml:"search"`
	LogChunks        bool                 `json:"log_chunks" yaml:"log_chunks"`
	Backend          Backend              `json:"backend,omitempty" yaml:"backend,omitempty"`
	SQL              SQLBackendConfig     `json:"sql,omitempty" yaml:"sql,omitempty"`
	Managed          ManagedBackendConfig `json:"managed,omitempty" yaml:"managed,omitempty"`
	Preset           string               `json:"preset,omitempty" yaml:"preset,omitempty"`
	Indexed          bool                 `json:"indexed" yaml:"indexed"`

	// ParallelWorkers bounds per-file concurrency in the orchestrator
	// (FILE_PROCESSING_PARALLEL_BATCH_SIZE in spec.md §4.10).
	ParallelWorkers int `json:"parallel_workers,omitempty" yaml:"parallel_workers,omitempty"`
}

const (
	DefaultChunkSize          = 2500
	DefaultChunkOverlap       = 300
	DefaultMaxFileSizeBytes   = 1 << 20 // 1 MiB
	DefaultParallelFiles      = 15
	DefaultMaxResults         = 10
	DefaultVectorWeight       = 0.7
	DefaultRerankTopK         = 10
	DefaultEmbeddingQuotaTPM  = 1_000_000
	DefaultEmbeddingCacheSize = 4096
	DefaultEmbeddingMaxRetries = 3
)

// DefaultExcludeDirs is the safety exclude list applied when no explicit
// include_patterns are given (spec.md §4.1).
var DefaultExcludeDirs = []string{
	".git", "node_modules", "dist", "build", ".next", "coverage", ".cache",
}

// DefaultFileExtensions is the default glob of supported source extensions.
var DefaultFileExtensions = []string{
	".go", ".java", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs",
	".py", ".rs", ".c", ".h", ".cpp", ".hpp",
}

// Defaults returns the baseline VectorStoreConfig every preset/override is
// merged onto.
func Defaults() VectorStoreConfig {
	return VectorStoreConfig{
		FileExtensions:   append([]string(nil), DefaultFileExtensions...),
		MaxFileSizeBytes: DefaultMaxFileSizeBytes,
		Chunking: ChunkingConfig{
			Size:               DefaultChunkSize,
			Overlap:            DefaultChunkOverlap,
			Strategy:           ChunkStrategyAST,
			DualEmbedding:      false,
			ContextualChunking: false,
		},
		Embedding: EmbeddingConfig{
			Provider:      "local",
			Model:         "nomic-embed-text",
			Endpoint:      "http://localhost:11434",
			QuotaTPM:      DefaultEmbeddingQuotaTPM,
			FullDimension: 768,
			Dimensions:    768,
			Normalize:     true,
			CacheSize:     DefaultEmbeddingCacheSize,
			MaxRetries:    DefaultEmbeddingMaxRetries,
		},
		Search: SearchConfig{
			HybridSearch: true,
			Reranking: RerankingConfig{
				TopK: DefaultRerankTopK,
			},
		},
		SQL: SQLBackendConfig{
			VectorWeight: DefaultVectorWeight,
		},
		ParallelWorkers: DefaultParallelFiles,
	}
}

// StateDir returns the user-scoped directory under which snapshots,
// checkpoints, and locks are stored, honouring CODESEARCH_STATE_DIR.
func StateDir() (string, error) {
	if dir := os.Getenv("CODESEARCH_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".codesearch"), nil
}

// LoadRepositoryConfig loads a repository's `.vectorconfig.json` (or, failing
// that, a `vectorStore` field inside a nearby package manifest) and resolves
// it into a VectorStoreConfig: defaults ⊕ preset ⊕ file overrides.
//
// name selects among multiple named configs when the file holds an array; if
// empty, the first entry is used. A missing config file is not an error —
// callers fall back to Defaults().
func LoadRepositoryConfig(repoRoot, name string) (VectorStoreConfig, error) {
	raw, path, err := readRepositoryConfigFile(repoRoot)
	if err != nil {
		return VectorStoreConfig{}, err
	}
	if raw == nil {
		return Defaults(), nil
	}

	docs, err := parseConfigDocument(raw)
	if err != nil {
		return VectorStoreConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}

	selected, err := selectNamedConfig(docs, name)
	if err != nil {
		return VectorStoreConfig{}, err
	}

	resolved := Defaults()
	if selected.Preset != "" {
		preset, err := LoadPreset(selected.Preset)
		if err != nil {
			return VectorStoreConfig{}, fmt.Errorf("load preset %q: %w", selected.Preset, err)
		}
		resolved = Merge(resolved, preset)
	}
	resolved = Merge(resolved, selected)

	if err := Validate(resolved); err != nil {
		return VectorStoreConfig{}, err
	}
	return resolved, nil
}

func readRepositoryConfigFile(repoRoot string) ([]byte, string, error) {
	candidates := []string{
		filepath.Join(repoRoot, ".vectorconfig.json"),
		filepath.Join(repoRoot, "package.json"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, path, fmt.Errorf("read %s: %w", path, err)
		}
		return data, path, nil
	}
	return nil, "", nil
}

// MarshalJSONConfig round-trips a VectorStoreConfig through JSON the way a
// `.vectorconfig.json` file is written, used by `save(c)` in the config
// round-trip testable property (spec.md §8).
func MarshalJSONConfig(cfg VectorStoreConfig) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}
