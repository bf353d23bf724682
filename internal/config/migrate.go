package config

import (
	"encoding/json"
	"fmt"
)

// legacyFlatConfig is the pre-nested on-disk shape: chunk_size/embedding_model
// etc. sitting directly on the document instead of under chunking/embedding.
// Kept only as a migration source — LoadRepositoryConfig never writes it back
// out in this shape.
type legacyFlatConfig struct {
	Name             string   `json:"name,omitempty"`
	IncludePatterns  []string `json:"include_patterns,omitempty"`
	FileExtensions   []string `json:"file_extensions,omitempty"`
	MaxFileSizeBytes int64    `json:"max_file_size,omitempty"`
	ChunkSize        int      `json:"chunk_size,omitempty"`
	ChunkOverlap     int      `json:"chunk_overlap,omitempty"`
	EmbeddingModel   string   `json:"embedding_model,omitempty"`
	EmbeddingProvider string  `json:"embedding_provider,omitempty"`
	Preset           string   `json:"preset,omitempty"`
	Backend          string   `json:"backend,omitempty"`
}

// isLegacyFlat reports whether raw looks like the pre-nested shape: it has
// at least one of the flat keys and none of the nested section keys.
func isLegacyFlat(raw map[string]json.RawMessage) bool {
	_, hasChunking := raw["chunking"]
	_, hasEmbedding := raw["embedding"]
	if hasChunking || hasEmbedding {
		return false
	}
	for _, flatKey := range []string{"chunk_size", "chunk_overlap", "embedding_model", "embedding_provider"} {
		if _, ok := raw[flatKey]; ok {
			return true
		}
	}
	return false
}

func migrateFlat(data []byte) (VectorStoreConfig, error) {
	var flat legacyFlatConfig
	if err := json.Unmarshal(data, &flat); err != nil {
		return VectorStoreConfig{}, fmt.Errorf("unmarshal legacy config: %w", err)
	}
	cfg := VectorStoreConfig{
		Name:             flat.Name,
		IncludePatterns:  flat.IncludePatterns,
		FileExtensions:   flat.FileExtensions,
		MaxFileSizeBytes: flat.MaxFileSizeBytes,
		Preset:           flat.Preset,
		Backend:          Backend(flat.Backend),
	}
	cfg.Chunking.Size = flat.ChunkSize
	cfg.Chunking.Overlap = flat.ChunkOverlap
	cfg.Embedding.Model = flat.EmbeddingModel
	cfg.Embedding.Provider = flat.EmbeddingProvider
	return cfg, nil
}

// parseConfigDocument accepts either a single config object or an array of
// them (spec.md §4.11's "multiple named configs per repository" case) and
// returns a slice of resolved (but not yet defaulted/validated)
// VectorStoreConfig values, migrating any legacy-flat entries on the way.
func parseConfigDocument(raw []byte) ([]VectorStoreConfig, error) {
	var arrayProbe []json.RawMessage
	if err := json.Unmarshal(raw, &arrayProbe); err == nil {
		docs := make([]VectorStoreConfig, 0, len(arrayProbe))
		for _, entry := range arrayProbe {
			cfg, err := parseOneDocument(entry)
			if err != nil {
				return nil, err
			}
			docs = append(docs, cfg)
		}
		return docs, nil
	}

	cfg, err := parseOneDocument(raw)
	if err != nil {
		return nil, err
	}
	return []VectorStoreConfig{cfg}, nil
}

func parseOneDocument(raw json.RawMessage) (VectorStoreConfig, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return VectorStoreConfig{}, fmt.Errorf("unmarshal config document: %w", err)
	}
	// package.json embeds the real document under "vectorStore".
	if vs, ok := generic["vectorStore"]; ok {
		return parseOneDocument(vs)
	}

	if isLegacyFlat(generic) {
		return migrateFlat(raw)
	}

	var cfg VectorStoreConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return VectorStoreConfig{}, fmt.Errorf("unmarshal nested config: %w", err)
	}
	return cfg, nil
}

// selectNamedConfig picks the document matching name out of docs, or the
// first document when name is empty. A non-empty name that matches no
// document is an error.
func selectNamedConfig(docs []VectorStoreConfig, name string) (VectorStoreConfig, error) {
	if len(docs) == 0 {
		return VectorStoreConfig{}, fmt.Errorf("config document contained no entries")
	}
	if name == "" {
		return docs[0], nil
	}
	for _, d := range docs {
		if d.Name == name {
			return d, nil
		}
	}
	return VectorStoreConfig{}, fmt.Errorf("no config named %q", name)
}

// Merge layers override onto base: any non-zero field in override replaces
// the corresponding base field, recursively for the nested sections. Slices
// are replaced wholesale, never appended, matching the teacher's
// pkg/config merge semantics. Embedding.Endpoint, FullDimension, Dimensions,
// UseMRL, Normalize, CacheSize and MaxRetries are not merged: out keeps
// base's values for them.
func Merge(base, override VectorStoreConfig) VectorStoreConfig {
	out := base

	if override.Name != "" {
		out.Name = override.Name
	}
	if len(override.IncludePatterns) > 0 {
		out.IncludePatterns = override.IncludePatterns
	}
	if len(override.FileExtensions) > 0 {
		out.FileExtensions = override.FileExtensions
	}
	if override.MaxFileSizeBytes > 0 {
		out.MaxFileSizeBytes = override.MaxFileSizeBytes
	}
	if override.Preset != "" {
		out.Preset = override.Preset
	}
	if override.Backend != "" {
		out.Backend = override.Backend
	}
	if override.ParallelWorkers > 0 {
		out.ParallelWorkers = override.ParallelWorkers
	}
	out.LogChunks = out.LogChunks || override.LogChunks
	out.Indexed = out.Indexed || override.Indexed

	if override.Chunking.Size > 0 {
		out.Chunking.Size = override.Chunking.Size
	}
	if override.Chunking.Overlap > 0 {
		out.Chunking.Overlap = override.Chunking.Overlap
	}
	if override.Chunking.Strategy != "" {
		out.Chunking.Strategy = override.Chunking.Strategy
	}
	out.Chunking.DualEmbedding = out.Chunking.DualEmbedding || override.Chunking.DualEmbedding
	out.Chunking.ContextualChunking = out.Chunking.ContextualChunking || override.Chunking.ContextualChunking

	if override.Embedding.Provider != "" {
		out.Embedding.Provider = override.Embedding.Provider
	}
	if override.Embedding.Model != "" {
		out.Embedding.Model = override.Embedding.Model
	}
	if override.Embedding.Project != "" {
		out.Embedding.Project = override.Embedding.Project
	}
	if override.Embedding.Region != "" {
		out.Embedding.Region = override.Embedding.Region
	}
	if override.Embedding.QuotaTPM > 0 {
		out.Embedding.QuotaTPM = override.Embedding.QuotaTPM
	}

	out.Search.HybridSearch = out.Search.HybridSearch || override.Search.HybridSearch
	if override.Search.Reranking.Provider != "" {
		out.Search.Reranking.Provider = override.Search.Reranking.Provider
	}
	if override.Search.Reranking.Model != "" {
		out.Search.Reranking.Model = override.Search.Reranking.Model
	}
	if override.Search.Reranking.TopK > 0 {
		out.Search.Reranking.TopK = override.Search.Reranking.TopK
	}

	if override.SQL.Host != "" {
		out.SQL.Host = override.SQL.Host
	}
	if override.SQL.Port > 0 {
		out.SQL.Port = override.SQL.Port
	}
	if override.SQL.Database != "" {
		out.SQL.Database = override.SQL.Database
	}
	if override.SQL.User != "" {
		out.SQL.User = override.SQL.User
	}
	if override.SQL.Password != "" {
		out.SQL.Password = override.SQL.Password
	}
	if override.SQL.EmbeddingModel != "" {
		out.SQL.EmbeddingModel = override.SQL.EmbeddingModel
	}
	if override.SQL.VectorWeight > 0 {
		out.SQL.VectorWeight = override.SQL.VectorWeight
	}

	if override.Managed.Host != "" {
		out.Managed.Host = override.Managed.Host
	}
	if override.Managed.Port > 0 {
		out.Managed.Port = override.Managed.Port
	}
	if override.Managed.APIKey != "" {
		out.Managed.APIKey = override.Managed.APIKey
	}
	if override.Managed.Collection != "" {
		out.Managed.Collection = override.Managed.Collection
	}
	if override.Managed.EmbeddingModel != "" {
		out.Managed.EmbeddingModel = override.Managed.EmbeddingModel
	}

	return out
}
