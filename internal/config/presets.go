package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// builtinPresets mirrors the teacher's hardcoded DefaultConfig() variants,
// generalised into the named-preset registry spec.md §4.11 calls for:
// callers pick a preset by name instead of the teacher's single baked-in
// default.
var builtinPresets = map[string]VectorStoreConfig{
	"default": Defaults(),
	"fast": {
		Chunking: ChunkingConfig{
			Size:     1200,
			Overlap:  150,
			Strategy: ChunkStrategyAST,
		},
		Search: SearchConfig{
			HybridSearch: false,
		},
		ParallelWorkers: DefaultParallelFiles * 2,
	},
	"thorough": {
		Chunking: ChunkingConfig{
			Size:               4000,
			Overlap:            500,
			Strategy:           ChunkStrategyAST,
			DualEmbedding:      true,
			ContextualChunking: true,
		},
		Search: SearchConfig{
			HybridSearch: true,
			Reranking: RerankingConfig{
				TopK: 20,
			},
		},
	},
}

// LoadPreset resolves a named preset: first the built-in table, then (if not
// found there) a JSON file named "<name>.json" inside CODESEARCH_PRESETS_DIR.
func LoadPreset(name string) (VectorStoreConfig, error) {
	if preset, ok := builtinPresets[name]; ok {
		return preset, nil
	}

	dir := os.Getenv("CODESEARCH_PRESETS_DIR")
	if dir == "" {
		return VectorStoreConfig{}, fmt.Errorf("unknown preset %q and CODESEARCH_PRESETS_DIR is unset", name)
	}
	path := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return VectorStoreConfig{}, fmt.Errorf("read preset %q: %w", name, err)
	}
	var cfg VectorStoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return VectorStoreConfig{}, fmt.Errorf("unmarshal preset %q: %w", name, err)
	}
	return cfg, nil
}

// PresetNames returns the built-in preset names in a fixed order: default,
// fast, thorough (used by `codesearch presets list`).
func PresetNames() []string {
	return []string{"default", "fast", "thorough"}
}
