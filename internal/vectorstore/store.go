// Package vectorstore defines the C8 contract shared by both concrete store
// shapes (sqlstore, managed): initialize, batched upsert, delete-by-file,
// hybrid/vector search, purge, and stats. Grounded on the teacher's
// internal/vectordb.Client (same five-verb shape: Initialize, UpsertChunks,
// Search, DeleteByRepo, GetStats) generalized from a single Qdrant-only
// implementation to an interface two backends satisfy.
package vectorstore

import (
	"context"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
)

// SearchOptions narrows a Search call beyond the raw query.
type SearchOptions struct {
	ConfigName     string // partitions a single store across repositories/tenants
	HybridSearch   bool
	FileFilter     string
	LanguageFilter string
}

// Stats summarizes one config partition's contents. StorageSizeBytes is -1
// when the backend does not expose it (spec.md §4.8: "must not crash
// callers").
type Stats struct {
	TotalDocuments   int
	TotalChunks      int
	StorageSizeBytes int64
}

// Store is the C8 contract. Implementations: sqlstore.Store (Shape A) and
// managed.Store (Shape B).
type Store interface {
	// Initialize is idempotent: creates schema/collection if missing.
	Initialize(ctx context.Context) error

	// IndexChunks upserts a batch of chunks, keyed by their deterministic
	// chunk id (models.EmbeddedChunk.ID). Observable at read time once the
	// call returns, modulo the managed-service eventual-consistency window
	// documented in spec.md §5.
	IndexChunks(ctx context.Context, chunks []models.EmbeddedChunk) error

	// DeleteByFilePath deletes every chunk for (filePath, config_name).
	DeleteByFilePath(ctx context.Context, filePath string) error

	// Search returns up to maxResults hits. queryEmbedding may be empty, in
	// which case the SQL store ranks by lexical search alone; the managed
	// store searches by queryEmbedding and computes no query vector itself.
	Search(ctx context.Context, queryText string, queryEmbedding []float32, maxResults int, opts SearchOptions) ([]models.SearchResult, error)

	// Purge deletes every chunk under the current config_name.
	Purge(ctx context.Context, configName string) error

	// Stats reports document/chunk counts for the current config_name.
	Stats(ctx context.Context, configName string) (Stats, error)

	Close() error
}

// RRFWeight is (vector_weight, text_weight) for Reciprocal Rank Fusion, with
// text_weight always 1-vector_weight (spec.md §4.8).
type RRFWeight struct {
	Vector float64
	Text   float64
}

// NewRRFWeight builds an RRFWeight from a vector_weight in [0,1], defaulting
// to spec.md's 0.7 when vectorWeight is 0 (the zero value, not a configured
// all-text weighting — no caller wants 100% lexical by leaving this unset).
func NewRRFWeight(vectorWeight float64) RRFWeight {
	if vectorWeight <= 0 {
		vectorWeight = 0.7
	}
	return RRFWeight{Vector: vectorWeight, Text: 1 - vectorWeight}
}

const rrfK = 60

// FuseRRF combines ranked vector and lexical candidate lists into one
// RRF-scored, deduplicated, descending-sorted list truncated to maxResults,
// per spec.md §4.8's `w_v/(60+rank_v) + w_t/(60+rank_t)` formula. Ranks are
// 1-indexed position within each input slice; a ranked entries.
func FuseRRF(vectorRanked, textRanked []models.SearchResult, weight RRFWeight, maxResults int) []models.SearchResult {
	type fused struct {
		result models.SearchResult
		score  float64
	}
	byID := make(map[string]*fused)
	order := make([]string, 0, len(vectorRanked)+len(textRanked))

	addRank := func(list []models.SearchResult, w float64, rankKey string) {
		for i, r := range list {
			rank := i + 1
			contribution := w / float64(rrfK+rank)
			if f, ok := byID[r.ID]; ok {
				f.score += contribution
			} else {
				r.Document.Metadata = withRankMetadata(r.Document.Metadata, rankKey, rank)
				byID[r.ID] = &fused{result: r, score: contribution}
				order = append(order, r.ID)
			}
		}
	}
	addRank(vectorRanked, weight.Vector, models.MetaVectorRank)
	addRank(textRanked, weight.Text, models.MetaTextRank)

	out := make([]models.SearchResult, 0, len(order))
	for _, id := range order {
		f := byID[id]
		f.result.Score = f.score
		out = append(out, f.result)
	}
	sortByScoreDesc(out)
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func withRankMetadata(meta map[string]interface{}, key string, rank int) map[string]interface{} {
	if meta == nil {
		meta = make(map[string]interface{}, 1)
	}
	meta[key] = rank
	return meta
}

func sortByScoreDesc(results []models.SearchResult) {
	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && results[j-1].Score < results[j].Score {
			results[j-1], results[j] = results[j], results[j-1]
			j--
		}
	}
}
