// Package managed implements vectorstore.Store Shape B: a managed vector
// search service (spec.md §4.8) accessed over gRPC. Grounded on the
// teacher's internal/vectordb.Client (same Qdrant wire client and
// Initialize/UpsertChunks/Search/DeleteByRepo/GetStats shape), generalized
// from a single hardcoded localhost collection scoped to one repo_path into
// a reusable store scoped by config_name and carrying the full chunk
// payload (contextualised text, both embeddings, metadata) rather than just
// the five fields the teacher persisted.
package managed

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/vectorstore"
)

// chunkPointNamespace seeds the deterministic UUID derivation below; any
// fixed namespace works since uniqueness only needs to hold within one
// collection.
var chunkPointNamespace = uuid.MustParse("6f1f1f6a-9c6e-4b7a-9b0b-2b9c2a6f0a11")

func deterministicUUID(chunkID string) uuid.UUID {
	return uuid.NewSHA1(chunkPointNamespace, []byte(chunkID))
}

// Config configures a managed.Store.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	VectorSize uint64
	UseTLS     bool
	// DistanceMetric is one of "cosine", "dot", "euclidean"; defaults to
	// cosine (spec.md §4.8 score semantics).
	DistanceMetric string
}

// Store implements vectorstore.Store against a managed vector search
// service. Shape B has no lexical index of its own, so HybridSearch is a
// no-op here and RRF fusion never runs (spec.md §4.8: "stats may be zero"
// and hybrid search is Shape A only).
type Store struct {
	client     *qdrant.Client
	collection string
	cfg        Config
}

var _ vectorstore.Store = (*Store)(nil)

// New dials the managed service. Initialize must still be called before use.
func New(cfg Config) (*Store, error) {
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	qdrantConfig := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}
	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("managed: connect: %w", err)
	}
	return &Store{client: client, collection: cfg.Collection, cfg: cfg}, nil
}

// Initialize creates the collection if it doesn't already exist.
func (s *Store) Initialize(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("managed: check collection: %w", err)
	}
	if exists {
		return nil
	}

	_, err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     s.cfg.VectorSize,
					Distance: s.distanceMetric(),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("managed: create collection: %w", err)
	}
	return nil
}

func (s *Store) distanceMetric() qdrant.Distance {
	switch s.cfg.DistanceMetric {
	case "dot":
		return qdrant.Distance_Dot
	case "euclidean":
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

const configNameField = "config_name"
const filePathField = "file_path"

// IndexChunks upserts chunks in a single batch request, keyed by their
// deterministic chunk id. Embeddings.ID values are not UUIDs, so they're
// carried as a payload field and the point id is a UUID derived
// deterministically from it (Qdrant point ids must be UUID or uint64).
func (s *Store) IndexChunks(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		id := chunk.ID()
		payload := map[string]*qdrant.Value{
			"chunk_id":             qdrant.NewValueString(id),
			configNameField:        qdrant.NewValueString(""),
			filePathField:          qdrant.NewValueString(chunk.FilePath),
			"language":             qdrant.NewValueString(chunk.Language),
			"chunk_type":           qdrant.NewValueString(string(chunk.Chunk.ChunkType)),
			"function_name":        qdrant.NewValueString(chunk.Chunk.FunctionName()),
			"class_name":           qdrant.NewValueString(chunk.Chunk.ClassName()),
			"start_line":           qdrant.NewValueInt(int64(chunk.Chunk.SourceLocation.StartLine)),
			"end_line":             qdrant.NewValueInt(int64(chunk.Chunk.SourceLocation.EndLine)),
			"original_text":        qdrant.NewValueString(chunk.Chunk.Content),
			"contextualised_chunk": qdrant.NewValueString(chunk.Chunk.ContextualisedContent()),
		}

		vector := make([]float32, len(chunk.Embedding))
		copy(vector, chunk.Embedding)

		points[i] = &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: chunkPointID(id)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
			},
			Payload: payload,
		}
	}

	// Batch upserts in groups of ~100 per spec.md §4.8, matching the
	// embedding/translation pipeline's own batch size.
	const batchSize = 100
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points[start:end],
		}); err != nil {
			return fmt.Errorf("managed: upsert batch: %w", err)
		}
	}
	return nil
}

// chunkPointID derives a deterministic UUID from a chunk id so re-indexing
// the same chunk replaces the same point rather than duplicating it.
func chunkPointID(chunkID string) string {
	return deterministicUUID(chunkID).String()
}

// DeleteByFilePath deletes every point whose file_path payload field matches.
func (s *Store) DeleteByFilePath(ctx context.Context, filePath string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: fieldFilter(filePathField, filePath),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("managed: delete by file path: %w", err)
	}
	return nil
}

func fieldFilter(key, value string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   key,
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
					},
				},
			},
		},
	}
}

// Search performs vector similarity search. Shape B has no lexical index:
// queryText is unused and opts.HybridSearch has no effect (spec.md §4.8).
func (s *Store) Search(ctx context.Context, queryText string, queryEmbedding []float32, maxResults int, opts vectorstore.SearchOptions) ([]models.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	limit := uint64(maxResults)

	queryPoints := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}
	if filter := buildFilter(opts); filter != nil {
		queryPoints.Filter = filter
	}

	results, err := s.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("managed: search: %w", err)
	}

	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		payload := r.Payload
		out[i] = models.SearchResult{
			ID:    payload["chunk_id"].GetStringValue(),
			Score: scoreFromDistance(float64(r.Score), s.cfg.DistanceMetric),
			Document: models.SearchDocument{
				FilePath:     payload[filePathField].GetStringValue(),
				FunctionName: payload["function_name"].GetStringValue(),
				ClassName:    payload["class_name"].GetStringValue(),
				StartLine:    int(payload["start_line"].GetIntegerValue()),
				EndLine:      int(payload["end_line"].GetIntegerValue()),
				Language:     payload["language"].GetStringValue(),
				OriginalCode: payload["original_text"].GetStringValue(),
				Context:      payload["contextualised_chunk"].GetStringValue(),
			},
		}
	}
	return out, nil
}

func buildFilter(opts vectorstore.SearchOptions) *qdrant.Filter {
	var conditions []*qdrant.Condition
	add := func(key, value string) {
		if value == "" {
			return
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
				},
			},
		})
	}
	add(filePathField, opts.FileFilter)
	add("language", opts.LanguageFilter)
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// scoreFromDistance applies spec.md §4.8's per-metric score conversion.
// Qdrant's cosine/dot metrics already return similarity (higher is
// better), so only euclidean needs inverting into a bounded score.
func scoreFromDistance(raw float64, metric string) float64 {
	if metric == "euclidean" {
		return 1 / (1 + raw)
	}
	return raw
}

// Purge deletes every point in the collection. Shape B has no per-tenant
// partitioning column populated today (config_name is always ""), so purge
// matches the whole collection — acceptable because each VectorStoreConfig
// is expected to own a dedicated collection under this backend.
func (s *Store) Purge(ctx context.Context, configName string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{}, // empty filter matches every point
			},
		},
	})
	if err != nil {
		return fmt.Errorf("managed: purge: %w", err)
	}
	return nil
}

// Stats reports point counts. StorageSizeBytes is always -1: the managed
// service doesn't expose per-collection disk usage over this client
// (spec.md §4.8: "stats may be zero" for this shape).
func (s *Store) Stats(ctx context.Context, configName string) (vectorstore.Stats, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection})
	if err != nil {
		return vectorstore.Stats{}, fmt.Errorf("managed: stats: %w", err)
	}
	return vectorstore.Stats{
		TotalChunks:      int(count),
		TotalDocuments:   0,
		StorageSizeBytes: -1,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
