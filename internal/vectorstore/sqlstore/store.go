// Package sqlstore implements vectorstore.Store Shape A: a single SQLite
// database holding chunk rows, an FTS5 virtual table for lexical search, and
// a pure-Go HNSW graph for ANN vector search, combined via Reciprocal Rank
// Fusion for hybrid queries (spec.md §4.8).
//
// Grounded on Aman-CERP-amanmcp's internal/store package: HNSWStore
// (internal/store/hnsw.go) for the ANN graph, ID mapping, gob persistence,
// and distance-to-score conversion; SQLiteBM25Index (internal/store/sqlite_bm25.go)
// for the FTS5 schema/WAL-mode/pragma setup and delete-then-insert update
// pattern (FTS5 virtual tables don't support REPLACE); bm25_factory.go's
// documented preference for SQLite FTS5 over Bleve (BoltDB's single-process
// file lock) is why this module imports neither Bleve nor a second lexical
// engine.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/vectorstore"
)

// Config configures a sqlstore.Store.
type Config struct {
	// Path to the SQLite database file. Empty means in-memory (tests only).
	Path string
	// Dimension is the configured primary embedding vector length.
	// IndexChunks does not check inserted vectors against it.
	Dimension int
	// VectorWeight is w_v in the RRF formula (spec.md §4.8); 0 defaults to
	// 0.7 (see vectorstore.NewRRFWeight).
	VectorWeight float64
	// ConfigName partitions rows in the `name` column, keeping multiple
	// named configs over the same repository (spec.md §4.11) from colliding
	// on PRIMARY KEY (id, name) or on each other's search/purge/stats scope.
	ConfigName string
	// HNSWMinRows is how many rows a config partition needs before ANN
	// search is used instead of a brute-force cosine scan; below this,
	// brute force is both correct and cheap (spec.md §4.8: "built lazily
	// once enough rows exist").
	HNSWMinRows int
}

const defaultHNSWMinRows = 200

// Store implements vectorstore.Store against a single SQLite file.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	cfg  Config
	path string

	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64 // chunk id -> hnsw key
	keyMap  map[uint64]string // hnsw key -> chunk id
	nextKey uint64
}

var _ vectorstore.Store = (*Store)(nil)

// New opens (creating if needed) the SQLite database at cfg.Path.
// Initialize must still be called before use.
func New(cfg Config) (*Store, error) {
	if cfg.HNSWMinRows <= 0 {
		cfg.HNSWMinRows = defaultHNSWMinRows
	}

	dsn := ":memory:"
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlstore: create directory: %w", err)
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under WAL the way the
	// teacher's SQLiteBM25Index does.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &Store{
		db:     db,
		cfg:    cfg,
		path:   cfg.Path,
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL,
	line_from INTEGER NOT NULL,
	line_to INTEGER NOT NULL,
	original_text TEXT NOT NULL,
	contextualised_chunk TEXT NOT NULL,
	embedding BLOB NOT NULL,
	code_embedding BLOB,
	language TEXT NOT NULL,
	chunk_type TEXT NOT NULL,
	function_name TEXT,
	class_name TEXT,
	metadata TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (id, name)
);
CREATE INDEX IF NOT EXISTS idx_chunks_name ON chunks(name);
CREATE INDEX IF NOT EXISTS idx_chunks_filename ON chunks(filename);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
	doc_id UNINDEXED,
	name UNINDEXED,
	full_text_search,
	tokenize='unicode61'
);
`

// Initialize creates the schema (idempotent) and loads a persisted HNSW
// graph sidecar, if one exists next to the database file.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlstore: init schema: %w", err)
	}
	if s.path == "" {
		return nil
	}
	if err := s.loadGraph(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sqlstore: load hnsw sidecar: %w", err)
	}
	return nil
}

func (s *Store) graphPath() string { return s.path + ".hnsw" }

type graphSnapshot struct {
	IDMap   map[string]uint64
	NextKey uint64
}

func (s *Store) loadGraph() error {
	file, err := os.Open(s.graphPath())
	if err != nil {
		return err
	}
	defer file.Close()

	var snap graphSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode hnsw snapshot: %w", err)
	}
	s.idMap = snap.IDMap
	s.nextKey = snap.NextKey
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	// Rebuild vectors from the database rather than serializing the graph
	// itself — cheaper to keep one source of truth (the embedding column)
	// than to keep a gob-encoded graph and a SQL table in lockstep.
	rows, err := s.db.Query(`SELECT id, embedding FROM chunks`)
	if err != nil {
		return fmt.Errorf("reload embeddings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("scan embedding row: %w", err)
		}
		key, ok := s.idMap[id]
		if !ok {
			continue
		}
		vec := decodeVector(blob)
		s.graph.Add(hnsw.MakeNode(key, vec))
	}
	return rows.Err()
}

func (s *Store) saveGraph() error {
	if s.path == "" {
		return nil
	}
	tmp := s.graphPath() + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create hnsw sidecar: %w", err)
	}
	snap := graphSnapshot{IDMap: s.idMap, NextKey: s.nextKey}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode hnsw snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.graphPath())
}

// IndexChunks upserts chunks in a single transaction, updates the FTS index
// (delete-then-insert, since FTS5 has no REPLACE), and adds vectors to the
// in-memory HNSW graph, persisting it afterward.
func (s *Store) IndexChunks(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (
			id, name, filename, line_from, line_to, original_text,
			contextualised_chunk, embedding, code_embedding, language,
			chunk_type, function_name, class_name, metadata, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?, datetime('now'), datetime('now'))`)
	if err != nil {
		return fmt.Errorf("sqlstore: prepare upsert: %w", err)
	}
	defer upsert.Close()

	deleteFTS, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ? AND name = ?`)
	if err != nil {
		return fmt.Errorf("sqlstore: prepare fts delete: %w", err)
	}
	defer deleteFTS.Close()

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO fts_content (doc_id, name, full_text_search) VALUES (?,?,?)`)
	if err != nil {
		return fmt.Errorf("sqlstore: prepare fts insert: %w", err)
	}
	defer insertFTS.Close()

	configName := s.cfg.ConfigName
	for _, chunk := range chunks {
		id := chunk.ID()
		metaJSON, err := json.Marshal(chunk.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("sqlstore: marshal metadata for %s: %w", id, err)
		}

		var codeBlob []byte
		if len(chunk.SecondaryEmbedding) > 0 {
			codeBlob = encodeVector(chunk.SecondaryEmbedding)
		}

		if _, err := upsert.ExecContext(ctx, id, configName, chunk.FilePath,
			chunk.Chunk.SourceLocation.StartLine, chunk.Chunk.SourceLocation.EndLine,
			chunk.Chunk.Content, chunk.Chunk.ContextualisedContent(),
			encodeVector(chunk.Embedding), codeBlob, chunk.Language,
			string(chunk.Chunk.ChunkType), chunk.Chunk.FunctionName(), chunk.Chunk.ClassName(),
			string(metaJSON)); err != nil {
			return fmt.Errorf("sqlstore: upsert %s: %w", id, err)
		}

		if _, err := deleteFTS.ExecContext(ctx, id, configName); err != nil {
			return fmt.Errorf("sqlstore: clear fts for %s: %w", id, err)
		}
		fullText := buildFullText(chunk)
		if _, err := insertFTS.ExecContext(ctx, id, configName, fullText); err != nil {
			return fmt.Errorf("sqlstore: index fts for %s: %w", id, err)
		}

		s.addVector(id, chunk.Embedding)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return s.saveGraph()
}

func (s *Store) addVector(id string, vec []float32) {
	if existing, ok := s.idMap[id]; ok {
		delete(s.keyMap, existing)
		delete(s.idMap, id)
	}
	key := s.nextKey
	s.nextKey++
	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[id] = key
	s.keyMap[key] = id
}

func buildFullText(chunk models.EmbeddedChunk) string {
	var b strings.Builder
	b.WriteString(chunk.FilePath)
	b.WriteByte(' ')
	if chunk.NaturalLanguageDescription != "" {
		b.WriteString(chunk.NaturalLanguageDescription)
		b.WriteByte(' ')
	}
	if chunk.Chunk.Context != "" {
		b.WriteString(chunk.Chunk.Context)
		b.WriteByte(' ')
	}
	b.WriteString(chunk.Chunk.Content)
	return b.String()
}

// Search runs vector search (brute-force below cfg.HNSWMinRows, HNSW graph
// above it), lexical FTS5 search, and fuses them with vectorstore.FuseRRF
// when opts.HybridSearch is set and both a query embedding and query text
// are available. With only one signal present it returns that signal's
// ranking directly (spec.md §4.8: hybrid search degrades to single-signal
// search rather than failing when one side is unavailable).
func (s *Store) Search(ctx context.Context, queryText string, queryEmbedding []float32, maxResults int, opts vectorstore.SearchOptions) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var vectorHits, textHits []models.SearchResult
	var err error

	if len(queryEmbedding) > 0 {
		vectorHits, err = s.vectorSearch(ctx, queryEmbedding, maxResults, opts)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: vector search: %w", err)
		}
	}
	if queryText != "" && (opts.HybridSearch || len(queryEmbedding) == 0) {
		textHits, err = s.lexicalSearch(ctx, queryText, maxResults, opts)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: lexical search: %w", err)
		}
	}

	switch {
	case len(vectorHits) > 0 && len(textHits) > 0:
		weight := vectorstore.NewRRFWeight(s.cfg.VectorWeight)
		return vectorstore.FuseRRF(vectorHits, textHits, weight, maxResults), nil
	case len(vectorHits) > 0:
		return truncate(vectorHits, maxResults), nil
	default:
		return truncate(textHits, maxResults), nil
	}
}

func truncate(results []models.SearchResult, maxResults int) []models.SearchResult {
	if maxResults > 0 && len(results) > maxResults {
		return results[:maxResults]
	}
	return results
}

func (s *Store) vectorSearch(ctx context.Context, queryEmbedding []float32, maxResults int, opts vectorstore.SearchOptions) ([]models.SearchResult, error) {
	rowCount := s.graph.Len()
	if rowCount >= s.cfg.HNSWMinRows {
		return s.annSearch(ctx, queryEmbedding, maxResults, opts)
	}
	return s.bruteForceSearch(ctx, queryEmbedding, maxResults, opts)
}

func (s *Store) annSearch(ctx context.Context, queryEmbedding []float32, maxResults int, opts vectorstore.SearchOptions) ([]models.SearchResult, error) {
	k := maxResults
	if k <= 0 {
		k = 10
	}
	// Over-fetch: filenames/language filters and the config partition are
	// applied after the graph search, so ask the graph for more neighbours
	// than we need in order to still have k left after filtering.
	neighbours := s.graph.Search(queryEmbedding, k*4+20)

	ids := make([]string, 0, len(neighbours))
	distanceByID := make(map[string]float32, len(neighbours))
	for _, n := range neighbours {
		id, ok := s.keyMap[n.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		ids = append(ids, id)
		distanceByID[id] = cosineDistance(queryEmbedding, n.Value)
	}

	rows, err := s.fetchRowsByID(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		dist := distanceByID[rows[i].ID]
		rows[i].Score = 1 - float64(dist)
		rows[i].Document.Metadata = withMetadataValue(rows[i].Document.Metadata, models.MetaDistance, dist)
	}
	sortByScoreDesc(rows)
	return truncate(rows, maxResults), nil
}

func (s *Store) bruteForceSearch(ctx context.Context, queryEmbedding []float32, maxResults int, opts vectorstore.SearchOptions) ([]models.SearchResult, error) {
	query, args := s.selectQuery(opts)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []models.SearchResult
	for rows.Next() {
		result, embedding, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		dist := cosineDistance(queryEmbedding, embedding)
		result.Score = 1 - float64(dist)
		result.Document.Metadata = withMetadataValue(result.Document.Metadata, models.MetaDistance, dist)
		scored = append(scored, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByScoreDesc(scored)
	return truncate(scored, maxResults), nil
}

func (s *Store) lexicalSearch(ctx context.Context, queryText string, maxResults int, opts vectorstore.SearchOptions) ([]models.SearchResult, error) {
	limit := maxResults
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.filename, c.line_from, c.line_to, c.original_text, c.contextualised_chunk,
			c.language, c.chunk_type, c.function_name, c.class_name, c.metadata, bm25(fts_content) AS rank
		FROM fts_content
		JOIN chunks c ON c.id = fts_content.doc_id AND c.name = fts_content.name
		WHERE fts_content.full_text_search MATCH ? AND fts_content.name = ?
		ORDER BY rank LIMIT ?`, queryText, opts.ConfigName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		var metaJSON string
		var rank float64
		if err := rows.Scan(&r.ID, &r.Document.FilePath, &r.Document.StartLine, &r.Document.EndLine,
			&r.Document.OriginalCode, &r.Document.Context, &r.Document.Language, new(string),
			&r.Document.FunctionName, &r.Document.ClassName, &metaJSON, &rank); err != nil {
			return nil, err
		}
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &r.Document.Metadata)
		}
		r.Score = -rank // bm25() returns lower-is-better; negate so higher is better
		if !matchesFilters(r.Document, opts) {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func matchesFilters(doc models.SearchDocument, opts vectorstore.SearchOptions) bool {
	if opts.FileFilter != "" && !strings.Contains(doc.FilePath, opts.FileFilter) {
		return false
	}
	if opts.LanguageFilter != "" && doc.Language != opts.LanguageFilter {
		return false
	}
	return true
}

func withMetadataValue(meta map[string]interface{}, key string, value interface{}) map[string]interface{} {
	if meta == nil {
		meta = make(map[string]interface{}, 1)
	}
	meta[key] = value
	return meta
}

func (s *Store) selectQuery(opts vectorstore.SearchOptions) (string, []interface{}) {
	query := `SELECT id, filename, line_from, line_to, original_text, contextualised_chunk,
		language, chunk_type, function_name, class_name, metadata, embedding
		FROM chunks WHERE name = ?`
	args := []interface{}{opts.ConfigName}
	if opts.FileFilter != "" {
		query += ` AND filename LIKE ?`
		args = append(args, "%"+opts.FileFilter+"%")
	}
	if opts.LanguageFilter != "" {
		query += ` AND language = ?`
		args = append(args, opts.LanguageFilter)
	}
	return query, args
}

func scanChunkRow(rows *sql.Rows) (models.SearchResult, []float32, error) {
	var r models.SearchResult
	var metaJSON string
	var embeddingBlob []byte
	if err := rows.Scan(&r.ID, &r.Document.FilePath, &r.Document.StartLine, &r.Document.EndLine,
		&r.Document.OriginalCode, &r.Document.Context, &r.Document.Language, new(string),
		&r.Document.FunctionName, &r.Document.ClassName, &metaJSON, &embeddingBlob); err != nil {
		return models.SearchResult{}, nil, err
	}
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &r.Document.Metadata)
	}
	return r, decodeVector(embeddingBlob), nil
}

func (s *Store) fetchRowsByID(ctx context.Context, ids []string, opts vectorstore.SearchOptions) ([]models.SearchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, filename, line_from, line_to, original_text, contextualised_chunk,
		language, chunk_type, function_name, class_name, metadata, embedding
		FROM chunks WHERE name = ? AND id IN (%s)`, placeholders(len(ids)))
	args := append([]interface{}{opts.ConfigName}, toArgs(ids)...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		result, _, err := scanChunkRow(rows)
		if err != nil {
			return nil, err
		}
		if !matchesFilters(result.Document, opts) {
			continue
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	cosineSim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return float32(1 - cosineSim)
}

// DeleteByFilePath removes every row (and FTS/HNSW entry) for filePath under
// this store's config partition (spec.md §4.8: deletes scope to
// (path, config_name), not to the path alone).
func (s *Store) DeleteByFilePath(ctx context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configName := s.cfg.ConfigName

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE filename = ? AND name = ?`, filePath, configName)
	if err != nil {
		return fmt.Errorf("sqlstore: find rows for %s: %w", filePath, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE filename = ? AND name = ?`, filePath, configName); err != nil {
		return fmt.Errorf("sqlstore: delete chunks for %s: %w", filePath, err)
	}
	if len(ids) > 0 {
		query := `DELETE FROM fts_content WHERE name = ? AND doc_id IN (` + placeholders(len(ids)) + `)`
		args := append([]interface{}{configName}, toArgs(ids)...)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("sqlstore: delete fts for %s: %w", filePath, err)
		}
	}

	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return s.saveGraph()
}

func placeholders(n int) string {
	if n == 0 {
		return "NULL"
	}
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ",")
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// Purge deletes every row under configName.
func (s *Store) Purge(ctx context.Context, configName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE name = ?`, configName)
	if err != nil {
		return fmt.Errorf("sqlstore: find rows for purge: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE name = ?`, configName); err != nil {
		return fmt.Errorf("sqlstore: purge chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fts_content WHERE name = ?`, configName); err != nil {
		return fmt.Errorf("sqlstore: purge fts: %w", err)
	}
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return s.saveGraph()
}

// Stats reports row/file counts and, when backed by a file, the combined
// size of the database and HNSW sidecar.
func (s *Store) Stats(ctx context.Context, configName string) (vectorstore.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totalChunks, totalDocuments int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT filename) FROM chunks WHERE name = ?`, configName)
	if err := row.Scan(&totalChunks, &totalDocuments); err != nil {
		return vectorstore.Stats{}, fmt.Errorf("sqlstore: stats: %w", err)
	}

	size := int64(-1)
	if s.path != "" {
		size = 0
		for _, p := range []string{s.path, s.path + "-wal", s.graphPath()} {
			if info, err := os.Stat(p); err == nil {
				size += info.Size()
			}
		}
	}

	return vectorstore.Stats{
		TotalDocuments:   totalDocuments,
		TotalChunks:      totalChunks,
		StorageSizeBytes: size,
	}, nil
}

// Close saves the HNSW graph and closes the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveGraph(); err != nil {
		return err
	}
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
