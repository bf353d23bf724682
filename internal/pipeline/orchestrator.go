// Package pipeline implements C10: composing the scanner, chunker,
// contextualiser, translator, embedder, and vector store into the two
// indexing operations (index_repository, index_repository_batch) and the
// search operation, with bounded per-file concurrency.
//
// Grounded on the teacher's indexer.NewIndexer wiring order (scanner ->
// chunker -> embedder -> store, constructed once and reused across runs)
// and embeddings.Batcher's semaphore-bounded fan-out, replaced here with
// golang.org/x/sync/errgroup so the first unrecoverable error can cancel
// the rest of an in-flight batch instead of leaving the caller to poll a
// shared error slice.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
	"github.com/jamaly87/codebase-semantic-search/internal/chunker"
	"github.com/jamaly87/codebase-semantic-search/internal/config"
	"github.com/jamaly87/codebase-semantic-search/internal/contextualizer"
	"github.com/jamaly87/codebase-semantic-search/internal/embedding"
	"github.com/jamaly87/codebase-semantic-search/internal/llmclient"
	"github.com/jamaly87/codebase-semantic-search/internal/merkle"
	"github.com/jamaly87/codebase-semantic-search/internal/metrics"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/reranker"
	"github.com/jamaly87/codebase-semantic-search/internal/runlock"
	"github.com/jamaly87/codebase-semantic-search/internal/scanner"
	"github.com/jamaly87/codebase-semantic-search/internal/translator"
	"github.com/jamaly87/codebase-semantic-search/internal/vectorstore"
	"github.com/jamaly87/codebase-semantic-search/internal/vectorstore/managed"
	"github.com/jamaly87/codebase-semantic-search/internal/vectorstore/sqlstore"
)

// Stats accumulates the outcome of one index_repository/index_repository_batch
// run (spec.md §4.10 state: "a stats accumulator").
type Stats struct {
	FilesTotal    int
	FilesIndexed  int
	FilesSkipped  int
	ChunksIndexed int
	FailedFiles   []string
	FailedChunks  int
	Duration      time.Duration
}

// IndexOptions parameterizes index_repository.
type IndexOptions struct {
	SubFolder   string
	Incremental bool
	// Config, when non-nil, overrides whatever .vectorconfig.json resolves to.
	Config     *config.VectorStoreConfig
	OnProgress OnProgress
}

// BatchOptions parameterizes index_repository_batch.
type BatchOptions struct {
	StateFilePath   string
	Concurrency     int
	ContinueOnError bool
	Config          *config.VectorStoreConfig
	OnProgress      OnProgress
}

// QueryOptions parameterizes search. Nil bool pointers mean "use the
// resolved config's default" (spec.md §4.10 step 1).
type QueryOptions struct {
	MaxResults     int
	FileFilter     string
	LanguageFilter string
	HybridSearch   *bool
	Reranking      *bool
}

// Orchestrator owns one repository's resolved config and live component
// graph across calls (spec.md §4.10: "State per run: resolved
// VectorStoreConfig, the owned adapter instances, a stats accumulator").
type Orchestrator struct {
	repoRoot string
	stateDir string

	mu             sync.Mutex
	cfg            config.VectorStoreConfig
	store          vectorstore.Store
	scanner        *scanner.Scanner
	chunker        *chunker.Chunker
	merkle         *merkle.Synchroniser
	embedder       *embedding.Embedder
	contextualiser *contextualizer.Contextualiser
	translator     translator.Translator
	breaker        *breaker.Breaker
	rerank         reranker.Reranker // invalidated (set nil) whenever config changes

	metrics *metrics.Registry
	lock    *runlock.Lock
}

// New resolves repoRoot's config (or the caller's explicit override) and
// builds every component, ready for Index/Search calls. metricsReg may be
// nil to run without Prometheus instrumentation.
func New(ctx context.Context, repoRoot, stateDir string, explicitCfg *config.VectorStoreConfig, metricsReg *metrics.Registry) (*Orchestrator, error) {
	o := &Orchestrator{
		repoRoot: repoRoot,
		stateDir: stateDir,
		metrics:  metricsReg,
		lock:     runlock.New(stateDir),
	}
	if err := o.rebuild(explicitCfg); err != nil {
		return nil, err
	}
	return o, nil
}

// rebuild implements spec.md §4.10 steps 1-3: resolve config, rebuild
// derived/provider-specific components in place, invalidate the cached
// reranker, and initialise the store. Called by New and at the top of every
// Index and IndexBatch call so an explicit per-call config override takes
// effect immediately; Search uses the config resolved by the latest of those.
func (o *Orchestrator) rebuild(explicitCfg *config.VectorStoreConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cfg, err := o.resolveConfig(explicitCfg)
	if err != nil {
		return err
	}
	cfg = config.ResolveBackend(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("pipeline: invalid config: %w", err)
	}

	if o.store != nil {
		o.store.Close()
	}
	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("pipeline: build store: %w", err)
	}
	if err := store.Initialize(context.Background()); err != nil {
		return fmt.Errorf("pipeline: initialize store: %w", err)
	}

	var recorder breaker.Recorder
	if o.metrics != nil {
		recorder = o.metrics.BreakerRecorder()
	}
	br := breaker.New(breaker.DefaultConfig(), recorder)

	embedProvider := buildEmbeddingProvider(cfg.Embedding)
	completionProvider := buildCompletionProvider(cfg)

	o.cfg = cfg
	o.store = store
	o.scanner = scanner.New(cfg)
	o.chunker = chunker.New()
	o.merkle = merkle.New(cfg, o.stateDir)
	o.embedder = embedding.New(cfg.Embedding, embedProvider, br)
	o.contextualiser = contextualizer.New(completionProvider, br)
	if cfg.Chunking.DualEmbedding {
		o.translator = translator.NewLLMTranslator(completionProvider, br)
	} else {
		o.translator = translator.NewTemplateTranslator()
	}
	o.breaker = br
	o.rerank = nil // invalidated: rebuilt lazily in Search once cfg.Search.Reranking is known

	return nil
}

func (o *Orchestrator) resolveConfig(explicitCfg *config.VectorStoreConfig) (config.VectorStoreConfig, error) {
	if explicitCfg != nil {
		return *explicitCfg, nil
	}
	return config.LoadRepositoryConfig(o.repoRoot, "")
}

func buildStore(cfg config.VectorStoreConfig) (vectorstore.Store, error) {
	switch cfg.Backend {
	case config.BackendManaged:
		return managed.New(managed.Config{
			Host:       cfg.Managed.Host,
			Port:       cfg.Managed.Port,
			APIKey:     cfg.Managed.APIKey,
			Collection: cfg.Managed.Collection,
			VectorSize: uint64(effectiveDimension(cfg.Embedding)),
		})
	default:
		return sqlstore.New(sqlstore.Config{
			Path:         cfg.SQL.Database,
			Dimension:    effectiveDimension(cfg.Embedding),
			VectorWeight: cfg.SQL.VectorWeight,
			ConfigName:   cfg.Name,
		})
	}
}

func effectiveDimension(cfg config.EmbeddingConfig) int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	return cfg.FullDimension
}

func buildEmbeddingProvider(cfg config.EmbeddingConfig) llmclient.EmbeddingProvider {
	return llmclient.NewOllamaEmbeddingClient(llmclient.OllamaEmbeddingConfig{
		Endpoint:      endpointOrDefault(cfg.Endpoint),
		Model:         cfg.Model,
		FullDimension: cfg.FullDimension,
		Dimensions:    cfg.Dimensions,
		UseMRL:        cfg.UseMRL,
		Normalize:     cfg.Normalize,
	})
}

// defaultCompletionModel is the model every C3/C4/C9 prompt is sent to when the
// config doesn't name one explicitly. There is a single local completion
// endpoint in this module's scope (spec.md §4.11 names no separate
// completion-provider block), so contextualisation, translation, and
// reranking all share it.
const defaultCompletionModel = "llama3.2"

func buildCompletionProvider(cfg config.VectorStoreConfig) llmclient.CompletionProvider {
	model := cfg.Search.Reranking.Model
	if model == "" {
		model = defaultCompletionModel
	}
	return llmclient.NewOllamaCompletionClient(llmclient.OllamaCompletionConfig{
		Endpoint: endpointOrDefault(cfg.Embedding.Endpoint),
		Model:    model,
	})
}

func endpointOrDefault(endpoint string) string {
	if endpoint == "" {
		return "http://localhost:11434"
	}
	return endpoint
}

// Close releases every owned resource (store connection, breaker actor).
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.breaker != nil {
		o.breaker.Close()
	}
	o.chunker.Close()
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// Index implements index_repository (spec.md §4.10).
func (o *Orchestrator) Index(ctx context.Context, opts IndexOptions) (Stats, error) {
	if err := o.lock.Lock(); err != nil {
		return Stats{}, fmt.Errorf("pipeline: acquire run lock: %w", err)
	}
	defer o.lock.Unlock()

	if err := o.rebuild(opts.Config); err != nil {
		return Stats{}, err
	}

	start := time.Now()
	root := joinSubFolder(o.repoRoot, opts.SubFolder)

	files, deleted, err := o.determineFileSet(root, opts.Incremental)
	if err != nil {
		return Stats{}, err
	}

	for _, path := range deleted {
		if err := o.store.DeleteByFilePath(ctx, path); err != nil {
			return Stats{}, fmt.Errorf("pipeline: delete %s: %w", path, err)
		}
	}

	stats := o.indexFiles(ctx, files, opts.OnProgress)
	stats.Duration = time.Since(start)

	if err := o.merkle.SaveSnapshot(root); err != nil {
		return stats, fmt.Errorf("pipeline: save snapshot: %w", err)
	}
	o.mu.Lock()
	o.cfg.Indexed = true
	o.mu.Unlock()
	return stats, nil
}

func joinSubFolder(repoRoot, subFolder string) string {
	if subFolder == "" {
		return repoRoot
	}
	return repoRoot + "/" + subFolder
}

// determineFileSet implements spec.md §4.10 step 4.
func (o *Orchestrator) determineFileSet(root string, incremental bool) ([]models.FileInfo, []string, error) {
	if !incremental {
		result, err := o.scanner.Scan(root)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: scan: %w", err)
		}
		return result.Files, nil, nil
	}

	diff, err := o.merkle.DetectChanges(root)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: detect changes: %w", err)
	}
	if diff.Empty() {
		return nil, nil, nil
	}

	result, err := o.scanner.Scan(root)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: scan: %w", err)
	}
	changed := make(map[string]bool, len(diff.Added)+len(diff.Modified))
	for _, p := range diff.Added {
		changed[p] = true
	}
	for _, p := range diff.Modified {
		changed[p] = true
	}

	files := make([]models.FileInfo, 0, len(changed))
	for _, f := range result.Files {
		if changed[f.RelativePath] {
			files = append(files, f)
		}
	}
	return files, diff.Deleted, nil
}

// parallelism resolves the bounded-concurrency limit for per-file work
// (spec.md §4.10 step 5: FILE_PROCESSING_PARALLEL_BATCH_SIZE, default 15).
func (o *Orchestrator) parallelism() int {
	if o.cfg.ParallelWorkers > 0 {
		return o.cfg.ParallelWorkers
	}
	return config.DefaultParallelFiles
}

// indexFiles runs process_file over files with bounded concurrency, never
// aborting the run on a single file's failure (spec.md §4.10 "Failure
// model").
func (o *Orchestrator) indexFiles(ctx context.Context, files []models.FileInfo, onProgress OnProgress) Stats {
	stats := Stats{FilesTotal: len(files)}
	var mu sync.Mutex
	var done int

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(o.parallelism())

	for _, file := range files {
		file := file
		group.Go(func() error {
			emit(onProgress, ProgressEvent{Stage: StageLoading, FilePath: file.RelativePath, FilesTotal: len(files)})

			chunks, err := o.processFile(gctx, file)

			mu.Lock()
			done++
			filesDone := done
			mu.Unlock()

			if err != nil {
				mu.Lock()
				stats.FailedFiles = append(stats.FailedFiles, file.RelativePath)
				mu.Unlock()
				emit(onProgress, ProgressEvent{Stage: StageFailed, FilePath: file.RelativePath, FilesTotal: len(files), FilesDone: filesDone, Err: err})
				return nil // a failed file doesn't abort the run
			}

			mu.Lock()
			stats.FilesIndexed++
			stats.ChunksIndexed += len(chunks)
			mu.Unlock()
			emit(onProgress, ProgressEvent{Stage: StageIndexing, FilePath: file.RelativePath, FilesTotal: len(files), FilesDone: filesDone})
			return nil
		})
	}
	_ = group.Wait() // every goroutine above absorbs its own error; nothing to propagate
	return stats
}

// processFile implements spec.md §4.10 step 5's per-file pipeline: load is
// implicit (file is already loaded by the scanner that built the file set),
// chunk, optionally translate, embed, build EmbeddedChunks, upsert.
func (o *Orchestrator) processFile(ctx context.Context, file models.FileInfo) ([]models.EmbeddedChunk, error) {
	contextualised, err := o.contextualiseFile(ctx, file)
	if err != nil {
		return nil, err
	}
	if len(contextualised) == 0 {
		return nil, nil
	}

	plainChunks := make([]models.Chunk, len(contextualised))
	for i, c := range contextualised {
		plainChunks[i] = c.Chunk
	}

	var descriptions []string
	if o.cfg.Chunking.DualEmbedding {
		descriptions = o.translator.TranslateBatch(ctx, file, plainChunks)
	}

	embedded, err := o.embedChunks(ctx, file, contextualised, descriptions)
	if err != nil {
		return nil, err
	}
	if len(embedded) == 0 {
		return nil, nil
	}
	if err := o.store.IndexChunks(ctx, embedded); err != nil {
		return nil, fmt.Errorf("index chunks for %s: %w", file.RelativePath, err)
	}
	return embedded, nil
}

func (o *Orchestrator) contextualiseFile(ctx context.Context, file models.FileInfo) ([]models.ContextualisedChunk, error) {
	if o.cfg.Chunking.ContextualChunking {
		return o.contextualiser.ContextualiseSingleCall(ctx, file)
	}

	chunks, err := o.chunker.Chunk(file, o.cfg.Chunking)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", file.RelativePath, err)
	}
	return o.contextualiser.ContextualisePerChunk(ctx, file, chunks), nil
}

func (o *Orchestrator) embedChunks(ctx context.Context, file models.FileInfo, chunks []models.ContextualisedChunk, descriptions []string) ([]models.EmbeddedChunk, error) {
	out := make([]models.EmbeddedChunk, 0, len(chunks))
	for i, c := range chunks {
		description := ""
		if i < len(descriptions) {
			description = descriptions[i]
		}

		codeVec, nlVec, err := o.embedder.DualEmbed(ctx, c.ContextualisedContent(), description, o.cfg.Chunking.DualEmbedding)
		if err != nil {
			continue // failed chunk: dropped from the upsert; Stats.FailedChunks is not incremented
		}

		out = append(out, models.EmbeddedChunk{
			FilePath:                   file.RelativePath,
			Language:                   file.Language,
			Chunk:                      c,
			Embedding:                  codeVec,
			SecondaryEmbedding:         nlVec,
			NaturalLanguageDescription: description,
		})
	}
	return out, nil
}

// IndexBatch implements index_repository_batch (spec.md §4.10): same
// per-file pipeline, resumable via a JSONL checkpoint.
func (o *Orchestrator) IndexBatch(ctx context.Context, opts BatchOptions) (Stats, error) {
	if err := o.lock.Lock(); err != nil {
		return Stats{}, fmt.Errorf("pipeline: acquire run lock: %w", err)
	}
	defer o.lock.Unlock()

	if err := o.rebuild(opts.Config); err != nil {
		return Stats{}, err
	}

	start := time.Now()
	cp, err := openCheckpoint(opts.StateFilePath)
	if err != nil {
		return Stats{}, err
	}
	defer cp.Close()

	result, err := o.scanner.Scan(o.repoRoot)
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: scan: %w", err)
	}

	pending := make([]models.FileInfo, 0, len(result.Files))
	skipped := 0
	for _, f := range result.Files {
		if cp.isDone(f.RelativePath) {
			skipped++
			continue
		}
		pending = append(pending, f)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = o.parallelism()
	}

	stats := Stats{FilesTotal: len(result.Files), FilesSkipped: skipped}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	var mu sync.Mutex
	var aborted error

	for _, file := range pending {
		file := file
		group.Go(func() error {
			if aborted != nil {
				return nil
			}

			emit(opts.OnProgress, ProgressEvent{Stage: StageLoading, FilePath: file.RelativePath, FilesTotal: len(result.Files)})
			chunks, procErr := o.processFile(gctx, file)

			mu.Lock()
			defer mu.Unlock()
			if procErr != nil {
				stats.FailedFiles = append(stats.FailedFiles, file.RelativePath)
				_ = cp.record(file.RelativePath, false)
				emit(opts.OnProgress, ProgressEvent{Stage: StageFailed, FilePath: file.RelativePath, Err: procErr})
				if !opts.ContinueOnError {
					aborted = procErr
					return procErr
				}
				return nil
			}

			stats.FilesIndexed++
			stats.ChunksIndexed += len(chunks)
			_ = cp.record(file.RelativePath, true)
			emit(opts.OnProgress, ProgressEvent{Stage: StageIndexing, FilePath: file.RelativePath, FilesDone: stats.FilesIndexed})
			return nil
		})
	}

	runErr := group.Wait()
	stats.Duration = time.Since(start)
	if runErr != nil {
		return stats, fmt.Errorf("pipeline: batch aborted: %w", runErr)
	}

	if err := o.merkle.SaveSnapshot(o.repoRoot); err != nil {
		return stats, fmt.Errorf("pipeline: save snapshot: %w", err)
	}
	return stats, nil
}

// Search implements the search operation (spec.md §4.10).
func (o *Orchestrator) Search(ctx context.Context, query string, opts QueryOptions) ([]models.SearchResult, error) {
	o.mu.Lock()
	cfg := o.cfg
	store := o.store
	embedder := o.embedder
	o.mu.Unlock()

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = config.DefaultMaxResults
	}
	hybrid := cfg.Search.HybridSearch
	if opts.HybridSearch != nil {
		hybrid = *opts.HybridSearch
	}
	rerankOn := cfg.Search.Reranking.Model != "" || cfg.Search.Reranking.Provider != ""
	if opts.Reranking != nil {
		rerankOn = *opts.Reranking
	}
	topK := cfg.Search.Reranking.TopK
	if topK <= 0 {
		topK = config.DefaultRerankTopK
	}

	queryEmbedding, err := embedder.Embed(ctx, query, embedding.TaskCodeRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("pipeline: embed query: %w", err)
	}

	searchLimit := maxResults
	if rerankOn {
		searchLimit = maxInt(maxResults*2, topK)
	}

	results, err := store.Search(ctx, query, queryEmbedding, searchLimit, vectorstore.SearchOptions{
		ConfigName:     cfg.Name,
		HybridSearch:   hybrid,
		FileFilter:     opts.FileFilter,
		LanguageFilter: opts.LanguageFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: search: %w", err)
	}

	results = applyFilters(results, opts.FileFilter, opts.LanguageFilter)

	if !rerankOn {
		return truncate(results, maxResults), nil
	}

	rr, err := o.rerankerFor(cfg)
	if err != nil {
		return nil, err
	}
	return rr.Rerank(ctx, query, results, maxResults), nil
}

// rerankerFor lazily builds and caches the reranker once the resolved
// config is known (spec.md §4.10 step 2: "invalidate the cached reranker").
func (o *Orchestrator) rerankerFor(cfg config.VectorStoreConfig) (reranker.Reranker, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rerank != nil {
		return o.rerank, nil
	}

	completionProvider := buildCompletionProvider(cfg)
	switch cfg.Search.Reranking.Provider {
	case "pointwise":
		o.rerank = reranker.NewPointwiseReranker(completionProvider, o.breaker, 0)
	default:
		o.rerank = reranker.NewCrossEncoderReranker(completionProvider, o.breaker, 0)
	}
	return o.rerank, nil
}

func applyFilters(results []models.SearchResult, fileFilter, languageFilter string) []models.SearchResult {
	if fileFilter == "" && languageFilter == "" {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if fileFilter != "" && !containsSubstring(r.Document.FilePath, fileFilter) {
			continue
		}
		if languageFilter != "" && r.Document.Language != languageFilter {
			continue
		}
		out = append(out, r)
	}
	return out
}

func containsSubstring(s, substr string) bool {
	return len(substr) == 0 || indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func truncate(results []models.SearchResult, maxResults int) []models.SearchResult {
	if maxResults > 0 && len(results) > maxResults {
		return results[:maxResults]
	}
	return results
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// PurgeAll deletes every chunk under the resolved config's partition.
func (o *Orchestrator) PurgeAll(ctx context.Context) error {
	o.mu.Lock()
	store, name := o.store, o.cfg.Name
	o.mu.Unlock()
	return store.Purge(ctx, name)
}

// RepoStats reports the resolved config's current store statistics.
func (o *Orchestrator) RepoStats(ctx context.Context) (vectorstore.Stats, error) {
	o.mu.Lock()
	store, name := o.store, o.cfg.Name
	o.mu.Unlock()
	return store.Stats(ctx, name)
}

// IsIndexed reports whether the resolved config has completed at least one
// index_repository run.
func (o *Orchestrator) IsIndexed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.Indexed
}

// ClearCache purges every indexed chunk and discards the merkle snapshot, so
// the next Index call falls back to a full scan regardless of Incremental.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if err := o.PurgeAll(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	m, root := o.merkle, o.repoRoot
	o.mu.Unlock()
	return m.DeleteSnapshot(root)
}
