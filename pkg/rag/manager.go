package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voss/flowrag/internal/models"
	"github.com/voss/flowrag/pkg/loader"
	"github.com/voss/flowrag/pkg/processor"
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Store persists embedded chunks and searches over them.
type Store interface {
	Store(ctx context.Context, chunks []models.EmbeddedChunk) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error)
	Count(ctx context.Context) (int64, error)
}

// ManagerConfig tunes retrieval behavior.
type ManagerConfig struct {
	SimilarityThreshold float64
	MaxContextChunks    int
	ContextSeparator    string
}

// Manager composes the document loader, chunker, embedder and vector
// store into a single indexing and retrieval pipeline.
type Manager struct {
	config    ManagerConfig
	loader    *loader.Loader
	processor processor.Processor
	embedder  Embedder
	store     Store
	logger    *slog.Logger

	mu          sync.Mutex
	lastIndexed time.Time
	lastStats   *IndexStats
}

// IndexStats summarizes one indexing run.
type IndexStats struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Failures  int           `json:"failures"`
	Duration  time.Duration `json:"-"`
}

// Status reports the current state of the retrieval pipeline.
type Status struct {
	Ready        bool       `json:"ready"`
	ChunkCount   int64      `json:"chunk_count"`
	LastIndexed  *time.Time `json:"last_indexed,omitempty"`
	LastDocCount int        `json:"last_doc_count"`
}

// RetrievalMetadata describes what a retrieval contributed to a query.
type RetrievalMetadata struct {
	ChunksUsed int      `json:"chunks_used"`
	Sources    []string `json:"sources"`
	TopScore   float64  `json:"top_score"`
}

// New wires the pipeline components together.
func New(config ManagerConfig, ld *loader.Loader, proc processor.Processor, emb Embedder, st Store, logger *slog.Logger) (*Manager, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.SimilarityThreshold < 0 || config.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be between 0 and 1, got %g", config.SimilarityThreshold)
	}
	if config.MaxContextChunks <= 0 {
		config.MaxContextChunks = 5
	}
	if config.ContextSeparator == "" {
		config.ContextSeparator = "\n\n---\n\n"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config:    config,
		loader:    ld,
		processor: proc,
		embedder:  emb,
		store:     st,
		logger:    logger,
	}, nil
}

// IndexAll loads the configured folder, chunks and embeds every
// supported document, and stores the result. Per-file failures are
// counted but do not abort the run.
func (m *Manager) IndexAll(ctx context.Context) (*IndexStats, error) {
	if m.loader == nil {
		return nil, fmt.Errorf("no document folder configured")
	}

	start := time.Now()

	result, err := m.loader.Load(true)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	for _, failure := range result.Failures {
		m.logger.Warn("skipping document", "error", failure)
	}

	stats, err := m.index(ctx, result.Documents)
	if err != nil {
		return nil, err
	}
	stats.Failures += len(result.Failures)
	stats.Duration = time.Since(start)

	m.mu.Lock()
	m.lastIndexed = time.Now()
	m.lastStats = stats
	m.mu.Unlock()

	m.logger.Info("indexing complete",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"failures", stats.Failures,
		"duration", stats.Duration)

	return stats, nil
}

// IndexUploads indexes individual files outside the configured folder,
// such as uploads saved to a temp directory.
func (m *Manager) IndexUploads(ctx context.Context, paths []string) (*IndexStats, error) {
	start := time.Now()

	var docs []models.Document
	failures := 0
	for _, path := range paths {
		doc, err := m.loadOne(path)
		if err != nil {
			m.logger.Warn("skipping upload", "path", path, "error", err)
			failures++
			continue
		}
		docs = append(docs, doc)
	}

	stats, err := m.index(ctx, docs)
	if err != nil {
		return nil, err
	}
	stats.Failures += failures
	stats.Duration = time.Since(start)
	return stats, nil
}

func (m *Manager) loadOne(path string) (models.Document, error) {
	if m.loader != nil {
		return m.loader.LoadFile(path)
	}
	ld, err := loader.New(".", m.logger)
	if err != nil {
		return models.Document{}, err
	}
	return ld.LoadFile(path)
}

func (m *Manager) index(ctx context.Context, docs []models.Document) (*IndexStats, error) {
	stats := &IndexStats{}
	if len(docs) == 0 {
		return stats, nil
	}

	processed, err := m.processor.Process(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk documents: %w", err)
	}

	for _, doc := range processed {
		if len(doc.Chunks) == 0 {
			continue
		}

		texts := make([]string, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			texts[i] = chunk.Text
		}

		embeddings, err := m.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			m.logger.Warn("failed to embed document", "file", doc.Metadata.FileName, "error", err)
			stats.Failures++
			continue
		}

		embedded := make([]models.EmbeddedChunk, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			embedded[i] = models.EmbeddedChunk{
				DocID:      doc.ID,
				SourceFile: doc.Metadata.FilePath,
				SourceName: doc.Metadata.FileName,
				ChunkIndex: chunk.Index,
				Text:       chunk.Text,
				Embedding:  embeddings[i],
			}
		}

		if err := m.store.Store(ctx, embedded); err != nil {
			return nil, fmt.Errorf("failed to store chunks for %s: %w", doc.Metadata.FileName, err)
		}

		stats.Documents++
		stats.Chunks += len(doc.Chunks)
	}

	return stats, nil
}

// Retrieve embeds the query and returns stored chunks whose cosine
// similarity meets the configured threshold, most similar first.
func (m *Manager) Retrieve(ctx context.Context, query string, limit int) ([]models.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if limit <= 0 {
		limit = m.config.MaxContextChunks
	}

	embedding, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := m.store.Query(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	var chunks []models.ScoredChunk
	for _, chunk := range candidates {
		if chunk.Similarity >= m.config.SimilarityThreshold {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// AugmentQuery retrieves relevant context and prepends it to the query.
// When nothing clears the threshold the query is returned unchanged and
// the metadata reports zero chunks used.
func (m *Manager) AugmentQuery(ctx context.Context, query string) (string, *RetrievalMetadata, error) {
	chunks, err := m.Retrieve(ctx, query, m.config.MaxContextChunks)
	if err != nil {
		return "", nil, err
	}

	meta := &RetrievalMetadata{Sources: []string{}}
	if len(chunks) == 0 {
		return query, meta, nil
	}

	seen := make(map[string]bool)
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("[Source: %s]\n%s", chunk.SourceName, chunk.Text))
		if !seen[chunk.SourceName] {
			seen[chunk.SourceName] = true
			meta.Sources = append(meta.Sources, chunk.SourceName)
		}
	}
	meta.ChunksUsed = len(chunks)
	meta.TopScore = chunks[0].Similarity

	var b strings.Builder
	b.WriteString("Use the following context to answer the question.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(parts, m.config.ContextSeparator))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)

	return b.String(), meta, nil
}

// Status reports readiness and indexing history.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	count, err := m.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	status := &Status{
		Ready:      count > 0,
		ChunkCount: count,
	}
	if !m.lastIndexed.IsZero() {
		t := m.lastIndexed
		status.LastIndexed = &t
		if m.lastStats != nil {
			status.LastDocCount = m.lastStats.Documents
		}
	}
	return status, nil
}
