package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/voss/flowrag/internal/models"
)

// VectorStoreConfig configures the pgvector-backed chunk store.
type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// VectorStore persists embedded chunks in Postgres and performs
// cosine-similarity nearest neighbor search over them.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

// NewWithConfig connects to the database and ensures the schema exists.
func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("database connection string is required")
	}
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{config: config, pool: pool}
	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			source_file TEXT NOT NULL,
			source_name TEXT,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Store upserts embedded chunks keyed by "<docID>_<chunkIndex>" so
// re-indexing the same document replaces its chunks in place.
func (vs *VectorStore) Store(ctx context.Context, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, source_file, source_name, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			source_file = EXCLUDED.source_file,
			source_name = EXCLUDED.source_name`,
		vs.config.TableName)

	for _, chunk := range chunks {
		if chunk.DocID == "" {
			return fmt.Errorf("embedded chunk has no source document reference")
		}
		if len(chunk.Embedding) != vs.config.VectorDim {
			return fmt.Errorf("chunk %s_%d has dimension %d, store expects %d",
				chunk.DocID, chunk.ChunkIndex, len(chunk.Embedding), vs.config.VectorDim)
		}

		id := fmt.Sprintf("%s_%d", chunk.DocID, chunk.ChunkIndex)
		_, err := tx.Exec(ctx, stmt,
			id,
			chunk.DocID,
			chunk.SourceFile,
			chunk.SourceName,
			chunk.ChunkIndex,
			chunk.Text,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Query returns the limit nearest chunks to the query embedding, most
// similar first. Similarity is 1 minus cosine distance.
func (vs *VectorStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	query := fmt.Sprintf(`
		SELECT doc_id, source_file, source_name, chunk_index, content,
		       1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ScoredChunk
	for rows.Next() {
		var chunk models.ScoredChunk
		err := rows.Scan(
			&chunk.DocID,
			&chunk.SourceFile,
			&chunk.SourceName,
			&chunk.ChunkIndex,
			&chunk.Text,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// Count reports how many chunks are stored.
func (vs *VectorStore) Count(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// DeleteBySource removes every chunk belonging to the given document.
func (vs *VectorStore) DeleteBySource(ctx context.Context, docID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, query, docID); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", docID, err)
	}
	return nil
}

// Close releases the connection pool.
func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}
