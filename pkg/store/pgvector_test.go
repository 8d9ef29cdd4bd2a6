package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voss/flowrag/internal/models"
	"github.com/voss/flowrag/pkg/store"
)

func TestNewWithConfig_RequiresConnString(t *testing.T) {
	_, err := store.NewWithConfig(context.Background(), store.VectorStoreConfig{})
	assert.Error(t, err)
}

func testStore(t *testing.T) *store.VectorStore {
	t.Helper()

	// Requires a Postgres instance with the pgvector extension.
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := store.NewWithConfig(context.Background(), store.VectorStoreConfig{
		ConnString: connString,
		TableName:  "test_documents",
		VectorDim:  3,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func vec(x, y, z float32) []float32 { return []float32{x, y, z} }

func TestVectorStore_StoreAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chunks := []models.EmbeddedChunk{
		{DocID: "doc1", SourceFile: "/docs/a.txt", SourceName: "a.txt", ChunkIndex: 0, Text: "north", Embedding: vec(0, 1, 0)},
		{DocID: "doc1", SourceFile: "/docs/a.txt", SourceName: "a.txt", ChunkIndex: 1, Text: "east", Embedding: vec(1, 0, 0)},
		{DocID: "doc2", SourceFile: "/docs/b.txt", SourceName: "b.txt", ChunkIndex: 0, Text: "up", Embedding: vec(0, 0, 1)},
	}
	require.NoError(t, s.Store(ctx, chunks))

	results, err := s.Query(ctx, vec(0, 1, 0), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "north", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, int64(3))
}

func TestVectorStore_UpsertReplacesChunk(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := []models.EmbeddedChunk{
		{DocID: "doc3", SourceFile: "/docs/c.txt", SourceName: "c.txt", ChunkIndex: 0, Text: "old text", Embedding: vec(1, 0, 0)},
	}
	require.NoError(t, s.Store(ctx, first))

	updated := []models.EmbeddedChunk{
		{DocID: "doc3", SourceFile: "/docs/c.txt", SourceName: "c.txt", ChunkIndex: 0, Text: "new text", Embedding: vec(1, 0, 0)},
	}
	require.NoError(t, s.Store(ctx, updated))

	results, err := s.Query(ctx, vec(1, 0, 0), 5)
	require.NoError(t, err)

	seen := 0
	for _, r := range results {
		if r.DocID == "doc3" {
			seen++
			assert.Equal(t, "new text", r.Text)
		}
	}
	assert.Equal(t, 1, seen)
}

func TestVectorStore_DimensionMismatchRejected(t *testing.T) {
	s := testStore(t)

	err := s.Store(context.Background(), []models.EmbeddedChunk{
		{DocID: "doc4", SourceName: "d.txt", ChunkIndex: 0, Text: "bad", Embedding: []float32{1, 2}},
	})
	assert.Error(t, err)
}

func TestVectorStore_DeleteBySource(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chunks := []models.EmbeddedChunk{
		{DocID: "doc5", SourceFile: "/docs/e.txt", SourceName: "e.txt", ChunkIndex: 0, Text: "gone", Embedding: vec(0.5, 0.5, 0)},
		{DocID: "doc5", SourceFile: "/docs/e.txt", SourceName: "e.txt", ChunkIndex: 1, Text: "also gone", Embedding: vec(0.5, 0, 0.5)},
	}
	require.NoError(t, s.Store(ctx, chunks))
	require.NoError(t, s.DeleteBySource(ctx, "doc5"))

	results, err := s.Query(ctx, vec(0.5, 0.5, 0), 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "doc5", r.DocID)
	}
}
