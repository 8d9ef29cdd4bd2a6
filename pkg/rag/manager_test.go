package rag_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voss/flowrag/internal/models"
	"github.com/voss/flowrag/pkg/loader"
	"github.com/voss/flowrag/pkg/processor"
	"github.com/voss/flowrag/pkg/rag"
)

// fakeEmbedder returns deterministic vectors without a model server.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return []float32{float32(len(query)), 1, 0}, nil
}

// fakeStore keeps chunks in memory and replays canned search results.
type fakeStore struct {
	stored  []models.EmbeddedChunk
	results []models.ScoredChunk
}

func (f *fakeStore) Store(ctx context.Context, chunks []models.EmbeddedChunk) error {
	f.stored = append(f.stored, chunks...)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error) {
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeStore) Count(ctx context.Context) (int64, error) {
	return int64(len(f.stored)), nil
}

func newManager(t *testing.T, folder string, st *fakeStore) *rag.Manager {
	t.Helper()

	var ld *loader.Loader
	if folder != "" {
		var err error
		ld, err = loader.New(folder, nil)
		require.NoError(t, err)
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: 20})
	require.NoError(t, err)

	manager, err := rag.New(rag.ManagerConfig{
		SimilarityThreshold: 0.7,
		MaxContextChunks:    3,
		ContextSeparator:    "\n\n---\n\n",
	}, ld, proc, &fakeEmbedder{}, st, nil)
	require.NoError(t, err)
	return manager
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNew_Validation(t *testing.T) {
	proc, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)

	_, err = rag.New(rag.ManagerConfig{}, nil, proc, nil, &fakeStore{}, nil)
	assert.Error(t, err)

	_, err = rag.New(rag.ManagerConfig{}, nil, proc, &fakeEmbedder{}, nil, nil)
	assert.Error(t, err)

	_, err = rag.New(rag.ManagerConfig{SimilarityThreshold: 1.2}, nil, proc, &fakeEmbedder{}, &fakeStore{}, nil)
	assert.Error(t, err)
}

func TestIndexAll(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "one.txt", "first document body")
	writeDoc(t, dir, "two.md", "second document body")
	writeDoc(t, dir, "skip.exe", "not indexable")

	st := &fakeStore{}
	manager := newManager(t, dir, st)

	stats, err := manager.IndexAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 0, stats.Failures)
	assert.Len(t, st.stored, 2)

	for _, chunk := range st.stored {
		assert.NotEmpty(t, chunk.DocID)
		assert.NotEmpty(t, chunk.Text)
		assert.Len(t, chunk.Embedding, 3)
	}
}

func TestIndexAll_NoFolder(t *testing.T) {
	manager := newManager(t, "", &fakeStore{})
	_, err := manager.IndexAll(context.Background())
	assert.Error(t, err)
}

func TestIndexUploads(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "upload.txt", "uploaded content")
	writeDoc(t, dir, "bad.csv", "a,b")

	docs := t.TempDir()
	st := &fakeStore{}
	manager := newManager(t, docs, st)

	stats, err := manager.IndexUploads(context.Background(), []string{
		filepath.Join(dir, "upload.txt"),
		filepath.Join(dir, "bad.csv"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Failures)
	require.Len(t, st.stored, 1)
	assert.Equal(t, "uploaded content", st.stored[0].Text)
}

func TestRetrieve_FiltersByThreshold(t *testing.T) {
	st := &fakeStore{results: []models.ScoredChunk{
		{SourceName: "a.txt", Text: "close match", Similarity: 0.92},
		{SourceName: "b.txt", Text: "weak match", Similarity: 0.71},
		{SourceName: "c.txt", Text: "far away", Similarity: 0.40},
	}}
	manager := newManager(t, "", st)

	chunks, err := manager.Retrieve(context.Background(), "question", 0)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, "a.txt", chunks[0].SourceName)
	assert.Equal(t, "b.txt", chunks[1].SourceName)
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	manager := newManager(t, "", &fakeStore{})
	_, err := manager.Retrieve(context.Background(), "   ", 0)
	assert.Error(t, err)
}

func TestAugmentQuery(t *testing.T) {
	st := &fakeStore{results: []models.ScoredChunk{
		{SourceName: "guide.md", Text: "relevant passage one", Similarity: 0.95},
		{SourceName: "guide.md", Text: "relevant passage two", Similarity: 0.85},
		{SourceName: "notes.txt", Text: "another passage", Similarity: 0.80},
	}}
	manager := newManager(t, "", st)

	augmented, meta, err := manager.AugmentQuery(context.Background(), "what is the answer?")
	require.NoError(t, err)

	assert.Contains(t, augmented, "relevant passage one")
	assert.Contains(t, augmented, "[Source: guide.md]")
	assert.Contains(t, augmented, "\n\n---\n\n")
	assert.Contains(t, augmented, "Question: what is the answer?")

	assert.Equal(t, 3, meta.ChunksUsed)
	assert.Equal(t, []string{"guide.md", "notes.txt"}, meta.Sources)
	assert.InDelta(t, 0.95, meta.TopScore, 1e-9)
}

func TestAugmentQuery_NoMatchesLeavesQueryUnchanged(t *testing.T) {
	st := &fakeStore{results: []models.ScoredChunk{
		{SourceName: "far.txt", Text: "irrelevant", Similarity: 0.1},
	}}
	manager := newManager(t, "", st)

	augmented, meta, err := manager.AugmentQuery(context.Background(), "original question")
	require.NoError(t, err)

	assert.Equal(t, "original question", augmented)
	assert.Equal(t, 0, meta.ChunksUsed)
	assert.Empty(t, meta.Sources)
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "doc.txt", "some content")

	st := &fakeStore{}
	manager := newManager(t, dir, st)

	status, err := manager.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Ready)
	assert.Nil(t, status.LastIndexed)

	_, err = manager.IndexAll(context.Background())
	require.NoError(t, err)

	status, err = manager.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.EqualValues(t, 1, status.ChunkCount)
	assert.NotNil(t, status.LastIndexed)
	assert.Equal(t, 1, status.LastDocCount)
}
