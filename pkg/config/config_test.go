package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voss/flowrag/pkg/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Nil(t, cfg)

	cfg, err = config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "https://flow.ciandt.com", cfg.Flow.BaseURL)
	assert.Equal(t, "llm-api", cfg.Flow.AppToAccess)
	assert.Equal(t, 30, cfg.Flow.TimeoutSecs)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, "nomic-embed-text:latest", cfg.RAG.EmbeddingModel)
	assert.Equal(t, 0.7, cfg.RAG.SimilarityThreshold)
	assert.Equal(t, 5, cfg.RAG.MaxContextChunks)
	assert.Equal(t, "\n\n---\n\n", cfg.RAG.ContextSeparator)
	assert.Equal(t, "documents", cfg.Database.TableName)
	assert.Equal(t, 768, cfg.Database.VectorDim)
	assert.Equal(t, "http://localhost:11434", cfg.Embedder.BaseURL)
}

func TestLoadConfig_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
flow:
  client_id: file-id
  client_secret: file-secret
  base_url: https://gateway.example.com
rag:
  folder: /data/docs
  chunk_size: 500
  chunk_overlap: 50
database:
  url: postgres://localhost/flowrag
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "file-id", cfg.Flow.ClientID)
	assert.Equal(t, "https://gateway.example.com", cfg.Flow.BaseURL)
	assert.Equal(t, "/data/docs", cfg.RAG.Folder)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, "postgres://localhost/flowrag", cfg.Database.URL)
	// Unset fields keep their defaults.
	assert.Equal(t, "llm-api", cfg.Flow.AppToAccess)
	assert.Equal(t, 768, cfg.Database.VectorDim)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
flow:
  client_id: file-id
  client_secret: file-secret
rag:
  chunk_size: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CLIENT_ID", "env-id")
	t.Setenv("CLIENT_SECRET", "env-secret")
	t.Setenv("PORT", "7000")
	t.Setenv("RAG_CHUNK_SIZE", "250")
	t.Setenv("RAG_SIMILARITY_THRESHOLD", "0.5")
	t.Setenv("RAG_VECTOR_DB_URL", "postgres://env/db")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.Flow.ClientID)
	assert.Equal(t, "env-secret", cfg.Flow.ClientSecret)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 250, cfg.RAG.ChunkSize)
	assert.Equal(t, 0.5, cfg.RAG.SimilarityThreshold)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
}

func TestLoadConfig_ZeroChunkOverlapFromEnv(t *testing.T) {
	t.Setenv("RAG_CHUNK_OVERLAP", "0")
	t.Setenv("CLIENT_ID", "id")
	t.Setenv("CLIENT_SECRET", "secret")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.RAG.ChunkOverlap)
	assert.Empty(t, cfg.Validate())

	// Unset still gets the default.
	t.Setenv("RAG_CHUNK_OVERLAP", "")
	cfg, err = config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
}

func TestLoadConfig_DatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://fallback/db")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://fallback/db", cfg.Database.URL)

	t.Setenv("RAG_VECTOR_DB_URL", "postgres://primary/db")
	cfg, err = config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary/db", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	problems := cfg.Validate()
	fields := make([]string, 0, len(problems))
	for _, p := range problems {
		fields = append(fields, p.Field)
	}
	assert.Contains(t, fields, "flow.client_id")
	assert.Contains(t, fields, "flow.client_secret")

	cfg.Flow.ClientID = "id"
	cfg.Flow.ClientSecret = "secret"
	assert.Empty(t, cfg.Validate())

	cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize
	problems = cfg.Validate()
	require.Len(t, problems, 1)
	assert.Equal(t, "rag.chunk_overlap", problems[0].Field)
	assert.Contains(t, problems[0].Error(), "chunk_overlap")

	cfg.RAG.ChunkOverlap = 10
	cfg.RAG.SimilarityThreshold = 1.5
	problems = cfg.Validate()
	require.Len(t, problems, 1)
	assert.Equal(t, "rag.similarity_threshold", problems[0].Field)
}
