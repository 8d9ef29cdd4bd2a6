package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Values come from a YAML
// file (optional), defaults fill whatever the file left unset, and
// environment variables override both.
type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Flow struct {
		BaseURL      string `yaml:"base_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		AppToAccess  string `yaml:"app_to_access"`
		TimeoutSecs  int    `yaml:"timeout_seconds"`
	} `yaml:"flow"`

	RAG struct {
		Folder              string  `yaml:"folder"`
		ChunkSize           int     `yaml:"chunk_size"`
		ChunkOverlap        int     `yaml:"chunk_overlap"`
		EmbeddingModel      string  `yaml:"embedding_model"`
		EmbeddingBatchSize  int     `yaml:"embedding_batch_size"`
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		MaxContextChunks    int     `yaml:"max_context_chunks"`
		ContextSeparator    string  `yaml:"context_separator"`
		AutoIndex           bool    `yaml:"auto_index"`
	} `yaml:"rag"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Embedder struct {
		BaseURL   string  `yaml:"base_url"`
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"embedder"`
}

// LoadConfig loads configuration from the given YAML path. An empty path
// tries the default locations, falling back to env-only configuration.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/flowrag/config.yaml"),
			"/etc/flowrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyDefaults(config)
	mergeWithEnv(config)

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = "8000"
	}
	if len(config.Server.CORSOrigins) == 0 {
		config.Server.CORSOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		}
	}

	if config.Flow.BaseURL == "" {
		config.Flow.BaseURL = "https://flow.ciandt.com"
	}
	if config.Flow.AppToAccess == "" {
		config.Flow.AppToAccess = "llm-api"
	}
	if config.Flow.TimeoutSecs == 0 {
		config.Flow.TimeoutSecs = 30
	}

	if config.RAG.ChunkSize == 0 {
		config.RAG.ChunkSize = 1000
	}
	if config.RAG.ChunkOverlap == 0 {
		config.RAG.ChunkOverlap = 200
	}
	if config.RAG.EmbeddingModel == "" {
		config.RAG.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.RAG.EmbeddingBatchSize == 0 {
		config.RAG.EmbeddingBatchSize = 32
	}
	if config.RAG.SimilarityThreshold == 0 {
		config.RAG.SimilarityThreshold = 0.7
	}
	if config.RAG.MaxContextChunks == 0 {
		config.RAG.MaxContextChunks = 5
	}
	if config.RAG.ContextSeparator == "" {
		config.RAG.ContextSeparator = "\n\n---\n\n"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.RateLimit == 0 {
		config.Embedder.RateLimit = 10.0
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv("PORT"); v != "" {
		config.Server.Port = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		config.Server.CORSOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("FLOW_BASE_URL"); v != "" {
		config.Flow.BaseURL = v
	}
	if v := os.Getenv("CLIENT_ID"); v != "" {
		config.Flow.ClientID = v
	}
	if v := os.Getenv("CLIENT_SECRET"); v != "" {
		config.Flow.ClientSecret = v
	}

	if v := os.Getenv("RAG_FOLDER"); v != "" {
		config.RAG.Folder = v
	}
	if v := envInt("RAG_CHUNK_SIZE"); v > 0 {
		config.RAG.ChunkSize = v
	}
	// Zero is a valid overlap, so a set-but-zero value must not fall
	// through to the default.
	if raw, ok := os.LookupEnv("RAG_CHUNK_OVERLAP"); ok && raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			config.RAG.ChunkOverlap = v
		}
	}
	if v := os.Getenv("RAG_EMBEDDING_MODEL"); v != "" {
		config.RAG.EmbeddingModel = v
	}
	if v := envFloat("RAG_SIMILARITY_THRESHOLD"); v > 0 {
		config.RAG.SimilarityThreshold = v
	}
	if v := envInt("RAG_MAX_CONTEXT_CHUNKS"); v > 0 {
		config.RAG.MaxContextChunks = v
	}

	if v := os.Getenv("RAG_VECTOR_DB_URL"); v != "" {
		config.Database.URL = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Database.URL = v
	}

	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		config.Embedder.BaseURL = v
	}
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}
