package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration and returns every violation found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Flow.ClientID == "" {
		errors = append(errors, ValidationError{
			Field:   "flow.client_id",
			Message: "CLIENT_ID is required",
		})
	}

	if c.Flow.ClientSecret == "" {
		errors = append(errors, ValidationError{
			Field:   "flow.client_secret",
			Message: "CLIENT_SECRET is required",
		})
	}

	if _, err := url.Parse(c.Flow.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "flow.base_url",
			Message: "invalid gateway base URL",
		})
	}

	if c.Flow.TimeoutSecs < 1 {
		errors = append(errors, ValidationError{
			Field:   "flow.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}

	if c.RAG.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "rag.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.similarity_threshold",
			Message: "similarity_threshold must be between 0 and 1",
		})
	}

	if c.RAG.MaxContextChunks < 1 {
		errors = append(errors, ValidationError{
			Field:   "rag.max_context_chunks",
			Message: "max_context_chunks must be positive",
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Embedder.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "embedder.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}
