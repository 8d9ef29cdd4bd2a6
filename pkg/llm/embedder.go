package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"
)

// EmbeddingError indicates the embedding model failed to produce vectors.
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (model %s): %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// EmbedderConfig configures the embedding model wrapper.
type EmbedderConfig struct {
	Model     string
	BaseURL   string
	BatchSize int
	// RateLimit caps embedding requests per second against the model
	// server. Zero disables limiting.
	RateLimit float64
}

// Embedder converts text into fixed-dimension vectors using an Ollama
// embedding model. The model connection is initialized lazily on first use.
type Embedder struct {
	config  EmbedderConfig
	limiter *rate.Limiter

	once    sync.Once
	model   *ollama.LLM
	initErr error
}

// NewWithConfig creates an embedder, applying defaults for unset fields. The
// model server is not contacted until the first embedding call.
func NewWithConfig(config EmbedderConfig) *Embedder {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 32
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Embedder{config: config, limiter: limiter}
}

// Model returns the configured model name.
func (e *Embedder) Model() string { return e.config.Model }

func (e *Embedder) init() (*ollama.LLM, error) {
	e.once.Do(func() {
		model, err := ollama.New(
			ollama.WithModel(e.config.Model),
			ollama.WithServerURL(e.config.BaseURL),
		)
		if err != nil {
			e.initErr = &EmbeddingError{Model: e.config.Model, Err: err}
			return
		}
		e.model = model
	})
	return e.model, e.initErr
}

// EmbedTexts converts a batch of texts into vectors, preserving order. Calls
// to the model server are batched for throughput.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model, err := e.init()
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, &EmbeddingError{Model: e.config.Model, Err: err}
			}
		}

		batch, err := model.CreateEmbedding(ctx, texts[start:end])
		if err != nil {
			return nil, &EmbeddingError{Model: e.config.Model, Err: err}
		}
		if len(batch) != end-start {
			return nil, &EmbeddingError{
				Model: e.config.Model,
				Err:   fmt.Errorf("model returned %d vectors for %d inputs", len(batch), end-start),
			}
		}
		vectors = append(vectors, batch...)
	}

	// The store requires a consistent dimension across every vector.
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &EmbeddingError{
				Model: e.config.Model,
				Err:   fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim),
			}
		}
	}

	return vectors, nil
}

// EmbedQuery converts a single query string into a vector.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
