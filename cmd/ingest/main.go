package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/voss/flowrag/internal/models"
	"github.com/voss/flowrag/pkg/config"
	"github.com/voss/flowrag/pkg/llm"
	"github.com/voss/flowrag/pkg/loader"
	"github.com/voss/flowrag/pkg/processor"
	"github.com/voss/flowrag/pkg/store"
)

type options struct {
	Folder     string
	DBUrl      string
	Model      string
	OllamaURL  string
	ChunkSize  int
	Overlap    int
	VectorDim  int
	TableName  string
	BatchSize  int
	RateLimit  float64
	ConfigPath string
}

func main() {
	opts := parseFlags()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&opts.Folder, "folder", os.Getenv("RAG_FOLDER"), "Folder of documents to index")
	flag.StringVar(&opts.DBUrl, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&opts.Model, "model", "", "Embedding model")
	flag.StringVar(&opts.OllamaURL, "ollama-url", os.Getenv("OLLAMA_BASE_URL"), "Ollama server URL")
	flag.IntVar(&opts.ChunkSize, "chunk-size", 0, "Size of text chunks")
	flag.IntVar(&opts.Overlap, "chunk-overlap", 0, "Overlap between chunks")
	flag.IntVar(&opts.VectorDim, "vector-dim", 0, "Vector dimension")
	flag.StringVar(&opts.TableName, "table", "", "PostgreSQL table name")
	flag.IntVar(&opts.BatchSize, "batch-size", 0, "Batch size for database operations")
	flag.Float64Var(&opts.RateLimit, "rate-limit", 0, "Embedding requests per second")
	flag.Parse()

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return opts
	}

	if opts.Folder == "" {
		opts.Folder = cfg.RAG.Folder
	}
	if opts.DBUrl == "" {
		opts.DBUrl = cfg.Database.URL
	}
	if opts.Model == "" {
		opts.Model = cfg.RAG.EmbeddingModel
	}
	if opts.OllamaURL == "" {
		opts.OllamaURL = cfg.Embedder.BaseURL
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = cfg.RAG.ChunkSize
	}
	if opts.Overlap == 0 {
		opts.Overlap = cfg.RAG.ChunkOverlap
	}
	if opts.VectorDim == 0 {
		opts.VectorDim = cfg.Database.VectorDim
	}
	if opts.TableName == "" {
		opts.TableName = cfg.Database.TableName
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = cfg.Database.BatchSize
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = cfg.Embedder.RateLimit
	}

	return opts
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(opts options) error {
	if opts.Folder == "" {
		return fmt.Errorf("a document folder is required (-folder or RAG_FOLDER)")
	}
	if opts.DBUrl == "" {
		return fmt.Errorf("a database URL is required (-db-url or DATABASE_URL)")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ld, err := loader.New(opts.Folder, logger)
	if err != nil {
		return fmt.Errorf("failed to open document folder: %v", err)
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    opts.ChunkSize,
		ChunkOverlap: opts.Overlap,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chunker: %v", err)
	}

	embedder := llm.NewWithConfig(llm.EmbedderConfig{
		Model:     opts.Model,
		BaseURL:   opts.OllamaURL,
		RateLimit: opts.RateLimit,
	})

	vectorStore, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: opts.DBUrl,
		TableName:  opts.TableName,
		VectorDim:  opts.VectorDim,
		BatchSize:  opts.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %v", err)
	}
	defer vectorStore.Close()

	color.Blue("\nStarting ingestion pipeline for %s\n", opts.Folder)

	result, err := ld.Load(true)
	if err != nil {
		return fmt.Errorf("failed to load documents: %v", err)
	}
	for _, failure := range result.Failures {
		color.Yellow("⚠ %v", failure)
	}
	color.Green("✓ Loaded %d documents\n", len(result.Documents))
	if len(result.Documents) == 0 {
		return nil
	}

	processingBar := getProgressBar(len(result.Documents), "🔄 Chunking documents...")
	processed := make([]models.ProcessedDocument, 0, len(result.Documents))
	for _, doc := range result.Documents {
		docs, err := proc.Process([]models.Document{doc})
		if err != nil {
			return fmt.Errorf("failed to process document %s: %v", doc.Metadata.FileName, err)
		}
		processed = append(processed, docs...)
		processingBar.Add(1)
	}
	totalChunks := 0
	for _, doc := range processed {
		totalChunks += len(doc.Chunks)
	}
	color.Green("\n✓ Processed into %d chunks\n", totalChunks)

	embeddingBar := getProgressBar(totalChunks, "🧮 Embedding chunks...")
	storageBar := getProgressBar(totalChunks, "💾 Storing in vector database...")

	startTime := time.Now()
	stored := 0
	for _, doc := range processed {
		if len(doc.Chunks) == 0 {
			continue
		}

		texts := make([]string, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			texts[i] = chunk.Text
		}

		embeddings, err := embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed %s: %v", doc.Metadata.FileName, err)
		}
		embeddingBar.Add(len(doc.Chunks))

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
		if err := vectorStore.Store(ctx, embedded); err != nil {
			return fmt.Errorf("failed to store chunks for %s: %v", doc.Metadata.FileName, err)
		}
		stored += len(embedded)
		storageBar.Add(len(embedded))

		elapsed := time.Since(startTime).Seconds()
		if elapsed > 0 {
			storageBar.Describe(color.BlueString(
				"💾 Storing in vector database... (%.1f chunks/sec)", float64(stored)/elapsed))
		}
	}

	count, err := vectorStore.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify stored chunks: %v", err)
	}
	color.Green("\n✓ Ingestion complete, %d chunks in store\n", count)
	return nil
}
