package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voss/flowrag/pkg/config"
	"github.com/voss/flowrag/pkg/flow"
	"github.com/voss/flowrag/pkg/llm"
	"github.com/voss/flowrag/pkg/loader"
	"github.com/voss/flowrag/pkg/processor"
	"github.com/voss/flowrag/pkg/rag"
	"github.com/voss/flowrag/pkg/store"
	"github.com/voss/flowrag/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			logger.Error("invalid configuration", "field", p.Field, "problem", p.Message)
		}
		return fmt.Errorf("configuration is invalid")
	}

	gateway, err := flow.NewClient(flow.Config{
		BaseURL:      cfg.Flow.BaseURL,
		ClientID:     cfg.Flow.ClientID,
		ClientSecret: cfg.Flow.ClientSecret,
		AppToAccess:  cfg.Flow.AppToAccess,
		Timeout:      time.Duration(cfg.Flow.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway client: %w", err)
	}

	// RAG is optional. The chat endpoints degrade to plain forwarding
	// when the folder or the vector store is unavailable.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := buildRAG(ctx, cfg, logger)
	if manager != nil && cfg.RAG.AutoIndex {
		if stats, err := manager.IndexAll(ctx); err != nil {
			logger.Warn("startup indexing failed", "error", err)
		} else {
			logger.Info("startup indexing finished",
				"documents", stats.Documents, "chunks", stats.Chunks)
		}
	}

	var retriever server.Retriever
	if manager != nil {
		retriever = manager
	}
	srv := server.New(server.Config{CORSOrigins: cfg.Server.CORSOrigins}, gateway, retriever, logger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildRAG(ctx context.Context, cfg *config.Config, logger *slog.Logger) *rag.Manager {
	if cfg.Database.URL == "" {
		logger.Info("no vector database configured, retrieval disabled")
		return nil
	}

	var ld *loader.Loader
	if cfg.RAG.Folder != "" {
		var err error
		ld, err = loader.New(cfg.RAG.Folder, logger)
		if err != nil {
			logger.Warn("document folder unavailable, indexing disabled", "error", err)
		}
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
	})
	if err != nil {
		logger.Warn("invalid chunking configuration, retrieval disabled", "error", err)
		return nil
	}

	embedder := llm.NewWithConfig(llm.EmbedderConfig{
		Model:     cfg.RAG.EmbeddingModel,
		BaseURL:   cfg.Embedder.BaseURL,
		BatchSize: cfg.RAG.EmbeddingBatchSize,
		RateLimit: cfg.Embedder.RateLimit,
	})

	vectorStore, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		BatchSize:  cfg.Database.BatchSize,
	})
	if err != nil {
		logger.Warn("vector store unavailable, retrieval disabled", "error", err)
		return nil
	}

	manager, err := rag.New(rag.ManagerConfig{
		SimilarityThreshold: cfg.RAG.SimilarityThreshold,
		MaxContextChunks:    cfg.RAG.MaxContextChunks,
		ContextSeparator:    cfg.RAG.ContextSeparator,
	}, ld, proc, embedder, vectorStore, logger)
	if err != nil {
		logger.Warn("failed to build retrieval pipeline", "error", err)
		vectorStore.Close()
		return nil
	}
	return manager
}
