// Package main provides the HTTP entry point for the patient RAG service.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/tanay2406/doctor-rag/internal/answer"
	"github.com/tanay2406/doctor-rag/internal/config"
	"github.com/tanay2406/doctor-rag/internal/embedding"
	"github.com/tanay2406/doctor-rag/internal/extractor"
	"github.com/tanay2406/doctor-rag/internal/index"
	"github.com/tanay2406/doctor-rag/internal/normalizer"
	"github.com/tanay2406/doctor-rag/internal/pipeline"
	"github.com/tanay2406/doctor-rag/internal/record"
	"github.com/tanay2406/doctor-rag/internal/server"
)

func main() {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.Default()

	// Document store (read-only collaborator)
	records, err := record.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer records.Close(context.Background())

	// Vector index; unreachable Qdrant is fatal at startup
	idx, err := index.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		log.Fatalf("failed to connect to qdrant: %v", err)
	}
	defer idx.Close()

	if err := idx.EnsureCollection(ctx); err != nil {
		log.Fatalf("failed to ensure collection: %v", err)
	}

	// Model clients
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		log.Fatalf("failed to create embedding client: %v", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient)

	ocrClient, err := extractor.NewOCRClient()
	if err != nil {
		log.Fatalf("failed to create OCR client: %v", err)
	}
	reports := extractor.New(ocrClient, nil, logger)

	generator := answer.NewGenerator(embeddingClient.Client())

	// Coordinator
	coordinator := pipeline.New(records, reports, normalizer.Normalize, embedder, idx, cfg.ExtractWorkers, logger)

	handlers := server.NewHandlers(coordinator, generator, records, idx, cfg.IngestTimeout, cfg.QueryTimeout, logger)
	srv := server.New(handlers)

	addr := "0.0.0.0:" + cfg.HTTPPort
	logger.Info("Starting patient RAG server", "addr", addr)
	if err := srv.Run(ctx, addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
