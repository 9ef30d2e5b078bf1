// Package main provides the ragctl CLI for manual ingestion and querying.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanay2406/doctor-rag/internal/answer"
	"github.com/tanay2406/doctor-rag/internal/config"
	"github.com/tanay2406/doctor-rag/internal/embedding"
	"github.com/tanay2406/doctor-rag/internal/extractor"
	"github.com/tanay2406/doctor-rag/internal/index"
	"github.com/tanay2406/doctor-rag/internal/normalizer"
	"github.com/tanay2406/doctor-rag/internal/pipeline"
	"github.com/tanay2406/doctor-rag/internal/record"
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Patient RAG maintenance tool",
	Long:  "CLI for ingesting patient records into the vector index and asking questions against it",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <patientKey>",
	Short: "Re-index one patient record",
	Long: `Fetches the patient record, extracts text from every attached report,
and replaces the patient's entry in the vector index.

Environment variables:
  MONGO_URI        MongoDB connection string (default: mongodb://localhost:27017)
  MONGO_DB_NAME    Database name (default: hospital)
  MONGO_COLLECTION Collection name (default: patients)
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY   OpenAI API key for embeddings and OCR (required)`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var askPatient string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the indexed patient contexts",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index health and entry count",
	RunE:  runStatus,
}

func init() {
	askCmd.Flags().StringVar(&askPatient, "patient", "", "restrict retrieval to one patient key")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	patientKey := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.IngestTimeout)
	defer cancel()

	records, idx, coordinator, _, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer records.Close(context.Background())
	defer idx.Close()

	start := time.Now()
	fmt.Printf("Ingesting patient %s...\n", patientKey)

	result, err := coordinator.Ingest(ctx, patientKey)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Reports: %d\n", result.TotalReports)
	if len(result.FailedReports) > 0 {
		fmt.Printf("  Unreadable reports: %v\n", result.FailedReports)
	}
	fmt.Printf("  Context size: %d bytes\n", result.TextBytes)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.QueryTimeout)
	defer cancel()

	records, idx, coordinator, generator, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer records.Close(context.Background())
	defer idx.Close()

	contextText, err := coordinator.BestContext(ctx, question, askPatient)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	reply, err := generator.Answer(ctx, question, contextText)
	if err != nil {
		return fmt.Errorf("answer generation failed: %w", err)
	}

	fmt.Println(reply)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	idx, err := index.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := idx.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	count, err := idx.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	fmt.Println("Index healthy")
	fmt.Printf("  Collection: %s\n", index.CollectionName)
	fmt.Printf("  Indexed patients: %d\n", count)
	return nil
}

// wire builds the full component graph shared by ingest and ask.
func wire(ctx context.Context, cfg *config.Config) (*record.MongoStore, *index.QdrantIndex, *pipeline.Pipeline, *answer.Generator, error) {
	logger := slog.Default()

	records, err := record.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	idx, err := index.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		records.Close(context.Background())
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	if err := idx.EnsureCollection(ctx); err != nil {
		records.Close(context.Background())
		idx.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		records.Close(context.Background())
		idx.Close()
		return nil, nil, nil, nil, err
	}
	embedder := embedding.NewEmbedder(embeddingClient)

	ocrClient, err := extractor.NewOCRClient()
	if err != nil {
		records.Close(context.Background())
		idx.Close()
		return nil, nil, nil, nil, err
	}
	reports := extractor.New(ocrClient, nil, logger)

	coordinator := pipeline.New(records, reports, normalizer.Normalize, embedder, idx, cfg.ExtractWorkers, logger)
	generator := answer.NewGenerator(embeddingClient.Client())

	return records, idx, coordinator, generator, nil
}
