// Package config loads immutable process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable the service reads at startup. It is built once
// in main and passed into component constructors; nothing reads the
// environment after Load returns.
type Config struct {
	// Patient document store (MongoDB Atlas in production).
	MongoURI        string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase   string `envconfig:"MONGO_DB_NAME" default:"hospital"`
	MongoCollection string `envconfig:"MONGO_COLLECTION" default:"patients"`

	// Vector index.
	QdrantHost string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort int    `envconfig:"QDRANT_PORT" default:"6334"`

	// HTTP boundary.
	HTTPPort string `envconfig:"PORT" default:"8080"`

	// Bounded fan-out for per-report OCR within one ingestion.
	ExtractWorkers int `envconfig:"EXTRACT_WORKERS" default:"4"`

	// Per-call deadlines applied at the HTTP/CLI boundary.
	IngestTimeout time.Duration `envconfig:"INGEST_TIMEOUT" default:"5m"`
	QueryTimeout  time.Duration `envconfig:"QUERY_TIMEOUT" default:"60s"`
}

// Load reads a .env file if present (local development, ignored in
// production) and parses the environment into a Config.
// OPENAI_API_KEY is validated separately by the OpenAI client constructor.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
