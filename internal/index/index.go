// Package index implements the persistent patient vector index on Qdrant.
// Each patient key maps to at most one point: the point ID is derived
// deterministically from the key, so re-ingestion replaces the previous
// entry instead of accumulating duplicates.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// CollectionName is the single Qdrant collection holding patient contexts.
const CollectionName = "patients"

// VectorDimension is the embedding size (text-embedding-3-small).
const VectorDimension = 1536

// keyNamespace seeds the deterministic patient-key → point-ID mapping.
// Changing it orphans every existing point, so it is fixed for the life of
// the collection.
var keyNamespace = uuid.MustParse("5e2f7f0a-41c6-4d3a-9b1e-7c8f02a6d9b4")

// Match is one similarity-search hit, ordered by decreasing score.
type Match struct {
	Key   string
	Text  string
	Score float64
}

// QdrantIndex wraps the Qdrant client with connection management and
// health checks.
type QdrantIndex struct {
	client *qdrant.Client
	host   string
	port   int
}

// NewQdrantIndex creates a Qdrant-backed index with health validation.
// It performs a health check with retry on startup and fails fast if
// Qdrant is unreachable; an unreachable backing store is a process-level
// startup error, never a per-call one.
func NewQdrantIndex(host string, port int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client: client,
		host:   host,
		port:   port,
	}

	ctx := context.Background()
	if err := idx.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return idx, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (x *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return x.Health(ctx)
	}, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (x *QdrantIndex) Health(ctx context.Context) error {
	result, err := x.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the patients collection if it does not exist.
// 1536-dimension vectors, cosine distance, keyword index on patient_key.
// Idempotent - safe to call multiple times.
func (x *QdrantIndex) EnsureCollection(ctx context.Context) error {
	collections, err := x.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: CollectionName,
		FieldName:      "patient_key",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create patient_key index: %w", err)
	}

	return nil
}

// Upsert writes the entry for a patient key, replacing any previous one.
// The point ID is a UUIDv5 of the key, so repeated upserts for the same key
// always land on the same point and Qdrant applies them atomically: a
// concurrent query sees the old entry or the new one, never a torn write.
func (x *QdrantIndex) Upsert(ctx context.Context, key string, vector []float32, text string) error {
	if len(vector) != VectorDimension {
		return fmt.Errorf("%w: got %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), VectorDimension)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(PointID(key)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"patient_key": key,
			"text":        text,
			"indexed_at":  time.Now().UTC().Format(time.RFC3339),
		}),
	}

	return x.upsertWithRetry(ctx, []*qdrant.PointStruct{point})
}

// upsertWithRetry performs the upsert with exponential backoff.
func (x *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// Query returns up to k entries ordered by decreasing cosine similarity.
// A non-empty patientKey filters on the indexed patient_key field, scoping
// the search to that patient's entry. An empty collection (or a filter
// matching nothing) yields an empty slice, which is a valid result.
func (x *QdrantIndex) Query(ctx context.Context, vector []float32, k int, patientKey string) ([]Match, error) {
	if len(vector) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), VectorDimension)
	}

	var filter *qdrant.Filter
	if patientKey != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("patient_key", patientKey),
			},
		}
	}

	results, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		matches = append(matches, Match{
			Key:   payload["patient_key"].GetStringValue(),
			Text:  payload["text"].GetStringValue(),
			Score: float64(result.Score),
		})
	}

	return matches, nil
}

// Count returns the number of indexed patients.
func (x *QdrantIndex) Count(ctx context.Context) (uint64, error) {
	collection, err := x.client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection: %w", err)
	}
	return collection.GetPointsCount(), nil
}

// Close closes the Qdrant client connection.
func (x *QdrantIndex) Close() error {
	if x.client != nil {
		return x.client.Close()
	}
	return nil
}

// PointID derives the stable point ID for a patient key.
func PointID(key string) string {
	return uuid.NewSHA1(keyNamespace, []byte(key)).String()
}
