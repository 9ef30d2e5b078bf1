// Package pipeline orchestrates the two call paths of the system:
// ingestion (fetch record, extract reports, normalize, embed, upsert)
// and retrieval (embed question, query index, pick best context).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tanay2406/doctor-rag/internal/embedding"
	"github.com/tanay2406/doctor-rag/internal/index"
	"github.com/tanay2406/doctor-rag/internal/record"
)

// NoContextFound is the answer context used when the index holds nothing
// relevant. Retrieval on an empty index is a valid outcome, not an error.
const NoContextFound = "No relevant patient information found."

// DefaultExtractWorkers bounds the per-ingestion OCR fan-out.
const DefaultExtractWorkers = 4

type RecordStore interface {
	Get(ctx context.Context, patientKey string) (*record.PatientRecord, error)
}

type ReportExtractor interface {
	Extract(ctx context.Context, ref record.ReportReference) string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, key string, vector []float32, text string) error
	Query(ctx context.Context, vector []float32, k int, patientKey string) ([]index.Match, error)
}

// Normalizer renders a record plus aligned extraction results into the
// canonical text blob.
type Normalizer func(rec *record.PatientRecord, extracted []string) string

// IngestResult describes one completed ingestion.
type IngestResult struct {
	PatientKey    string
	TotalReports  int
	FailedReports []int // 1-based report numbers that degraded to the sentinel
	TextBytes     int
	Duration      time.Duration
}

// Pipeline wires the collaborators together. All model calls that can fail
// transiently are retried here, at the coordinator boundary, keeping the
// leaf components free of retry policy.
type Pipeline struct {
	records   RecordStore
	extractor ReportExtractor
	normalize Normalizer
	embedder  Embedder
	index     VectorIndex
	workers   int
	logger    *slog.Logger
}

// New creates a Pipeline. workers bounds the concurrent report extractions
// per ingestion; values <= 0 fall back to DefaultExtractWorkers.
func New(
	records RecordStore,
	extractor ReportExtractor,
	normalize Normalizer,
	embedder Embedder,
	idx VectorIndex,
	workers int,
	logger *slog.Logger,
) *Pipeline {
	if workers <= 0 {
		workers = DefaultExtractWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		records:   records,
		extractor: extractor,
		normalize: normalize,
		embedder:  embedder,
		index:     idx,
		workers:   workers,
		logger:    logger,
	}
}

// Ingest rebuilds and stores the indexed context for one patient.
// A missing record short-circuits with record.ErrRecordNotFound and writes
// nothing; there is no partial-ingest commit.
func (p *Pipeline) Ingest(ctx context.Context, patientKey string) (*IngestResult, error) {
	start := time.Now()

	rec, err := p.records.Get(ctx, patientKey)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch record: %w", err)
	}
	p.logger.Info("Starting ingestion", "patient", patientKey, "reports", len(rec.Reports))

	extracted, err := p.extractAll(ctx, rec.Reports)
	if err != nil {
		return nil, err
	}

	text := p.normalize(rec, extracted)

	vector, err := p.embedWithRetry(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed context: %w", err)
	}

	if err := p.index.Upsert(ctx, patientKey, vector, text); err != nil {
		return nil, fmt.Errorf("store context: %w", err)
	}

	result := &IngestResult{
		PatientKey:   patientKey,
		TotalReports: len(rec.Reports),
		TextBytes:    len(text),
		Duration:     time.Since(start),
	}
	for i, t := range extracted {
		if t == "" {
			result.FailedReports = append(result.FailedReports, i+1)
		}
	}

	p.logger.Info("Ingestion complete",
		"patient", patientKey,
		"reports", result.TotalReports,
		"failed_reports", len(result.FailedReports),
		"duration", result.Duration,
	)

	return result, nil
}

// extractAll runs report extraction concurrently with bounded fan-out and
// reassembles results in original report order. Each goroutine writes only
// its own slot, so completion order cannot change the output. Extraction
// itself never fails; the only error out of here is context cancellation,
// which aborts the whole ingestion.
func (p *Pipeline) extractAll(ctx context.Context, reports []record.ReportReference) ([]string, error) {
	extracted := make([]string, len(reports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, ref := range reports {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			extracted[ref.Index] = p.extractor.Extract(gctx, ref)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extraction aborted: %w", err)
	}
	return extracted, nil
}

// embedWithRetry applies the coordinator-level retry policy to the
// embedding call. The embedder itself makes single attempts and classifies
// failures; only those marked ErrUnavailable are worth re-driving here.
func (p *Pipeline) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var vector []float32

	operation := func() error {
		v, err := p.embedder.Embed(ctx, text)
		if err != nil {
			if errors.Is(err, embedding.ErrUnavailable) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err)
		}
		vector = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return vector, nil
}

// Retrieve embeds the question and returns the top-k index matches.
// A non-empty patientKey restricts the search to that patient's entry.
func (p *Pipeline) Retrieve(ctx context.Context, question string, k int, patientKey string) ([]index.Match, error) {
	vector, err := p.embedWithRetry(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	matches, err := p.index.Query(ctx, vector, k, patientKey)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return matches, nil
}

// BestContext returns the single most relevant stored context for a
// question, or NoContextFound when nothing matches. patientKey may be
// empty to search across all indexed patients.
func (p *Pipeline) BestContext(ctx context.Context, question, patientKey string) (string, error) {
	matches, err := p.Retrieve(ctx, question, 1, patientKey)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		p.logger.Info("No indexed context for question", "patient", patientKey)
		return NoContextFound, nil
	}
	return matches[0].Text, nil
}
