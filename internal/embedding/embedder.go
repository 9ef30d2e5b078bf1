// Package embedding generates fixed-dimension vectors for patient context
// blobs and doctor questions using OpenAI's text-embedding-3-small model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

const (
	// Model is the OpenAI model used for generating embeddings.
	Model = "text-embedding-3-small"

	// Dimension is the vector size produced by text-embedding-3-small.
	// It must match index.VectorDimension.
	Dimension = 1536
)

var (
	// ErrEmptyInput is returned when the caller asks to embed empty text.
	// An empty blob indicates a caller bug, not something to embed as zeros.
	ErrEmptyInput = errors.New("cannot embed empty text")

	// ErrUnavailable marks upstream embedding failures worth retrying:
	// rate limits, server errors, transport failures. Failures not wrapped
	// in it are permanent rejections. The retry policy itself lives at the
	// coordinator boundary, not here.
	ErrUnavailable = errors.New("embedding model unavailable")
)

// Embedder generates embeddings. Each call is a single API attempt; error
// classification tells the caller whether a retry can help.
type Embedder struct {
	client *Client
}

// NewEmbedder creates an Embedder backed by the given client.
func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed generates the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedAll generates embeddings for all texts in one batched API call,
// returned in input order. Any empty text fails the whole batch with
// ErrEmptyInput before the model is called.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	return e.embed(ctx, texts)
}

// embed performs one embeddings API call. Retryable upstream failures are
// wrapped in ErrUnavailable; everything else is a permanent rejection.
func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: Model,
	})
	if err != nil {
		if retryable(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("embedding request rejected: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = toFloat32(data.Embedding)
	}
	return vectors, nil
}

// retryable reports whether a failed call may succeed on retry: rate
// limits (429), server-side errors (5xx), or transport-level failures.
// Other API rejections (bad request, invalid key) are permanent.
func retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return true
}

// toFloat32 converts the API's float64 vector to the float32 form the
// vector index stores.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
