package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tanay2406/doctor-rag/internal/answer"
	"github.com/tanay2406/doctor-rag/internal/embedding"
	"github.com/tanay2406/doctor-rag/internal/pipeline"
	"github.com/tanay2406/doctor-rag/internal/record"
)

// Coordinator is the slice of the pipeline the handlers use.
type Coordinator interface {
	Ingest(ctx context.Context, patientKey string) (*pipeline.IngestResult, error)
	BestContext(ctx context.Context, question, patientKey string) (string, error)
}

// Answerer generates the final response from context and question.
type Answerer interface {
	Answer(ctx context.Context, question, patientContext string) (string, error)
}

// Handlers carries the dependencies for all HTTP endpoints.
type Handlers struct {
	coordinator   Coordinator
	answerer      Answerer
	records       Pinger
	index         HealthChecker
	ingestTimeout time.Duration
	queryTimeout  time.Duration
	logger        *slog.Logger
}

// NewHandlers creates the handler set. Zero timeouts disable the
// per-request deadline.
func NewHandlers(
	coordinator Coordinator,
	answerer Answerer,
	records Pinger,
	index HealthChecker,
	ingestTimeout, queryTimeout time.Duration,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		coordinator:   coordinator,
		answerer:      answerer,
		records:       records,
		index:         index,
		ingestTimeout: ingestTimeout,
		queryTimeout:  queryTimeout,
		logger:        logger,
	}
}

type ingestRequest struct {
	PatientKey string `json:"patient_key" binding:"required"`
}

type chatRequest struct {
	Question   string `json:"question" binding:"required"`
	PatientKey string `json:"patient_key"`
}

// IngestPatient handles POST /ingest: rebuilds the indexed context for one
// patient. A missing record maps to 404, retryable upstream failures to 502.
func (h *Handlers) IngestPatient(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if h.ingestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ingestTimeout)
		defer cancel()
	}

	result, err := h.coordinator.Ingest(ctx, req.PatientKey)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patient not found", "patient_key": req.PatientKey})
			return
		}
		h.logger.Error("Ingestion failed", "patient", req.PatientKey, "error", err)
		c.JSON(statusFor(err), gin.H{"error": "ingestion failed", "patient_key": req.PatientKey})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "embedding updated",
		"patient_key":    result.PatientKey,
		"reports":        result.TotalReports,
		"failed_reports": result.FailedReports,
	})
}

// Chat handles POST /chat: retrieves the best stored context and generates
// an answer. An optional patient_key scopes retrieval to one patient. An
// empty index still produces a graceful answer, never an error.
func (h *Handlers) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	contextText, err := h.coordinator.BestContext(ctx, req.Question, req.PatientKey)
	if err != nil {
		h.logger.Error("Retrieval failed", "error", err)
		c.JSON(statusFor(err), gin.H{"error": "retrieval failed"})
		return
	}

	reply, err := h.answerer.Answer(ctx, req.Question, contextText)
	if err != nil {
		h.logger.Error("Answer generation failed", "error", err)
		c.JSON(statusFor(err), gin.H{"error": "answer generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}

// HealthCheck handles GET /health: pings the document store and the vector
// index with a short deadline.
func (h *Handlers) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := gin.H{
		"status":    "healthy",
		"mongo":     "connected",
		"qdrant":    "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	healthy := true

	if err := h.records.Ping(ctx); err != nil {
		status["mongo"] = "disconnected"
		healthy = false
	}
	if err := h.index.Health(ctx); err != nil {
		status["qdrant"] = "disconnected"
		healthy = false
	}

	if !healthy {
		status["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// statusFor maps retryable upstream failures to 502 and everything else
// to 500.
func statusFor(err error) int {
	if errors.Is(err, embedding.ErrUnavailable) || errors.Is(err, answer.ErrUnavailable) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
