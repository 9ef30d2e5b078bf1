package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanay2406/doctor-rag/internal/answer"
	"github.com/tanay2406/doctor-rag/internal/embedding"
	"github.com/tanay2406/doctor-rag/internal/pipeline"
	"github.com/tanay2406/doctor-rag/internal/record"
)

type fakeCoordinator struct {
	ingestErr  error
	context    string
	contextErr error
	gotPatient string
}

func (f *fakeCoordinator) Ingest(ctx context.Context, patientKey string) (*pipeline.IngestResult, error) {
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &pipeline.IngestResult{PatientKey: patientKey, TotalReports: 2, FailedReports: []int{2}}, nil
}

func (f *fakeCoordinator) BestContext(ctx context.Context, question, patientKey string) (string, error) {
	f.gotPatient = patientKey
	return f.context, f.contextErr
}

type fakeAnswerer struct {
	reply string
	err   error
}

func (f *fakeAnswerer) Answer(ctx context.Context, question, patientContext string) (string, error) {
	return f.reply, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeHealth struct{ err error }

func (f *fakeHealth) Health(ctx context.Context) error { return f.err }

func newTestServer(coord *fakeCoordinator, ans *fakeAnswerer, mongoErr, qdrantErr error) *Server {
	h := NewHandlers(coord, ans, &fakePinger{err: mongoErr}, &fakeHealth{err: qdrantErr}, 0, 0, nil)
	return New(h)
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestIngestEndpointSuccess(t *testing.T) {
	srv := newTestServer(&fakeCoordinator{}, &fakeAnswerer{}, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/ingest", `{"patient_key":"P1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "embedding updated", resp["status"])
	assert.Equal(t, "P1", resp["patient_key"])
	assert.Equal(t, float64(2), resp["reports"])
}

func TestIngestEndpointPatientNotFound(t *testing.T) {
	srv := newTestServer(&fakeCoordinator{ingestErr: record.ErrRecordNotFound}, &fakeAnswerer{}, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/ingest", `{"patient_key":"P404"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestEndpointRetryableFailure(t *testing.T) {
	err := fmt.Errorf("embed context: %w", embedding.ErrUnavailable)
	srv := newTestServer(&fakeCoordinator{ingestErr: err}, &fakeAnswerer{}, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/ingest", `{"patient_key":"P1"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestIngestEndpointMissingKey(t *testing.T) {
	srv := newTestServer(&fakeCoordinator{}, &fakeAnswerer{}, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/ingest", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatEndpointSuccess(t *testing.T) {
	coord := &fakeCoordinator{context: "Name: Jane Doe"}
	ans := &fakeAnswerer{reply: "The blood test shows mild anemia."}
	srv := newTestServer(coord, ans, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/chat", `{"question":"what does the blood test show?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "The blood test shows mild anemia.", resp["response"])
}

func TestChatEndpointScopesToPatientKey(t *testing.T) {
	coord := &fakeCoordinator{context: "Name: Jane Doe"}
	ans := &fakeAnswerer{reply: "ok"}
	srv := newTestServer(coord, ans, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/chat", `{"question":"q","patient_key":"P1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "P1", coord.gotPatient)
}

func TestChatEndpointPatientKeyIsOptional(t *testing.T) {
	coord := &fakeCoordinator{context: "ctx"}
	srv := newTestServer(coord, &fakeAnswerer{reply: "ok"}, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/chat", `{"question":"q"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, coord.gotPatient)
}

func TestChatEndpointEmptyIndexStillAnswers(t *testing.T) {
	// An empty index degrades to the no-context sentinel; the endpoint must
	// still return 200 with a generated answer.
	coord := &fakeCoordinator{context: pipeline.NoContextFound}
	ans := &fakeAnswerer{reply: "I have no patient data to answer from."}
	srv := newTestServer(coord, ans, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/chat", `{"question":"anything?"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatEndpointGenerationFailure(t *testing.T) {
	coord := &fakeCoordinator{context: "ctx"}
	ans := &fakeAnswerer{err: fmt.Errorf("%w: boom", answer.ErrUnavailable)}
	srv := newTestServer(coord, ans, nil, nil)

	w := doJSON(t, srv, http.MethodPost, "/chat", `{"question":"q"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestServer(&fakeCoordinator{}, &fakeAnswerer{}, nil, nil)
		w := doJSON(t, srv, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp["status"])
		assert.Equal(t, "connected", resp["mongo"])
		assert.Equal(t, "connected", resp["qdrant"])
	})

	t.Run("qdrant down", func(t *testing.T) {
		srv := newTestServer(&fakeCoordinator{}, &fakeAnswerer{}, nil, errors.New("unreachable"))
		w := doJSON(t, srv, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp["status"])
		assert.Equal(t, "disconnected", resp["qdrant"])
		assert.Equal(t, "connected", resp["mongo"])
	})

	t.Run("mongo down", func(t *testing.T) {
		srv := newTestServer(&fakeCoordinator{}, &fakeAnswerer{}, errors.New("unreachable"), nil)
		w := doJSON(t, srv, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
