package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/geomark-lab/geomark-api/internal/dto"
	"github.com/geomark-lab/geomark-api/internal/grading"
	"github.com/geomark-lab/geomark-api/internal/handler"
	"github.com/geomark-lab/geomark-api/internal/models"
	"github.com/geomark-lab/geomark-api/internal/service"
)

type mockBatchService struct {
	startResponse dto.StartBatchResponse
	startErr      error
	summary       dto.BatchSummaryResponse
	events        []models.Event
	results       []models.GradingResult
	err           error

	paused    bool
	resumed   bool
	cancelled bool
	retried   bool
}

func (m *mockBatchService) StartBatch(_ context.Context, _ dto.StartBatchRequest) (dto.StartBatchResponse, error) {
	return m.startResponse, m.startErr
}

func (m *mockBatchService) Pause(string) error  { m.paused = true; return m.err }
func (m *mockBatchService) Resume(string) error { m.resumed = true; return m.err }
func (m *mockBatchService) Cancel(string) error { m.cancelled = true; return m.err }

func (m *mockBatchService) RetryFailed(string) error {
	m.retried = true
	return m.err
}

func (m *mockBatchService) PollEvents(string) ([]models.Event, error) {
	return m.events, m.err
}

func (m *mockBatchService) Summary(string) (dto.BatchSummaryResponse, error) {
	return m.summary, m.err
}

func (m *mockBatchService) Results(string) ([]models.GradingResult, error) {
	return m.results, m.err
}

func (m *mockBatchService) Shutdown() {}

func newBatchApp(svc service.BatchService) *fiber.App {
	app := fiber.New()
	handler.NewBatchHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1/batches"))
	return app
}

func decodeResponse(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestBatchHandler_StartAccepted(t *testing.T) {
	svc := &mockBatchService{startResponse: dto.StartBatchResponse{BatchID: "batch-1"}}
	app := newBatchApp(svc)

	body, err := json.Marshal(dto.StartBatchRequest{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var response struct {
		Success bool                   `json:"success"`
		Data    dto.StartBatchResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Success)
	require.Equal(t, "batch-1", response.Data.BatchID)
}

func TestBatchHandler_StartRejectsBadPayload(t *testing.T) {
	app := newBatchApp(&mockBatchService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestBatchHandler_StartWithoutProvider(t *testing.T) {
	svc := &mockBatchService{startErr: service.ErrProviderUnavailable}
	app := newBatchApp(svc)

	body, err := json.Marshal(dto.StartBatchRequest{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestBatchHandler_SummaryNotFound(t *testing.T) {
	svc := &mockBatchService{err: service.ErrBatchNotFound}
	app := newBatchApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/batches/missing", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestBatchHandler_Summary(t *testing.T) {
	svc := &mockBatchService{summary: dto.BatchSummaryResponse{
		BatchID:           "batch-1",
		State:             models.BatchRunning,
		TotalStudents:     3,
		CompletedStudents: 1,
	}}
	app := newBatchApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/batches/batch-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data dto.BatchSummaryResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, "batch-1", response.Data.BatchID)
	require.Equal(t, models.BatchRunning, response.Data.State)
}

func TestBatchHandler_EventsEmptyListNotNull(t *testing.T) {
	app := newBatchApp(&mockBatchService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/batches/batch-1/events", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data []models.Event `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.NotNil(t, response.Data)
	require.Empty(t, response.Data)
}

func TestBatchHandler_ControlEndpoints(t *testing.T) {
	svc := &mockBatchService{}
	app := newBatchApp(svc)

	for _, action := range []string{"pause", "resume", "cancel", "retry"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/batches/batch-1/"+action, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, action)
	}

	require.True(t, svc.paused)
	require.True(t, svc.resumed)
	require.True(t, svc.cancelled)
	require.True(t, svc.retried)
}

func TestBatchHandler_ConflictStatesMapTo409(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "not running", err: grading.ErrBatchNotRunning},
		{name: "still running", err: grading.ErrBatchStillRunning},
		{name: "no failed students", err: grading.ErrNoFailedStudents},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newBatchApp(&mockBatchService{err: tc.err})

			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/batches/batch-1/pause", nil))
			require.NoError(t, err)
			require.Equal(t, fiber.StatusConflict, resp.StatusCode)
		})
	}
}

func TestBatchHandler_Results(t *testing.T) {
	svc := &mockBatchService{results: []models.GradingResult{{StudentName: "Alice", TotalScore: 9, TotalMaxScore: 10}}}
	app := newBatchApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/batches/batch-1/results", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Data []models.GradingResult `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Len(t, response.Data, 1)
	require.Equal(t, "Alice", response.Data[0].StudentName)
}
