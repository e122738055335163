package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlens/internal/worker"
)

type stubPipeline struct{ status worker.Status }

func (s stubPipeline) Status() worker.Status { return s.status }

type MockFailureRepo struct{ mock.Mock }

func (m *MockFailureRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestHandler_GetStatus(t *testing.T) {
	pipeline := stubPipeline{status: worker.Status{
		QueueDepth:    3,
		QueueCapacity: 100,
		DroppedCount:  50,
		WorkerCount:   2,
		ActiveWorkers: 1,
		IndexedCount:  1234,
	}}

	t.Run("Success", func(t *testing.T) {
		failures := new(MockFailureRepo)
		failures.On("Count", mock.Anything).Return(7, nil)
		h := NewHandler(pipeline, failures)

		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		rec := httptest.NewRecorder()
		h.GetStatus(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data StatusResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 3, body.Data.QueueDepth)
		assert.Equal(t, 100, body.Data.QueueCapacity)
		assert.EqualValues(t, 50, body.Data.DroppedCount)
		assert.Equal(t, 2, body.Data.WorkerCount)
		assert.Equal(t, 1, body.Data.ActiveWorkers)
		assert.EqualValues(t, 1234, body.Data.IndexedCount)
		assert.Equal(t, 7, body.Data.FailedExtractions)
	})

	t.Run("NoFailureRepo", func(t *testing.T) {
		h := NewHandler(pipeline, nil)

		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		rec := httptest.NewRecorder()
		h.GetStatus(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data StatusResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 0, body.Data.FailedExtractions)
	})

	t.Run("FailureCountError", func(t *testing.T) {
		failures := new(MockFailureRepo)
		failures.On("Count", mock.Anything).Return(0, errors.New("db down"))
		h := NewHandler(pipeline, failures)

		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		rec := httptest.NewRecorder()
		h.GetStatus(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
