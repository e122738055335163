package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct{ mock.Mock }

func (m *MockRepository) Save(ctx context.Context, f *Failure) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockRepository) List(ctx context.Context) ([]Failure, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Failure), args.Error(1)
}

func (m *MockRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestHandler_List(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("List", mock.Anything).Return([]Failure{
			{ID: "1", ChatID: "c1", MessageID: "m1", Reason: "tesseract timed out", CreatedAt: time.Now()},
		}, nil)
		h := NewHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/failures", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data []Failure `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Data, 1)
		assert.Equal(t, "tesseract timed out", body.Data[0].Reason)
	})

	t.Run("EmptyIsArrayNotNull", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("List", mock.Anything).Return([]Failure(nil), nil)
		h := NewHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/failures", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data": []}`, rec.Body.String())
	})

	t.Run("RepoError", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("List", mock.Anything).Return(nil, errors.New("db down"))
		h := NewHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/failures", nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
