package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlens/internal/config"
	"chatlens/internal/retrieval"
	"chatlens/internal/worker"
)

type fakePipeline struct {
	texts  []worker.TextMessage
	images []worker.ImageMessage
	accept bool
}

func (f *fakePipeline) SubmitText(m worker.TextMessage) {
	f.texts = append(f.texts, m)
}

func (f *fakePipeline) EnqueueImage(m worker.ImageMessage) bool {
	f.images = append(f.images, m)
	return f.accept
}

func (f *fakePipeline) Status() worker.Status {
	return worker.Status{QueueDepth: len(f.images), QueueCapacity: 100, WorkerCount: 2}
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeStore struct{ results []retrieval.SearchResult }

func (f fakeStore) Query(ctx context.Context, chatID string, vector []float32, k int) ([]retrieval.SearchResult, error) {
	return f.results, nil
}

func newTestApp(t *testing.T, pipeline *fakePipeline, store fakeStore) *App {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// The status route counts dead letters.
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	cfg := &config.Config{
		SearchTopK:   10,
		ServerPort:   8081,
		QueryLogPath: t.TempDir() + "/query.log",
	}
	return New(cfg, db, pipeline, fakeEmbedder{}, store)
}

func TestNew_Routes(t *testing.T) {
	pipeline := &fakePipeline{accept: true}
	app := newTestApp(t, pipeline, fakeStore{})
	require.NotNil(t, app.Handler)
	require.NotNil(t, app.Retrieval)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("PostText", func(t *testing.T) {
		body := bytes.NewBufferString(`{"chat_id":"c1","message_id":"m1","text":"hello"}`)
		req := httptest.NewRequest(http.MethodPost, "/messages/text", body)
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		require.Len(t, pipeline.texts, 1)
		assert.Equal(t, "hello", pipeline.texts[0].Text)
	})

	t.Run("Search", func(t *testing.T) {
		body := bytes.NewBufferString(`{"chat_id":"c1","question":"hello"}`)
		req := httptest.NewRequest(http.MethodPost, "/search", body)
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data struct {
				QueueCapacity int `json:"queue_capacity"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 100, resp.Data.QueueCapacity)
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/search", nil)
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, req)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}
