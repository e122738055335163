package retrieval_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlens/internal/retrieval"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) Query(ctx context.Context, chatID string, vector []float32, k int) ([]retrieval.SearchResult, error) {
	args := m.Called(ctx, chatID, vector, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.SearchResult), args.Error(1)
}

func TestService_Search(t *testing.T) {
	tests := []struct {
		name    string
		chatID  string
		query   string
		k       int
		setup   func(*MockEmbedder, *MockStore)
		wantLen int
		wantErr bool
		check   func(*testing.T, []retrieval.SearchResult)
	}{
		{
			name:   "success",
			chatID: "c1",
			query:  "total amount",
			k:      3,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "total amount").Return([]float32{0.1, 0.2}, nil)
				s.On("Query", mock.Anything, "c1", []float32{0.1, 0.2}, 3).
					Return([]retrieval.SearchResult{{Text: "[Image OCR] invoice total 42", Score: 0.93}}, nil)
			},
			wantLen: 1,
			check: func(t *testing.T, res []retrieval.SearchResult) {
				assert.Equal(t, float32(0.93), res[0].Score)
			},
		},
		{
			name:   "default top-k when k is zero",
			chatID: "c1",
			query:  "anything",
			k:      0,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "anything").Return([]float32{0.5}, nil)
				s.On("Query", mock.Anything, "c1", []float32{0.5}, 10).
					Return([]retrieval.SearchResult{}, nil)
			},
			wantLen: 0,
		},
		{
			name:   "empty chat yields empty slice",
			chatID: "empty-chat",
			query:  "anything",
			k:      5,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "anything").Return([]float32{0.5}, nil)
				s.On("Query", mock.Anything, "empty-chat", []float32{0.5}, 5).
					Return(nil, nil)
			},
			wantLen: 0,
			check: func(t *testing.T, res []retrieval.SearchResult) {
				assert.NotNil(t, res)
			},
		},
		{
			name:    "blank question short-circuits",
			chatID:  "c1",
			query:   "   ",
			k:       5,
			setup:   func(e *MockEmbedder, s *MockStore) {},
			wantLen: 0,
		},
		{
			name:   "embedder error",
			chatID: "c1",
			query:  "boom",
			k:      5,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "boom").Return(nil, errors.New("embed failed"))
			},
			wantErr: true,
		},
		{
			name:   "store error",
			chatID: "c1",
			query:  "boom",
			k:      5,
			setup: func(e *MockEmbedder, s *MockStore) {
				e.On("Embed", mock.Anything, "boom").Return([]float32{0.1}, nil)
				s.On("Query", mock.Anything, "c1", []float32{0.1}, 5).
					Return(nil, errors.New("store down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := new(MockEmbedder)
			store := new(MockStore)
			tt.setup(embedder, store)

			svc := retrieval.NewService(embedder, store, 10, nil)
			res, err := svc.Search(t.Context(), tt.chatID, tt.query, tt.k)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, res, tt.wantLen)
			if tt.check != nil {
				tt.check(t, res)
			}

			embedder.AssertExpectations(t)
			store.AssertExpectations(t)
		})
	}
}

func TestSearchResult_MessageLink(t *testing.T) {
	public := retrieval.SearchResult{ChatUsername: "devchat", MessageID: "42"}
	assert.True(t, public.LinkEligible())
	assert.Equal(t, "https://t.me/devchat/42", public.MessageLink())

	private := retrieval.SearchResult{MessageID: "42"}
	assert.False(t, private.LinkEligible())
	assert.Empty(t, private.MessageLink())
}

func TestQueryLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := retrieval.NewQueryLogger(&buf)

	logger.Log(retrieval.QueryLogEntry{
		ChatID:     "c1",
		Query:      "meeting",
		NumResults: 2,
		Duration:   1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, `"chat_id":"c1"`)
	assert.Contains(t, out, `"query":"meeting"`)
	assert.Contains(t, out, `"latency_ms":1500`)
}
