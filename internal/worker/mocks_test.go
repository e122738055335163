package worker_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"chatlens/internal/worker"
)

// Mocks

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockFailureRecorder struct{ mock.Mock }

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, chatID, messageID, reason string, enqueuedAt time.Time) error {
	args := m.Called(ctx, chatID, messageID, reason, enqueuedAt)
	return args.Error(0)
}

type MockIngestor struct{ mock.Mock }

func (m *MockIngestor) SubmitText(msg worker.TextMessage) {
	m.Called(msg)
}

func (m *MockIngestor) EnqueueImage(msg worker.ImageMessage) bool {
	args := m.Called(msg)
	return args.Bool(0)
}

// Function-backed stubs for the concurrency-heavy pipeline tests, where
// expectation bookkeeping would just get in the way.

type stubExtractor struct {
	fn func(ctx context.Context, image []byte) (string, error)
}

func (s *stubExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	return s.fn(ctx, image)
}

type stubEmbedder struct {
	fn func(ctx context.Context, text string) ([]float32, error)
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.fn != nil {
		return s.fn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// capturingStore collects every upserted record.
type capturingStore struct {
	mu      sync.Mutex
	records []worker.Record
	fail    func(rec worker.Record) error
}

func (s *capturingStore) Upsert(ctx context.Context, rec worker.Record) error {
	if s.fail != nil {
		if err := s.fail(rec); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *capturingStore) all() []worker.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]worker.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *capturingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
