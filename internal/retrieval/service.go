package retrieval

import (
	"context"
	"time"

	"chatlens/internal/text"
)

// SearchResult carries an indexed record plus its similarity score and
// enough provenance to reconstruct a deep link to the original message.
type SearchResult struct {
	Text         string    `json:"text"`
	Score        float32   `json:"score"`
	ChatID       string    `json:"chatId"`
	MessageID    string    `json:"messageId"`
	ChatUsername string    `json:"chatUsername,omitempty"`
	SourceKind   string    `json:"sourceKind"`
	Language     string    `json:"language,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// LinkEligible reports whether the result can be turned into a public
// message link; private chats have no username to link through.
func (r SearchResult) LinkEligible() bool {
	return r.ChatUsername != ""
}

func (r SearchResult) MessageLink() string {
	if !r.LinkEligible() {
		return ""
	}
	return "https://t.me/" + r.ChatUsername + "/" + r.MessageID
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Query(ctx context.Context, chatID string, vector []float32, k int) ([]SearchResult, error)
}

// Service answers similarity searches. It embeds the question with the same
// embedder the ingestion path uses; mixing embedding models would silently
// make the similarity scores meaningless.
type Service struct {
	embedder    Embedder
	store       VectorStore
	defaultTopK int
	logger      *QueryLogger
}

func NewService(e Embedder, s VectorStore, defaultTopK int, l *QueryLogger) *Service {
	if defaultTopK <= 0 {
		defaultTopK = 10
	}
	return &Service{embedder: e, store: s, defaultTopK: defaultTopK, logger: l}
}

// Search returns up to k results for the chat ordered by similarity. A chat
// with no indexed content yields an empty slice, not an error.
func (s *Service) Search(ctx context.Context, chatID, question string, k int) ([]SearchResult, error) {
	start := time.Now()
	var results []SearchResult
	var err error

	defer func() {
		if s.logger != nil && err == nil {
			s.logger.Log(QueryLogEntry{
				ChatID:     chatID,
				Query:      question,
				NumResults: len(results),
				Duration:   time.Since(start),
			})
		}
	}()

	if text.IsBlank(question) {
		return []SearchResult{}, nil
	}

	if k <= 0 {
		k = s.defaultTopK
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	results, err = s.store.Query(ctx, chatID, vec, k)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}
