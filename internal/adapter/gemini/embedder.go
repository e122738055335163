package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"chatlens/internal/text"
)

// maxInputRunes bounds embedding input. Over-long text is truncated at the
// same point every time so re-ingesting a message yields the same vector.
const maxInputRunes = 8192

// Embedder wraps the Gemini embedding model. Model weights live server-side
// and the client holds no mutable state per call, so a single Embedder is
// safe for concurrent use by all workers.
type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Embedder, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Embed(ctx context.Context, input string) ([]float32, error) {
	input = text.Truncate(input, maxInputRunes)

	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(input))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(input))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
