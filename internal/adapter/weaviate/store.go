package weaviate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"chatlens/internal/retrieval"
	"chatlens/internal/vector"
	"chatlens/internal/worker"
)

// ErrDimensionMismatch is returned when a record's vector does not match the
// dimension the store was configured with. Mixed dimensions in one class
// would corrupt every similarity query against it, so the write is refused.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store persists records into one Weaviate class per chat and answers
// nearest-neighbour queries scoped to a single chat's class.
type Store struct {
	client *weaviate.Client
	schema vector.SchemaClient
	dim    int

	mu      sync.Mutex
	ensured map[string]bool
}

func NewStore(client *weaviate.Client, dim int) *Store {
	return &Store{
		client:  client,
		schema:  vector.NewWeaviateClientAdapter(client),
		dim:     dim,
		ensured: make(map[string]bool),
	}
}

// Upsert writes the record under its deterministic id, replacing any
// previous object with the same id so re-ingestion never duplicates.
func (s *Store) Upsert(ctx context.Context, rec worker.Record) error {
	if s.dim > 0 && len(rec.Vector) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(rec.Vector), s.dim)
	}

	className := vector.ClassNameForChat(rec.ChatID)
	if err := s.ensureClass(ctx, rec.ChatID, className); err != nil {
		return fmt.Errorf("ensure class %s: %w", className, err)
	}

	props := map[string]interface{}{
		"text":         rec.Text,
		"chatId":       rec.ChatID,
		"messageId":    rec.MessageID,
		"chatUsername": rec.ChatUsername,
		"sourceKind":   string(rec.SourceKind),
		"timestamp":    rec.Timestamp.Format(time.RFC3339),
		"language":     rec.Language,
	}

	exists, err := s.client.Data().Checker().
		WithClassName(className).
		WithID(rec.ID).
		Do(ctx)
	if err != nil {
		return err
	}

	if exists {
		return s.client.Data().Updater().
			WithClassName(className).
			WithID(rec.ID).
			WithProperties(props).
			WithVector(rec.Vector).
			Do(ctx)
	}

	_, err = s.client.Data().Creator().
		WithClassName(className).
		WithID(rec.ID).
		WithProperties(props).
		WithVector(rec.Vector).
		Do(ctx)
	return err
}

// Query returns up to k records from the chat's class ordered by similarity.
// A chat that was never indexed has no class yet; that is an empty result,
// not an error.
func (s *Store) Query(ctx context.Context, chatID string, vec []float32, k int) ([]retrieval.SearchResult, error) {
	className := vector.ClassNameForChat(chatID)

	exists, err := s.schema.ClassExists(ctx, className)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "chatId"},
		{Name: "messageId"},
		{Name: "chatUsername"},
		{Name: "sourceKind"},
		{Name: "timestamp"},
		{Name: "language"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}, {Name: "id"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var results []retrieval.SearchResult
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if objects, ok := data[className].([]interface{}); ok {
			for _, o := range objects {
				if props, ok := o.(map[string]interface{}); ok {
					results = append(results, resultFromProps(props))
				}
			}
		}
	}

	sortResults(results)
	return results, nil
}

// CountByChat returns how many records the chat's class holds. Used by the
// migration pipeline to verify counts after a backfill.
func (s *Store) CountByChat(ctx context.Context, chatID string) (int, error) {
	className := vector.ClassNameForChat(chatID)

	exists, err := s.schema.ClassExists(ctx, className)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if objects, ok := data[className].([]interface{}); ok && len(objects) > 0 {
			if agg, ok := objects[0].(map[string]interface{}); ok {
				if meta, ok := agg["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func (s *Store) ensureClass(ctx context.Context, chatID, className string) error {
	s.mu.Lock()
	done := s.ensured[className]
	s.mu.Unlock()
	if done {
		return nil
	}

	if err := vector.EnsureChatClass(ctx, s.schema, chatID); err != nil {
		return err
	}

	s.mu.Lock()
	s.ensured[className] = true
	s.mu.Unlock()
	return nil
}

func resultFromProps(props map[string]interface{}) retrieval.SearchResult {
	var r retrieval.SearchResult

	if v, ok := props["text"].(string); ok {
		r.Text = v
	}
	if v, ok := props["chatId"].(string); ok {
		r.ChatID = v
	}
	if v, ok := props["messageId"].(string); ok {
		r.MessageID = v
	}
	if v, ok := props["chatUsername"].(string); ok {
		r.ChatUsername = v
	}
	if v, ok := props["sourceKind"].(string); ok {
		r.SourceKind = v
	}
	if v, ok := props["language"].(string); ok {
		r.Language = v
	}
	if v, ok := props["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			r.Timestamp = ts
		}
	}
	if additional, ok := props["_additional"].(map[string]interface{}); ok {
		r.Score = parseScore(additional)
	}

	return r
}

// parseScore reads the certainty value out of _additional. Depending on the
// server version it arrives as a JSON number or a string.
func parseScore(additional map[string]interface{}) float32 {
	switch v := additional["certainty"].(type) {
	case float64:
		return float32(v)
	case string:
		var f float64
		fmt.Sscanf(v, "%f", &f)
		return float32(f)
	}
	return 0
}

// sortResults orders by score descending; ties go to the newer message so
// repeated questions surface recent context first.
func sortResults(results []retrieval.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Timestamp.After(results[j].Timestamp)
	})
}
