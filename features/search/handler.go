package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"chatlens/internal/middleware"
	"chatlens/internal/retrieval"
)

type Searcher interface {
	Search(ctx context.Context, chatID, question string, k int) ([]retrieval.SearchResult, error)
}

type Handler struct {
	searcher Searcher
}

func NewHandler(searcher Searcher) *Handler {
	return &Handler{searcher: searcher}
}

type searchRequest struct {
	ChatID   string `json:"chat_id"`
	Question string `json:"question"`
	K        int    `json:"k"`
}

type searchResult struct {
	retrieval.SearchResult
	Link string `json:"link,omitempty"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.ChatID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "chat_id is required", http.StatusBadRequest)
		return
	}

	results, err := h.searcher.Search(ctx, req.ChatID, req.Question, req.K)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "chat_id", req.ChatID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "search failed", http.StatusInternalServerError)
		return
	}

	payload := make([]searchResult, 0, len(results))
	for _, res := range results {
		payload = append(payload, searchResult{SearchResult: res, Link: res.MessageLink()})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"results": payload}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
