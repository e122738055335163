package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"chatlens/internal/middleware"
	"chatlens/internal/worker"
)

type Pipeline interface {
	Status() worker.Status
}

type FailureRepo interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	pipeline Pipeline
	failures FailureRepo
}

// NewHandler builds the status handler. failures may be nil when no
// dead-letter store is configured.
func NewHandler(pipeline Pipeline, failures FailureRepo) *Handler {
	return &Handler{pipeline: pipeline, failures: failures}
}

type StatusResponse struct {
	QueueDepth        int   `json:"queue_depth"`
	QueueCapacity     int   `json:"queue_capacity"`
	DroppedCount      int64 `json:"dropped_count"`
	WorkerCount       int   `json:"worker_count"`
	ActiveWorkers     int   `json:"active_workers"`
	IndexedCount      int64 `json:"indexed_count"`
	FailedExtractions int   `json:"failed_extractions"`
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s := h.pipeline.Status()
	resp := StatusResponse{
		QueueDepth:    s.QueueDepth,
		QueueCapacity: s.QueueCapacity,
		DroppedCount:  s.DroppedCount,
		WorkerCount:   s.WorkerCount,
		ActiveWorkers: s.ActiveWorkers,
		IndexedCount:  s.IndexedCount,
	}

	if h.failures != nil {
		count, err := h.failures.Count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count failed extractions", "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count failed extractions", http.StatusInternalServerError)
			return
		}
		resp.FailedExtractions = count
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
