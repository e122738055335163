package message

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"chatlens/internal/middleware"
	"chatlens/internal/worker"
)

// Ingestor is the slice of the pipeline the inbound handlers need. Both
// operations return before any embedding or OCR work happens; the chat
// front end must never wait on the pipeline.
type Ingestor interface {
	SubmitText(m worker.TextMessage)
	EnqueueImage(m worker.ImageMessage) bool
}

type Handler struct {
	pipeline Ingestor
}

func NewHandler(pipeline Ingestor) *Handler {
	return &Handler{pipeline: pipeline}
}

type textRequest struct {
	ChatID       string    `json:"chat_id"`
	MessageID    string    `json:"message_id"`
	ChatUsername string    `json:"chat_username"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h *Handler) PostText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.ChatID == "" || req.MessageID == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "chat_id and message_id are required", http.StatusBadRequest)
		return
	}

	h.pipeline.SubmitText(worker.TextMessage{
		ChatID:       req.ChatID,
		MessageID:    req.MessageID,
		ChatUsername: req.ChatUsername,
		Text:         req.Text,
		Timestamp:    req.Timestamp,
	})

	h.writeAccepted(w, "accepted")
}

type imageRequest struct {
	ChatID       string    `json:"chat_id"`
	MessageID    string    `json:"message_id"`
	ChatUsername string    `json:"chat_username"`
	Image        []byte    `json:"image"` // base64 in transit via encoding/json
	Caption      string    `json:"caption"`
	Attachment   int       `json:"attachment"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h *Handler) PostImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.ChatID == "" || req.MessageID == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "chat_id and message_id are required", http.StatusBadRequest)
		return
	}
	if len(req.Image) == 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "image is required", http.StatusBadRequest)
		return
	}

	accepted := h.pipeline.EnqueueImage(worker.ImageMessage{
		ChatID:       req.ChatID,
		MessageID:    req.MessageID,
		ChatUsername: req.ChatUsername,
		Image:        req.Image,
		Caption:      req.Caption,
		Attachment:   req.Attachment,
		Timestamp:    req.Timestamp,
	})

	// A full queue sheds the item. That is backpressure working as intended,
	// so the front end still gets a 202; the drop shows up on /status.
	status := "accepted"
	if !accepted {
		status = "dropped"
	}
	h.writeAccepted(w, status)
}

func (h *Handler) writeAccepted(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"status": status}}); err != nil {
		slog.Error("failed to encode response", "error", err)
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
