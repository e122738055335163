package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"chatlens/internal/middleware"
)

// Ingestor is the slice of the pipeline the event consumer needs.
type Ingestor interface {
	SubmitText(m TextMessage)
	EnqueueImage(m ImageMessage) bool
}

// EventConsumer translates NSQ chat events into pipeline calls. Malformed
// messages are poison pills: logged and acknowledged, never retried.
type EventConsumer struct {
	pipeline Ingestor
}

func NewEventConsumer(pipeline Ingestor) *EventConsumer {
	return &EventConsumer{pipeline: pipeline}
}

func (c *EventConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload ChatEventPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if payload.ChatID == "" || payload.MessageID == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping event", "chat_id", payload.ChatID, "message_id", payload.MessageID)
		return nil
	}

	switch payload.Type {
	case EventTypeText:
		c.pipeline.SubmitText(TextMessage{
			ChatID:       payload.ChatID,
			MessageID:    payload.MessageID,
			ChatUsername: payload.ChatUsername,
			Text:         payload.Text,
			Timestamp:    payload.Timestamp,
		})
	case EventTypeImage:
		accepted := c.pipeline.EnqueueImage(ImageMessage{
			ChatID:       payload.ChatID,
			MessageID:    payload.MessageID,
			ChatUsername: payload.ChatUsername,
			Image:        payload.Image,
			Caption:      payload.Caption,
			Attachment:   payload.Attachment,
			Timestamp:    payload.Timestamp,
		})
		if !accepted {
			// Dropping on backpressure is final; acknowledging keeps NSQ
			// from replaying into an already-full queue.
			slog.InfoContext(ctx, "image event shed by backpressure", "chat_id", payload.ChatID, "message_id", payload.MessageID)
		}
	default:
		slog.WarnContext(ctx, "unknown event type, dropping", "type", payload.Type)
	}

	return nil
}
