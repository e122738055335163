package worker

import "time"

// ChatEventPayload is the wire format the chat front end publishes to the
// chat.events topic. Image bytes travel base64-encoded by encoding/json.
type ChatEventPayload struct {
	Type         string    `json:"type"` // "text" or "image"
	ChatID       string    `json:"chat_id"`
	MessageID    string    `json:"message_id"`
	ChatUsername string    `json:"chat_username,omitempty"`
	Text         string    `json:"text,omitempty"`
	Caption      string    `json:"caption,omitempty"`
	Image        []byte    `json:"image,omitempty"`
	Attachment   int       `json:"attachment,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

const (
	EventTypeText  = "text"
	EventTypeImage = "image"
)
