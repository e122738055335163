package deadletter

import "time"

// Failure is one permanently failed image extraction. OCR failure is
// terminal for the item, so the record is for inspection, not replay.
type Failure struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	MessageID  string    `json:"message_id"`
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	CreatedAt  time.Time `json:"created_at"`
}
