package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SourceKind marks how a record's text was obtained.
type SourceKind string

const (
	SourceText SourceKind = "text"
	SourceOCR  SourceKind = "ocr"
)

// Record is a single indexed unit of content. Text and Vector are always
// written together; a record is never stored half-built.
type Record struct {
	ID           string
	ChatID       string
	MessageID    string
	ChatUsername string
	Text         string
	SourceKind   SourceKind
	Vector       []float32
	Timestamp    time.Time
	Language     string
}

// TextMessage is the direct text-ingestion input. Kind defaults to
// SourceText when empty; the migration path sets it explicitly.
type TextMessage struct {
	ChatID       string
	MessageID    string
	ChatUsername string
	Text         string
	Kind         SourceKind
	Timestamp    time.Time
}

// ImageMessage is an inbound image event. Attachment distinguishes multiple
// images on the same message so re-processing cannot collide ids.
type ImageMessage struct {
	ChatID       string
	MessageID    string
	ChatUsername string
	Image        []byte
	Caption      string
	Attachment   int
	Timestamp    time.Time
}

// Item is an image sitting on the ingestion queue. The queue owns it until a
// single worker dequeues it; it is never visible to two workers at once.
type Item struct {
	ChatID       string
	MessageID    string
	ChatUsername string
	Image        []byte
	Attachment   int
	Timestamp    time.Time
	EnqueuedAt   time.Time
}

// NewRecordID derives a stable id from the message coordinates so that
// re-ingesting the same message overwrites instead of duplicating.
func NewRecordID(chatID, messageID string, attachment int) string {
	key := chatID + ":" + messageID
	if attachment > 0 {
		key += ":" + strconv.Itoa(attachment)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Upsert(ctx context.Context, record Record) error
}

type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// FailureRecorder persists permanently failed extractions for later
// inspection. Recording failures must never fail the pipeline itself.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, chatID, messageID, reason string, enqueuedAt time.Time) error
}
