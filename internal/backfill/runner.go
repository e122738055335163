package backfill

import (
	"context"
	"log/slog"
	"strings"

	"chatlens/internal/retrieval"
	"chatlens/internal/text"
	"chatlens/internal/worker"
)

const legacyOCRPrefix = "[Image OCR] "

// Indexer is the ingestion entry point the runner feeds records through. It
// is the same path live messages take, so migrated records get the same
// embedding model and id derivation.
type Indexer interface {
	IndexText(ctx context.Context, msg worker.TextMessage) error
}

// Destination counts migrated records per chat for post-pass verification.
type Destination interface {
	CountByChat(ctx context.Context, chatID string) (int, error)
}

// Searcher re-queries migrated samples to confirm they are retrievable.
type Searcher interface {
	Search(ctx context.Context, chatID, question string, k int) ([]retrieval.SearchResult, error)
}

// ChatReport is the per-chat outcome of a migration pass. A mismatch is
// reported, never rolled back; already-migrated records stay in place.
type ChatReport struct {
	ChatID           string
	SourceCount      int
	Indexed          int
	Skipped          int
	Failed           int
	DestinationCount int
	SamplesChecked   int
	SamplesMissed    int
}

// Mismatch reports whether the destination disagrees with what the pass
// believes it wrote, or whether a migrated sample could not be found again.
func (r ChatReport) Mismatch() bool {
	return r.DestinationCount != r.Indexed || r.Failed > 0 || r.SamplesMissed > 0
}

type Report struct {
	Chats []ChatReport
}

func (r Report) Mismatched() []ChatReport {
	var out []ChatReport
	for _, c := range r.Chats {
		if c.Mismatch() {
			out = append(out, c)
		}
	}
	return out
}

type RunnerConfig struct {
	SampleSize    int
	SampleTopK    int
	ProgressEvery int
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.SampleSize <= 0 {
		c.SampleSize = 5
	}
	if c.SampleTopK <= 0 {
		c.SampleTopK = 3
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 100
	}
	return c
}

// Runner performs the one-time backfill from the legacy archive into the
// vector store, chat by chat.
type Runner struct {
	source   Source
	indexer  Indexer
	dest     Destination
	searcher Searcher
	cfg      RunnerConfig
}

func NewRunner(source Source, indexer Indexer, dest Destination, searcher Searcher, cfg RunnerConfig) *Runner {
	return &Runner{
		source:   source,
		indexer:  indexer,
		dest:     dest,
		searcher: searcher,
		cfg:      cfg.withDefaults(),
	}
}

// Run migrates every chat in the source. A single bad record is logged and
// counted, not fatal; an unreadable source or cancelled context is.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	chats, err := r.source.Chats(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, chatID := range chats {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cr, err := r.migrateChat(ctx, chatID)
		if err != nil {
			return report, err
		}
		report.Chats = append(report.Chats, cr)
	}
	return report, nil
}

func (r *Runner) migrateChat(ctx context.Context, chatID string) (ChatReport, error) {
	report := ChatReport{ChatID: chatID}

	messages, err := r.source.MessagesByChat(ctx, chatID)
	if err != nil {
		return report, err
	}
	sourceCount, err := r.source.CountByChat(ctx, chatID)
	if err != nil {
		return report, err
	}
	report.SourceCount = sourceCount

	var indexed []LegacyMessage
	for i, m := range messages {
		if text.IsBlank(m.Text) {
			report.Skipped++
			continue
		}
		msg := worker.TextMessage{
			ChatID:       m.ChatID,
			MessageID:    m.MessageID,
			ChatUsername: m.ChatUsername,
			Text:         m.Text,
			Kind:         inferKind(m.Text),
			Timestamp:    m.Timestamp,
		}
		if err := r.indexer.IndexText(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "backfill: failed to index record",
				"chat_id", m.ChatID, "message_id", m.MessageID, "error", err)
			report.Failed++
			continue
		}
		report.Indexed++
		indexed = append(indexed, m)

		if (i+1)%r.cfg.ProgressEvery == 0 {
			slog.InfoContext(ctx, "backfill: progress",
				"chat_id", chatID, "processed", i+1, "total", len(messages))
		}
	}

	report.DestinationCount, err = r.dest.CountByChat(ctx, chatID)
	if err != nil {
		return report, err
	}

	r.verifySamples(ctx, &report, indexed)

	slog.InfoContext(ctx, "backfill: chat done",
		"chat_id", chatID,
		"source", report.SourceCount,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"destination", report.DestinationCount,
		"mismatch", report.Mismatch())
	return report, nil
}

// verifySamples re-queries a spread of migrated records by their own text
// and confirms the record itself comes back. Failing this after a matching
// count points at an embedding or partition problem, not a lost write.
func (r *Runner) verifySamples(ctx context.Context, report *ChatReport, indexed []LegacyMessage) {
	if r.searcher == nil || len(indexed) == 0 {
		return
	}

	step := len(indexed) / r.cfg.SampleSize
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(indexed) && report.SamplesChecked < r.cfg.SampleSize; i += step {
		sample := indexed[i]
		report.SamplesChecked++

		results, err := r.searcher.Search(ctx, sample.ChatID, sample.Text, r.cfg.SampleTopK)
		if err != nil {
			slog.ErrorContext(ctx, "backfill: sample query failed",
				"chat_id", sample.ChatID, "message_id", sample.MessageID, "error", err)
			report.SamplesMissed++
			continue
		}

		found := false
		for _, res := range results {
			if res.MessageID == sample.MessageID {
				found = true
				break
			}
		}
		if !found {
			slog.WarnContext(ctx, "backfill: migrated record not retrievable by its own text",
				"chat_id", sample.ChatID, "message_id", sample.MessageID)
			report.SamplesMissed++
		}
	}
}

// inferKind tags legacy rows that were written by the old OCR path; they
// already carry the prefix in their stored text.
func inferKind(s string) worker.SourceKind {
	if strings.HasPrefix(s, legacyOCRPrefix) {
		return worker.SourceOCR
	}
	return worker.SourceText
}
