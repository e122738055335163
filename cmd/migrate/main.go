// Command migrate backfills the legacy keyword-store message archive into
// the vector index, then verifies per-chat counts and re-queries a sample of
// migrated records. Exit code 1 means the run could not complete; exit code
// 2 means it completed but verification found mismatches.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"chatlens/internal/adapter/gemini"
	wstore "chatlens/internal/adapter/weaviate"
	"chatlens/internal/backfill"
	"chatlens/internal/config"
	"chatlens/internal/logger"
	"chatlens/internal/ocr"
	"chatlens/internal/retrieval"
	"chatlens/internal/worker"
)

func main() {
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping db: %w", err)
	}

	wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
	if err != nil {
		return fmt.Errorf("weaviate client error: %w", err)
	}
	store := wstore.NewStore(wClient, cfg.EmbeddingDim)

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("embedder error: %w", err)
	}
	defer embedder.Close()

	// The batch path never touches OCR, but the pipeline constructor wants
	// an extractor; the default one is never invoked here.
	pipeline, err := worker.NewPipeline(worker.PipelineConfig{
		RetryAttempts:  cfg.StoreRetryAttempts,
		RetryBaseDelay: time.Duration(cfg.StoreRetryBaseMillis) * time.Millisecond,
	}, ocr.NewExtractor(nil), embedder, store, nil)
	if err != nil {
		return fmt.Errorf("pipeline error: %w", err)
	}

	searcher := retrieval.NewService(embedder, store, cfg.SearchTopK, nil)
	runner := backfill.NewRunner(backfill.NewPostgresSource(db), pipeline, store, searcher, backfill.RunnerConfig{})

	start := time.Now()
	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	var indexed, skipped, failed int
	for _, c := range report.Chats {
		indexed += c.Indexed
		skipped += c.Skipped
		failed += c.Failed
	}
	slog.Info("migration pass complete",
		"chats", len(report.Chats),
		"indexed", indexed,
		"skipped", skipped,
		"failed", failed,
		"duration", time.Since(start).Round(time.Second).String())

	if mismatched := report.Mismatched(); len(mismatched) > 0 {
		for _, c := range mismatched {
			slog.Error("verification mismatch",
				"chat_id", c.ChatID,
				"source", c.SourceCount,
				"indexed", c.Indexed,
				"destination", c.DestinationCount,
				"samples_missed", c.SamplesMissed)
		}
		os.Exit(2)
	}

	slog.Info("verification passed")
	return nil
}
