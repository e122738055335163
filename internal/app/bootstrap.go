package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"chatlens/features/deadletter"
	"chatlens/internal/adapter/gemini"
	wstore "chatlens/internal/adapter/weaviate"
	"chatlens/internal/config"
	"chatlens/internal/ocr"
	"chatlens/internal/worker"
)

// Dependencies holds everything Bootstrap stood up. Close tears it down in
// reverse order.
type Dependencies struct {
	DB       *sql.DB
	Store    *wstore.Store
	Embedder *gemini.Embedder
	Pipeline *worker.Pipeline
	Consumer *nsq.Consumer
}

// Bootstrap connects to Postgres, Weaviate, Gemini and NSQ, runs schema
// migrations, probes the embedding dimension, and assembles the pipeline.
// A dimension mismatch between the model and config aborts startup: letting
// the process run would poison every class it writes to.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := runMigrations(db, cfg.MigrationPath); err != nil {
		return nil, err
	}

	wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
	wClient, err := weaviate.NewClient(wCfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	store := wstore.NewStore(wClient, cfg.EmbeddingDim)

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embedder error: %w", err)
	}
	if err := probeEmbeddingDim(ctx, embedder, cfg.EmbeddingDim); err != nil {
		return nil, err
	}

	extractor := ocr.NewExtractor(&ocr.Config{
		TesseractPath: cfg.TesseractPath,
		DataPath:      cfg.TessdataPath,
		Languages:     cfg.OCRLanguages,
	})
	if !extractor.IsAvailable(ctx) {
		slog.Warn("tesseract binary not found, image extraction will fail", "path", cfg.TesseractPath)
	}

	pipeline, err := worker.NewPipeline(worker.PipelineConfig{
		QueueCapacity:  cfg.QueueCapacity,
		WorkerCount:    cfg.WorkerCount,
		ComputeSlots:   cfg.ComputeSlots,
		OCRTimeout:     time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		RetryAttempts:  cfg.StoreRetryAttempts,
		RetryBaseDelay: time.Duration(cfg.StoreRetryBaseMillis) * time.Millisecond,
	}, extractor, embedder, store, deadletter.NewPostgresRepo(db))
	if err != nil {
		return nil, fmt.Errorf("pipeline error: %w", err)
	}

	deps := &Dependencies{
		DB:       db,
		Store:    store,
		Embedder: embedder,
		Pipeline: pipeline,
	}

	if cfg.EnableEvents {
		consumer, err := startEventConsumer(cfg, pipeline)
		if err != nil {
			return nil, err
		}
		deps.Consumer = consumer
	}

	return deps, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied")
	return nil
}

// probeEmbeddingDim embeds a fixed probe string and compares the vector
// length against the configured dimension.
func probeEmbeddingDim(ctx context.Context, embedder *gemini.Embedder, want int) error {
	vec, err := embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	if len(vec) != want {
		return fmt.Errorf("embedding dimension mismatch: model produced %d, configured %d", len(vec), want)
	}
	slog.Info("embedding dimension verified", "dim", want)
	return nil
}

func startEventConsumer(cfg *config.Config, pipeline *worker.Pipeline) (*nsq.Consumer, error) {
	createTopic(cfg.NSQDHTTP, cfg.EventTopic)

	consumer, err := nsq.NewConsumer(cfg.EventTopic, cfg.EventChannel, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}

	handler := worker.NewEventConsumer(pipeline)
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		return handler.HandleMessage(m)
	}))

	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		return nil, fmt.Errorf("nsq lookupd connect error: %w", err)
	}
	slog.Info("chat event consumer connected", "topic", cfg.EventTopic, "channel", cfg.EventChannel)
	return consumer, nil
}

// createTopic pre-creates the topic on nsqd so the consumer does not 404
// against lookupd before the first publish.
func createTopic(nsqdHTTP, topic string) {
	if host, _, err := net.SplitHostPort(nsqdHTTP); err == nil && host != "" {
		nsqdHTTP = net.JoinHostPort(host, "4151")
	}
	go func() {
		time.Sleep(2 * time.Second)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}()
}

// Close stops the consumer first so no new events arrive while the pipeline
// drains, then releases the database.
func (d *Dependencies) Close(grace time.Duration) {
	if d.Consumer != nil {
		d.Consumer.Stop()
		<-d.Consumer.StopChan
	}
	if d.Pipeline != nil {
		d.Pipeline.Shutdown(grace)
	}
	if d.Embedder != nil {
		if err := d.Embedder.Close(); err != nil {
			slog.Warn("failed to close embedder", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}
