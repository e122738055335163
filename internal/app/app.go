package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"chatlens/features/deadletter"
	"chatlens/features/message"
	"chatlens/features/search"
	"chatlens/features/status"
	"chatlens/internal/config"
	"chatlens/internal/middleware"
	"chatlens/internal/retrieval"
)

// Embedder and VectorStore are the app's views of the bootstrap outputs,
// kept as interfaces so tests can wire fakes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Query(ctx context.Context, chatID string, vector []float32, k int) ([]retrieval.SearchResult, error)
}

// Ingestor mirrors the pipeline surface the HTTP and status layers need.
type Ingestor interface {
	message.Ingestor
	status.Pipeline
}

type App struct {
	Handler   http.Handler
	Retrieval *retrieval.Service

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	pipeline Ingestor,
	embedder Embedder,
	store VectorStore,
) *App {
	// Feature: dead letters
	failureRepo := deadletter.NewPostgresRepo(db)
	failureHandler := deadletter.NewHandler(failureRepo)

	// Feature: retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedder, store, cfg.SearchTopK, queryLogger)
	searchHandler := search.NewHandler(retrievalService)

	// Feature: inbound messages
	messageHandler := message.NewHandler(pipeline)

	// Feature: status
	statusHandler := status.NewHandler(pipeline, failureRepo)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.Handle("POST /messages/text", middleware.CorrelationID(enableCORS(messageHandler.PostText)))
	mux.Handle("POST /messages/image", middleware.CorrelationID(enableCORS(messageHandler.PostImage)))

	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.Handle("GET /status", middleware.CorrelationID(enableCORS(statusHandler.GetStatus)))
	mux.Handle("GET /failures", middleware.CorrelationID(enableCORS(failureHandler.List)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:   mux,
		Retrieval: retrievalService,
		port:      cfg.ServerPort,
	}
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
