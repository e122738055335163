package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"chatlens/internal/text"
)

const (
	ocrPrefix     = "[Image OCR] "
	captionPrefix = "[Image Caption] "

	// textIndexTimeout bounds a single embed+upsert for the direct text path.
	textIndexTimeout = 60 * time.Second
)

type PipelineConfig struct {
	QueueCapacity  int
	WorkerCount    int
	ComputeSlots   int
	OCRTimeout     time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 100
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.ComputeSlots <= 0 {
		c.ComputeSlots = 2
	}
	if c.OCRTimeout <= 0 {
		c.OCRTimeout = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
	return c
}

// Pipeline owns the ingestion queue, the extraction workers and their
// counters. It is an explicit instance rather than package state so tests
// (and multi-namespace deployments) can run several pipelines side by side.
//
// The worker count and the compute-slot count are independent levels: each
// worker dispatches its OCR call into a shared bounded ants pool, so the
// number of concurrently running OCR computations never exceeds ComputeSlots
// regardless of how many workers drain the queue.
type Pipeline struct {
	cfg       PipelineConfig
	queue     *Queue
	compute   *ants.Pool
	extractor Extractor
	embedder  Embedder
	store     VectorStore
	failures  FailureRecorder

	ctx    context.Context
	cancel context.CancelFunc

	workers  sync.WaitGroup
	inflight sync.WaitGroup
	active   atomic.Int32
	indexed  atomic.Int64
}

type Status struct {
	QueueDepth    int
	QueueCapacity int
	DroppedCount  int64
	WorkerCount   int
	ActiveWorkers int
	IndexedCount  int64
}

// NewPipeline wires the pipeline. failures may be nil when no dead-letter
// store is configured.
func NewPipeline(cfg PipelineConfig, extractor Extractor, embedder Embedder, store VectorStore, failures FailureRecorder) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}

	cfg = cfg.withDefaults()

	compute, err := ants.NewPool(cfg.ComputeSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:       cfg,
		queue:     NewQueue(cfg.QueueCapacity),
		compute:   compute,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		failures:  failures,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches the extraction workers. Call once.
func (p *Pipeline) Start() {
	for i := 1; i <= p.cfg.WorkerCount; i++ {
		p.workers.Add(1)
		go p.runWorker(i)
	}
	slog.Info("extraction workers started", "workers", p.cfg.WorkerCount, "compute_slots", p.cfg.ComputeSlots)
}

func (p *Pipeline) runWorker(id int) {
	defer p.workers.Done()
	for {
		item, ok := p.queue.Dequeue()
		if !ok {
			slog.Info("extraction worker exiting", "worker", id)
			return
		}
		p.active.Add(1)
		p.processItem(item)
		p.active.Add(-1)
	}
}

// processItem drives one item through Processing to Indexed or Dropped.
// Failure is scoped to the item: nothing here can take down the pipeline.
func (p *Pipeline) processItem(item Item) {
	ctx := p.ctx

	ocrCtx, cancel := context.WithTimeout(ctx, p.cfg.OCRTimeout)
	defer cancel()

	var extracted string
	var extractErr error
	done := make(chan struct{})

	// Submit blocks until a compute slot frees up, capping concurrent OCR.
	if err := p.compute.Submit(func() {
		defer close(done)
		extracted, extractErr = p.extractor.ExtractText(ocrCtx, item.Image)
	}); err != nil {
		p.dropItem(ctx, item, fmt.Errorf("compute pool unavailable: %w", err))
		return
	}
	<-done

	if extractErr != nil {
		p.dropItem(ctx, item, extractErr)
		return
	}
	if text.IsBlank(extracted) {
		slog.DebugContext(ctx, "no text found in image", "chat_id", item.ChatID, "message_id", item.MessageID)
		return
	}

	record := Record{
		ID:           NewRecordID(item.ChatID, item.MessageID, item.Attachment),
		ChatID:       item.ChatID,
		MessageID:    item.MessageID,
		ChatUsername: item.ChatUsername,
		Text:         ocrPrefix + extracted,
		SourceKind:   SourceOCR,
		Timestamp:    item.Timestamp,
		Language:     text.DetectLanguage(extracted),
	}

	vector, err := p.embedder.Embed(ctx, record.Text)
	if err != nil {
		p.dropItem(ctx, item, fmt.Errorf("embedding failed: %w", err))
		return
	}
	record.Vector = vector

	if err := RetryWithBackoff(ctx, func() error {
		return p.store.Upsert(ctx, record)
	}, p.cfg.RetryAttempts, p.cfg.RetryBaseDelay); err != nil {
		p.dropItem(ctx, item, fmt.Errorf("store upsert failed: %w", err))
		return
	}

	p.indexed.Add(1)
	slog.InfoContext(ctx, "image indexed", "chat_id", item.ChatID, "message_id", item.MessageID, "chars", len(extracted))
}

func (p *Pipeline) dropItem(ctx context.Context, item Item, cause error) {
	slog.WarnContext(ctx, "dropping image after extraction failure",
		"chat_id", item.ChatID, "message_id", item.MessageID, "error", cause)

	if p.failures == nil {
		return
	}
	if err := p.failures.RecordFailure(ctx, item.ChatID, item.MessageID, cause.Error(), item.EnqueuedAt); err != nil {
		slog.WarnContext(ctx, "failed to record dead letter", "error", err)
	}
}

// IndexText embeds and upserts a text message synchronously. Blank text is
// skipped silently per the ingestion contract. The migration tool calls this
// directly; online ingestion goes through SubmitText.
func (p *Pipeline) IndexText(ctx context.Context, m TextMessage) error {
	if text.IsBlank(m.Text) {
		return nil
	}

	kind := m.Kind
	if kind == "" {
		kind = SourceText
	}
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	record := Record{
		ID:           NewRecordID(m.ChatID, m.MessageID, 0),
		ChatID:       m.ChatID,
		MessageID:    m.MessageID,
		ChatUsername: m.ChatUsername,
		Text:         m.Text,
		SourceKind:   kind,
		Timestamp:    ts,
		Language:     text.DetectLanguage(m.Text),
	}

	vector, err := p.embedder.Embed(ctx, record.Text)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	record.Vector = vector

	if err := RetryWithBackoff(ctx, func() error {
		return p.store.Upsert(ctx, record)
	}, p.cfg.RetryAttempts, p.cfg.RetryBaseDelay); err != nil {
		return fmt.Errorf("store upsert failed: %w", err)
	}

	p.indexed.Add(1)
	return nil
}

// SubmitText indexes a text message in the background and returns
// immediately; the front end never waits on embedding latency. Errors stay
// item-scoped and are only logged.
func (p *Pipeline) SubmitText(m TextMessage) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		ctx, cancel := context.WithTimeout(p.ctx, textIndexTimeout)
		defer cancel()
		if err := p.IndexText(ctx, m); err != nil {
			slog.ErrorContext(ctx, "text ingestion failed", "chat_id", m.ChatID, "message_id", m.MessageID, "error", err)
		}
	}()
}

// EnqueueImage queues an image for OCR and returns whether it was accepted.
// A caption, when present, is indexed right away as its own text record; the
// OCR result gets a distinct id via the attachment index.
func (p *Pipeline) EnqueueImage(m ImageMessage) bool {
	if m.Attachment <= 0 {
		m.Attachment = 1
	}

	if !text.IsBlank(m.Caption) {
		p.SubmitText(TextMessage{
			ChatID:       m.ChatID,
			MessageID:    m.MessageID,
			ChatUsername: m.ChatUsername,
			Text:         captionPrefix + m.Caption,
			Timestamp:    m.Timestamp,
		})
	}

	ok := p.queue.TryEnqueue(Item{
		ChatID:       m.ChatID,
		MessageID:    m.MessageID,
		ChatUsername: m.ChatUsername,
		Image:        m.Image,
		Attachment:   m.Attachment,
		Timestamp:    m.Timestamp,
		EnqueuedAt:   time.Now().UTC(),
	})
	if !ok {
		slog.Warn("ingestion queue full, dropping image", "chat_id", m.ChatID, "message_id", m.MessageID)
	}
	return ok
}

// Shutdown stops accepting work, then waits up to grace for in-flight
// extractions to finish. Work still running after the grace period is
// abandoned via context cancellation.
func (p *Pipeline) Shutdown(grace time.Duration) {
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("pipeline drained cleanly")
	case <-time.After(grace):
		slog.Warn("shutdown grace period elapsed, abandoning in-flight extractions")
	}

	p.cancel()
	p.compute.Release()
}

func (p *Pipeline) Status() Status {
	return Status{
		QueueDepth:    p.queue.Depth(),
		QueueCapacity: p.queue.Capacity(),
		DroppedCount:  p.queue.Dropped(),
		WorkerCount:   p.cfg.WorkerCount,
		ActiveWorkers: int(p.active.Load()),
		IndexedCount:  p.indexed.Load(),
	}
}
