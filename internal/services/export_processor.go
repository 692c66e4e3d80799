package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"matchfund/internal/core"
	"matchfund/internal/sheets"
	"matchfund/internal/storage"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often to check for pending jobs (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of jobs to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum attempts before a job is marked failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up completed jobs (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed jobs must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:    30 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SummaryLoader loads the financial summary of a match.
type SummaryLoader interface {
	GetFinancialSummary(ctx context.Context, matchID string) (core.FinancialSummary, error)
}

// ReportWriter persists the rendered reports of an ended match.
type ReportWriter interface {
	WriteReports(ctx context.Context, s core.FinancialSummary, at time.Time) (string, error)
}

// ExportProcessor drains the export queue: for each ended match it writes the
// report files and appends the summary to the external sheet.
type ExportProcessor struct {
	queue     storage.ExportQueue
	summaries SummaryLoader
	exporter  sheets.SummaryExporter
	reports   ReportWriter
	config    ExportProcessorConfig

	// batchMu keeps the ticker and Trigger from running batches concurrently.
	batchMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	wakeCh  chan struct{}
}

func NewExportProcessor(
	queue storage.ExportQueue,
	summaries SummaryLoader,
	exporter sheets.SummaryExporter,
	reports ReportWriter,
	config ExportProcessorConfig,
) *ExportProcessor {
	return &ExportProcessor{
		queue:     queue,
		summaries: summaries,
		exporter:  exporter,
		reports:   reports,
		config:    config,
		wakeCh:    make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Jobs left in processing by a crashed worker go back to pending.
	if err := p.queue.ResetStaleExports(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale export jobs", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Trigger asks the loop to process the queue now instead of waiting for the
// next tick. It never blocks.
func (p *ExportProcessor) Trigger() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.ProcessPending(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessPending(ctx)
		case <-p.wakeCh:
			p.ProcessPending(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessPending processes one batch of pending jobs and returns how many
// completed.
func (p *ExportProcessor) ProcessPending(ctx context.Context) int {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	jobs, err := p.queue.DequeueExports(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue export batch", "error", err)
		return 0
	}
	if len(jobs) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing export batch", "count", len(jobs))

	completed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return completed
		}

		if err := p.queue.MarkExportProcessing(ctx, job.ID); err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				slog.ErrorContext(ctx, "Failed to mark export as processing", "id", job.ID, "error", err)
			}
			continue
		}

		if err := p.exportMatch(ctx, job.MatchID); err != nil {
			p.handleFailure(ctx, job, err)
			continue
		}
		p.handleSuccess(ctx, job)
		completed++
	}
	return completed
}

func (p *ExportProcessor) exportMatch(ctx context.Context, matchID string) error {
	summary, err := p.summaries.GetFinancialSummary(ctx, matchID)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}

	if p.reports != nil {
		path, err := p.reports.WriteReports(ctx, summary, time.Now())
		if err != nil {
			return fmt.Errorf("write reports: %w", err)
		}
		slog.InfoContext(ctx, "Match reports written", "match_id", matchID, "path", path)
	}

	if p.exporter != nil {
		ref, err := p.exporter.AppendMatchSummary(ctx, summary)
		if err != nil {
			return fmt.Errorf("append summary: %w", err)
		}
		slog.InfoContext(ctx, "Match summary exported", "match_id", matchID, "ref", ref)
	}
	return nil
}

func (p *ExportProcessor) handleSuccess(ctx context.Context, job storage.ExportJob) {
	if err := p.queue.MarkExportComplete(ctx, job.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark export complete", "id", job.ID, "error", err)
	}
}

func (p *ExportProcessor) handleFailure(ctx context.Context, job storage.ExportJob, processErr error) {
	slog.WarnContext(ctx, "Export failed",
		"id", job.ID,
		"match_id", job.MatchID,
		"attempt", job.Attempts+1,
		"error", processErr)

	if job.Attempts+1 >= p.config.MaxRetries {
		if err := p.queue.MarkExportFailed(ctx, job.ID, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark export as failed", "id", job.ID, "error", err)
		}
		slog.ErrorContext(ctx, "Export failed permanently after max retries",
			"id", job.ID,
			"match_id", job.MatchID,
			"attempts", job.Attempts+1)
		return
	}

	if err := p.queue.IncrementExportAttempt(ctx, job.ID, processErr.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to increment export attempt", "id", job.ID, "error", err)
	}
}

func (p *ExportProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	n, err := p.queue.CleanupCompletedExports(ctx, cutoff)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed exports", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed exports", "count", n)
	}
}

func (p *ExportProcessor) Stats(ctx context.Context) (storage.ExportStats, error) {
	return p.queue.ExportStats(ctx)
}

// RetryFailed resets every failed job for another round of attempts.
func (p *ExportProcessor) RetryFailed(ctx context.Context) (int64, error) {
	n, err := p.queue.RetryFailedExports(ctx)
	if err == nil && n > 0 {
		p.Trigger()
	}
	return n, err
}
