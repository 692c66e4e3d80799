package worker

import (
	"context"
	"fmt"
	"log/slog"

	"matchfund/internal/amqp"
	"matchfund/internal/storage"
)

// Processor is the part of services.ExportProcessor the worker drives.
type Processor interface {
	Trigger()
	ProcessPending(ctx context.Context) int
	Stats(ctx context.Context) (storage.ExportStats, error)
}

// ExportWorker reacts to match.ended messages. The export queue written with
// the ended match is the source of truth; a message only wakes the processor
// so the export happens without waiting for the next poll.
type ExportWorker struct {
	processor Processor
	matches   storage.MatchStore
}

func NewExportWorker(processor Processor, matches storage.MatchStore) *ExportWorker {
	return &ExportWorker{
		processor: processor,
		matches:   matches,
	}
}

// HandleMatchEnded processes a single match.ended message from AMQP.
func (w *ExportWorker) HandleMatchEnded(ctx context.Context, msg *amqp.MatchEndedMessage) error {
	slog.InfoContext(ctx, "Processing match ended message",
		"match_id", msg.MatchID,
		"final_balance_cents", msg.FinalBalanceCents,
		"timestamp", msg.Timestamp)

	m, err := w.matches.GetMatch(ctx, msg.MatchID)
	if err != nil {
		return fmt.Errorf("get match from storage: %w", err)
	}
	if !m.Ended() {
		// Redelivery cannot make an active match exportable; drop it.
		slog.WarnContext(ctx, "Ignoring match ended message for active match", "match_id", msg.MatchID)
		return nil
	}

	w.processor.Trigger()
	return nil
}

// StartupExportCheck drains whatever the queue holds before consumption
// starts. This recovers exports missed while the worker was down.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	stats, err := w.processor.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read export stats: %w", err)
	}

	if stats.Pending == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup", "failed", stats.Failed)
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", stats.Pending)

	completed := w.processor.ProcessPending(ctx)

	slog.InfoContext(ctx, "Startup export completed",
		"total", stats.Pending,
		"exported", completed)

	return nil
}
