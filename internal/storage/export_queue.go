package storage

import (
	"context"
	"fmt"
	"time"

	"matchfund/internal/core"
)

const exportColumns = `id, match_id, status, attempts, last_error, created_at, updated_at`

func enqueueExport(ctx context.Context, q queryer, matchID string, at time.Time) error {
	ts := formatTime(at)
	_, err := q.ExecContext(ctx, `INSERT INTO export_queue (match_id, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, 0, '', ?, ?)`, matchID, ExportPending, ts, ts)
	return core.NewStorageError("enqueue export", err)
}

// DequeueExports returns the oldest pending jobs.
func (r *SQLiteRepository) DequeueExports(ctx context.Context, limit int) ([]ExportJob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+exportColumns+` FROM export_queue
		WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`, ExportPending, limit)
	if err != nil {
		return nil, core.NewStorageError("dequeue exports", err)
	}
	defer rows.Close()

	var jobs []ExportJob
	for rows.Next() {
		var (
			job                  ExportJob
			createdAt, updatedAt string
		)
		if err := rows.Scan(&job.ID, &job.MatchID, &job.Status, &job.Attempts, &job.LastError, &createdAt, &updatedAt); err != nil {
			return nil, core.NewStorageError("scan export job", err)
		}
		if job.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, core.NewStorageError("scan export job", err)
		}
		if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, core.NewStorageError("scan export job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("iterate export jobs", err)
	}
	return jobs, nil
}

// MarkExportProcessing claims a pending job. It fails with core.ErrNotFound
// when the job is gone or already claimed.
func (r *SQLiteRepository) MarkExportProcessing(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE export_queue SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`, ExportProcessing, formatTime(time.Now()), id, ExportPending)
	if err != nil {
		return core.NewStorageError("claim export", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending export %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) MarkExportComplete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE export_queue SET status = ?, last_error = '', updated_at = ? WHERE id = ?`,
		ExportCompleted, formatTime(time.Now()), id)
	return core.NewStorageError("complete export", err)
}

// IncrementExportAttempt records a failed attempt and puts the job back in the queue.
func (r *SQLiteRepository) IncrementExportAttempt(ctx context.Context, id int64, lastError string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE export_queue
		SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		ExportPending, lastError, formatTime(time.Now()), id)
	return core.NewStorageError("retry export", err)
}

func (r *SQLiteRepository) MarkExportFailed(ctx context.Context, id int64, lastError string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE export_queue
		SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		ExportFailed, lastError, formatTime(time.Now()), id)
	return core.NewStorageError("fail export", err)
}

// ResetStaleExports returns jobs left in processing by a crashed worker to the queue.
func (r *SQLiteRepository) ResetStaleExports(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE export_queue SET status = ?, updated_at = ? WHERE status = ?`,
		ExportPending, formatTime(time.Now()), ExportProcessing)
	return core.NewStorageError("reset stale exports", err)
}

func (r *SQLiteRepository) CleanupCompletedExports(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM export_queue WHERE status = ? AND updated_at < ?`,
		ExportCompleted, formatTime(before))
	if err != nil {
		return 0, core.NewStorageError("cleanup exports", err)
	}
	n, err := res.RowsAffected()
	return n, core.NewStorageError("cleanup exports", err)
}

func (r *SQLiteRepository) RetryFailedExports(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE export_queue SET status = ?, attempts = 0, updated_at = ? WHERE status = ?`,
		ExportPending, formatTime(time.Now()), ExportFailed)
	if err != nil {
		return 0, core.NewStorageError("retry failed exports", err)
	}
	n, err := res.RowsAffected()
	return n, core.NewStorageError("retry failed exports", err)
}

func (r *SQLiteRepository) ExportStats(ctx context.Context) (ExportStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM export_queue GROUP BY status`)
	if err != nil {
		return ExportStats{}, core.NewStorageError("export stats", err)
	}
	defer rows.Close()

	var stats ExportStats
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return ExportStats{}, core.NewStorageError("scan export stats", err)
		}
		switch status {
		case ExportPending:
			stats.Pending = count
		case ExportProcessing:
			stats.Processing = count
		case ExportCompleted:
			stats.Completed = count
		case ExportFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return ExportStats{}, core.NewStorageError("iterate export stats", err)
	}
	return stats, nil
}
