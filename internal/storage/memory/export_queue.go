package memory

import (
	"context"
	"fmt"
	"time"

	"matchfund/internal/core"
	"matchfund/internal/storage"
)

func (s *Store) DequeueExports(_ context.Context, limit int) ([]storage.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []storage.ExportJob
	for _, job := range s.exports {
		if len(jobs) >= limit {
			break
		}
		if job.Status == storage.ExportPending {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *Store) MarkExportProcessing(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.exportLocked(id)
	if job == nil || job.Status != storage.ExportPending {
		return fmt.Errorf("pending export %d: %w", id, core.ErrNotFound)
	}
	job.Status = storage.ExportProcessing
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkExportComplete(_ context.Context, id int64) error {
	return s.updateExport(id, func(job *storage.ExportJob) {
		job.Status = storage.ExportCompleted
		job.LastError = ""
	})
}

func (s *Store) IncrementExportAttempt(_ context.Context, id int64, lastError string) error {
	return s.updateExport(id, func(job *storage.ExportJob) {
		job.Status = storage.ExportPending
		job.Attempts++
		job.LastError = lastError
	})
}

func (s *Store) MarkExportFailed(_ context.Context, id int64, lastError string) error {
	return s.updateExport(id, func(job *storage.ExportJob) {
		job.Status = storage.ExportFailed
		job.Attempts++
		job.LastError = lastError
	})
}

func (s *Store) ResetStaleExports(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.exports {
		if s.exports[i].Status == storage.ExportProcessing {
			s.exports[i].Status = storage.ExportPending
			s.exports[i].UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *Store) CleanupCompletedExports(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.exports[:0]
	var removed int64
	for _, job := range s.exports {
		if job.Status == storage.ExportCompleted && job.UpdatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, job)
	}
	s.exports = kept
	return removed, nil
}

func (s *Store) RetryFailedExports(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.exports {
		if s.exports[i].Status == storage.ExportFailed {
			s.exports[i].Status = storage.ExportPending
			s.exports[i].Attempts = 0
			s.exports[i].UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *Store) ExportStats(_ context.Context) (storage.ExportStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats storage.ExportStats
	for _, job := range s.exports {
		switch job.Status {
		case storage.ExportPending:
			stats.Pending++
		case storage.ExportProcessing:
			stats.Processing++
		case storage.ExportCompleted:
			stats.Completed++
		case storage.ExportFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *Store) exportLocked(id int64) *storage.ExportJob {
	for i := range s.exports {
		if s.exports[i].ID == id {
			return &s.exports[i]
		}
	}
	return nil
}

func (s *Store) updateExport(id int64, fn func(*storage.ExportJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.exportLocked(id)
	if job == nil {
		return fmt.Errorf("export %d: %w", id, core.ErrNotFound)
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}
