package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const jobColumns = `id, kind, import_id, file_path, include_rejected, status, attempts, last_error, run_id, created_at, updated_at`

// JobStore is the reconciliation_jobs queue polled by the worker.
type JobStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func (s *JobStore) Enqueue(ctx context.Context, job *models.Job) error {
	now := s.now().UTC()
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO reconciliation_jobs (`+jobColumns+`)
		VALUES (:id, :kind, :import_id, :file_path, :include_rejected, :status, :attempts, :last_error, :run_id, :created_at, :updated_at)`, job)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", job.Kind, err)
	}
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM reconciliation_jobs WHERE id = ?`)
	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context) ([]models.Job, error) {
	var out []models.Job
	if err := s.db.SelectContext(ctx, &out, `SELECT `+jobColumns+` FROM reconciliation_jobs ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return out, nil
}

// Claim takes the oldest queued job, or a processing job whose worker went
// quiet for longer than stale, and marks it processing. It returns nil when
// the queue is empty. On postgres concurrent workers skip each other's rows.
func (s *JobStore) Claim(ctx context.Context, stale time.Duration) (*models.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	query := `SELECT ` + jobColumns + ` FROM reconciliation_jobs
		WHERE status = ? OR (status = ? AND updated_at < ?)
		ORDER BY created_at, id
		LIMIT 1`
	if isPostgres(tx) {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var job models.Job
	err = tx.GetContext(ctx, &job, tx.Rebind(query), models.JobStatusQueued, models.JobStatusProcessing, now.Add(-stale))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE reconciliation_jobs
		SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ?`), models.JobStatusProcessing, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	job.Status = models.JobStatusProcessing
	job.Attempts++
	job.UpdatedAt = now
	return &job, nil
}

func (s *JobStore) Complete(ctx context.Context, id string, runID *string) error {
	query := s.db.Rebind(`UPDATE reconciliation_jobs SET status = ?, run_id = ?, updated_at = ? WHERE id = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query, models.JobStatusCompleted, runID, s.now().UTC(), id))
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Fail records the error and either re-queues the job or marks it failed.
func (s *JobStore) Fail(ctx context.Context, id string, msg string, requeue bool) error {
	status := models.JobStatusFailed
	if requeue {
		status = models.JobStatusQueued
	}
	query := s.db.Rebind(`UPDATE reconciliation_jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`)
	n, err := rowsAffected(s.db.ExecContext(ctx, query, status, msg, s.now().UTC(), id))
	if err != nil {
		return fmt.Errorf("failed to record job %s failure: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecoverStale re-queues processing jobs not touched for longer than stale.
func (s *JobStore) RecoverStale(ctx context.Context, stale time.Duration) (int, error) {
	now := s.now().UTC()
	query := s.db.Rebind(`UPDATE reconciliation_jobs SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`)
	return rowsAffected(s.db.ExecContext(ctx, query, models.JobStatusQueued, now, models.JobStatusProcessing, now.Add(-stale)))
}
