// Package worker polls the job queue and runs statement imports,
// reconciliation runs, resets and repairs one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/logging"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/statement"
)

// Queue is the persisted job queue.
type Queue interface {
	Claim(ctx context.Context, stale time.Duration) (*models.Job, error)
	Complete(ctx context.Context, id string, runID *string) error
	Fail(ctx context.Context, id string, msg string, requeue bool) error
	RecoverStale(ctx context.Context, stale time.Duration) (int, error)
}

// Engine is the reconciliation engine as the worker drives it.
type Engine interface {
	Run(ctx context.Context, opts processor.Options) (*processor.Summary, error)
	Reset(ctx context.Context) (*processor.ResetSummary, error)
	Repair(ctx context.Context) (*processor.RepairSummary, error)
}

type Importer interface {
	ImportFile(ctx context.Context, importID, path string) (*statement.Result, error)
}

type Worker struct {
	queue    Queue
	engine   Engine
	importer Importer
	logger   *logrus.Logger

	PollInterval   time.Duration
	StaleThreshold time.Duration
	MaxAttempts    int
}

func New(queue Queue, engine Engine, importer Importer, cfg config.WorkerConfig, logger *logrus.Logger) *Worker {
	w := &Worker{
		queue:          queue,
		engine:         engine,
		importer:       importer,
		logger:         logger,
		PollInterval:   cfg.PollInterval,
		StaleThreshold: cfg.StaleThreshold,
		MaxAttempts:    cfg.MaxAttempts,
	}
	if w.PollInterval <= 0 {
		w.PollInterval = time.Second
	}
	if w.StaleThreshold <= 0 {
		w.StaleThreshold = 10 * time.Minute
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	return w
}

// Start polls until ctx is cancelled. A job already running is finished
// before Start returns.
func (w *Worker) Start(ctx context.Context) {
	w.logger.WithFields(logrus.Fields{
		"poll_interval":   w.PollInterval,
		"stale_threshold": w.StaleThreshold,
		"max_attempts":    w.MaxAttempts,
	}).Info("worker started")

	if n, err := w.queue.RecoverStale(ctx, w.StaleThreshold); err != nil {
		w.logger.WithError(err).Warn("failed to recover stale jobs")
	} else if n > 0 {
		w.logger.WithField("count", n).Info("recovered stale jobs")
	}

	for {
		worked, err := w.ProcessNext(context.WithoutCancel(ctx))
		if err != nil {
			w.logger.WithError(err).Error("error claiming job")
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		case <-time.After(w.PollInterval):
		}
	}
}

// ProcessNext claims and processes one job. It reports whether a job was
// processed; a job put back because the run lock is held does not count, so
// the poll loop waits before claiming it again.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Claim(ctx, w.StaleThreshold)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	startTime := time.Now()
	log := w.logger.WithFields(logrus.Fields{"job": job.ID, "kind": job.Kind, "attempt": job.Attempts})
	log.Info("processing job")

	runID, err := w.process(ctx, job)
	duration := time.Since(startTime)

	if err != nil {
		requeue := errors.Is(err, models.ErrRunInProgress) || job.Attempts < w.MaxAttempts
		logging.LogError(w.logger, "worker", "ProcessNext", "job failed", map[string]interface{}{
			"job": job.ID, "kind": job.Kind, "requeue": requeue, "duration": duration.String(),
		}, err)
		if ferr := w.queue.Fail(ctx, job.ID, err.Error(), requeue); ferr != nil {
			log.WithError(ferr).Error("failed to record job failure")
		}
		return !errors.Is(err, models.ErrRunInProgress), nil
	}

	if err := w.queue.Complete(ctx, job.ID, runID); err != nil {
		log.WithError(err).Error("failed to complete job")
		return true, nil
	}
	log.WithField("duration", duration.String()).Info("job completed")
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *models.Job) (*string, error) {
	switch job.Kind {
	case models.JobImport:
		return w.importStatement(ctx, job)
	case models.JobRun:
		opts := processor.Options{IncludeRejected: job.IncludeRejected}
		if job.RunID != nil {
			opts.RunID = *job.RunID
		}
		summary, err := w.engine.Run(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &summary.RunID, nil
	case models.JobReset:
		rs, err := w.engine.Reset(ctx)
		if err != nil {
			return nil, err
		}
		return &rs.RunID, nil
	case models.JobRepair:
		rs, err := w.engine.Repair(ctx)
		if err != nil {
			return nil, err
		}
		return &rs.RunID, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// importStatement loads the uploaded file and reconciles right away, so an
// upload ends with its movements matched. The import stands even when the
// run cannot start because another one holds the lock.
func (w *Worker) importStatement(ctx context.Context, job *models.Job) (*string, error) {
	if job.ImportID == nil || job.FilePath == nil {
		return nil, errors.New("import job without import id or file path")
	}
	res, err := w.importer.ImportFile(ctx, *job.ImportID, *job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("import failed: %w", err)
	}
	if res.Inserted == 0 {
		return nil, nil
	}

	summary, err := w.engine.Run(ctx, processor.Options{})
	if errors.Is(err, models.ErrRunInProgress) {
		w.logger.WithField("import", *job.ImportID).Warn("run in progress, imported movements wait for the next run")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconciliation after import failed: %w", err)
	}
	return &summary.RunID, nil
}
