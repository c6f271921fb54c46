package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/report"
)

// RunsHandler queues runs, resets and repairs for the worker and reports
// on finished runs.
type RunsHandler struct {
	runs   RunReader
	jobs   JobQueue
	queue  *processor.Queue
	logger *logrus.Logger
}

type RunRequest struct {
	IncludeRejected bool `json:"includeRejected"`
}

type JobResponse struct {
	JobID  string  `json:"jobId"`
	RunID  *string `json:"runId,omitempty"`
	Status string  `json:"status"`
}

type RunResponse struct {
	Run     *models.Run        `json:"run"`
	Summary *processor.Summary `json:"summary,omitempty"`
}

func NewRunsHandler(runs RunReader, jobs JobQueue, queue *processor.Queue, logger *logrus.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, jobs: jobs, queue: queue, logger: logger}
}

// EnqueueRun queues a reconciliation run. The run id is assigned up front
// so the caller can poll GET /runs/:id once the job completes.
func (h *RunsHandler) EnqueueRun(c echo.Context) error {
	var req RunRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, errInvalidBody.Error())
		}
	}
	runID := uuid.NewString()
	return h.enqueue(c, &models.Job{Kind: models.JobRun, RunID: &runID, IncludeRejected: req.IncludeRejected})
}

func (h *RunsHandler) EnqueueReset(c echo.Context) error {
	return h.enqueue(c, &models.Job{Kind: models.JobReset})
}

func (h *RunsHandler) EnqueueRepair(c echo.Context) error {
	return h.enqueue(c, &models.Job{Kind: models.JobRepair})
}

func (h *RunsHandler) enqueue(c echo.Context, job *models.Job) error {
	job.ID = uuid.NewString()
	if err := h.jobs.Enqueue(c.Request().Context(), job); err != nil {
		return respondError(c, h.logger, "enqueue", err)
	}
	h.logger.WithFields(logrus.Fields{"job": job.ID, "kind": job.Kind}).Info("job queued")
	return c.JSON(http.StatusAccepted, JobResponse{JobID: job.ID, RunID: job.RunID, Status: job.Status})
}

func (h *RunsHandler) GetJob(c echo.Context) error {
	job, err := h.jobs.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "GetJob", err)
	}
	return c.JSON(http.StatusOK, job)
}

func (h *RunsHandler) GetRun(c echo.Context) error {
	run, summary, err := h.load(c)
	if err != nil {
		return respondError(c, h.logger, "GetRun", err)
	}
	return c.JSON(http.StatusOK, RunResponse{Run: run, Summary: summary})
}

// ExportRun downloads the run as an Excel workbook with the review entries
// the run created.
func (h *RunsHandler) ExportRun(c echo.Context) error {
	run, summary, err := h.load(c)
	if err != nil {
		return respondError(c, h.logger, "ExportRun", err)
	}

	all, err := h.queue.List(c.Request().Context(), nil)
	if err != nil {
		return respondError(c, h.logger, "ExportRun", err)
	}
	var entries []models.AmbiguousMatch
	for _, m := range all {
		if m.RunID != nil && *m.RunID == run.ID {
			entries = append(entries, m)
		}
	}

	var buf bytes.Buffer
	if err := report.WriteRun(&buf, run, summary, entries); err != nil {
		return respondError(c, h.logger, "ExportRun", fmt.Errorf("failed to write report: %w", err))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="run-%s.xlsx"`, run.ID))
	return c.Blob(http.StatusOK, report.ContentType, buf.Bytes())
}

func (h *RunsHandler) load(c echo.Context) (*models.Run, *processor.Summary, error) {
	run, err := h.runs.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, nil, err
	}
	if run.Kind != models.RunKindReconcile || run.Status != processor.RunStatusCompleted || strings.TrimSpace(run.Summary) == "" {
		return run, nil, nil
	}
	summary, err := processor.SummaryFromRun(run)
	if err != nil {
		h.logger.WithError(err).WithField("run", run.ID).Warn("run summary unreadable")
		return run, nil, nil
	}
	return run, summary, nil
}
