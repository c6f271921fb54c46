package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

var statementExtensions = map[string]bool{".csv": true, ".txt": true, ".xlsx": true}

type UploadHandler struct {
	imports   ImportRecorder
	jobs      JobQueue
	uploadDir string
	maxSize   int64
	logger    *logrus.Logger
}

type UploadResponse struct {
	ImportID string `json:"importId"`
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
}

func NewUploadHandler(imports ImportRecorder, jobs JobQueue, cfg config.ServerConfig, logger *logrus.Logger) *UploadHandler {
	maxSize := cfg.MaxUploadBytes
	if maxSize <= 0 {
		maxSize = 20 << 20
	}
	return &UploadHandler{
		imports:   imports,
		jobs:      jobs,
		uploadDir: cfg.UploadDir,
		maxSize:   maxSize,
		logger:    logger,
	}
}

// Upload stores a bank statement and queues its import. The worker parses
// the file and reconciles the new movements.
func (h *UploadHandler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "no file provided")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !statementExtensions[ext] {
		return badRequest(c, "file must be a CSV or XLSX bank statement")
	}
	if file.Size > h.maxSize {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxSize),
		})
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, h.logger, "Upload", fmt.Errorf("failed to open uploaded file: %w", err))
	}
	defer src.Close()

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return respondError(c, h.logger, "Upload", fmt.Errorf("failed to create upload directory: %w", err))
	}

	importID := uuid.NewString()
	path := filepath.Join(h.uploadDir, importID+ext)
	dst, err := os.Create(path)
	if err != nil {
		return respondError(c, h.logger, "Upload", fmt.Errorf("failed to create file: %w", err))
	}
	written, err := io.Copy(dst, src)
	dst.Close()
	if err != nil {
		os.Remove(path)
		return respondError(c, h.logger, "Upload", fmt.Errorf("failed to write file: %w", err))
	}
	if written == 0 {
		os.Remove(path)
		return badRequest(c, "file is empty")
	}

	ctx := c.Request().Context()
	rec := &models.StatementImport{ID: importID, Filename: file.Filename, CreatedAt: time.Now().UTC()}
	if err := h.imports.CreateImport(ctx, rec); err != nil {
		os.Remove(path)
		return respondError(c, h.logger, "Upload", err)
	}

	job := &models.Job{ID: uuid.NewString(), Kind: models.JobImport, ImportID: &importID, FilePath: &path}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		os.Remove(path)
		return respondError(c, h.logger, "Upload", err)
	}

	h.logger.WithFields(logrus.Fields{
		"import":   importID,
		"job":      job.ID,
		"filename": file.Filename,
		"bytes":    written,
	}).Info("statement uploaded")

	return c.JSON(http.StatusCreated, UploadResponse{
		ImportID: importID,
		JobID:    job.ID,
		Status:   job.Status,
	})
}
