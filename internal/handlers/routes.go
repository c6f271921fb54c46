// Package handlers exposes the reconciliation engine over HTTP: statement
// uploads, queued runs, the review queue and the checkbook.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/config"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
)

type MovementReader interface {
	List(ctx context.Context, importID string) ([]models.BankMovement, error)
	Get(ctx context.Context, id string) (*models.BankMovement, error)
}

type PayableReader interface {
	List(ctx context.Context) ([]models.Payable, error)
	Get(ctx context.Context, id string) (*models.Payable, error)
}

type RunReader interface {
	GetRun(ctx context.Context, id string) (*models.Run, error)
}

type ImportRecorder interface {
	CreateImport(ctx context.Context, rec *models.StatementImport) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

// Deps are the collaborators behind the API.
type Deps struct {
	Movements MovementReader
	Payables  PayableReader
	Runs      RunReader
	Imports   ImportRecorder
	Jobs      JobQueue
	Queue     *processor.Queue
	Checks    *checks.Service
	Server    config.ServerConfig
	Logger    *logrus.Logger
}

// NewServer builds the echo instance with middleware and every route.
func NewServer(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewRequestValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := d.Logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	upload := NewUploadHandler(d.Imports, d.Jobs, d.Server, d.Logger)
	runs := NewRunsHandler(d.Runs, d.Jobs, d.Queue, d.Logger)
	movements := NewMovementsHandler(d.Movements, d.Payables, d.Logger)
	payables := NewPayablesHandler(d.Payables, d.Logger)
	ambiguous := NewAmbiguousHandler(d.Queue, d.Logger)
	checkbook := NewChecksHandler(d.Checks, d.Logger)

	api := e.Group("/api")

	api.POST("/statements", upload.Upload)

	api.POST("/runs", runs.EnqueueRun)
	api.GET("/runs/:id", runs.GetRun)
	api.GET("/runs/:id/export", runs.ExportRun)
	api.POST("/reset", runs.EnqueueReset)
	api.POST("/repair", runs.EnqueueRepair)
	api.GET("/jobs/:id", runs.GetJob)

	api.GET("/movements", movements.ListMovements)
	api.GET("/movements/:id", movements.GetMovement)
	api.GET("/payables", payables.ListPayables)

	api.GET("/ambiguous", ambiguous.List)
	api.GET("/ambiguous/:id", ambiguous.Get)
	api.POST("/ambiguous/:id/confirm", ambiguous.Confirm)
	api.POST("/ambiguous/:id/reject", ambiguous.Reject)

	api.POST("/checks/batches", checkbook.CreateBatch)
	api.GET("/checks/:id", checkbook.Get)
	api.POST("/checks/:id/fill", checkbook.Fill)
	api.POST("/checks/:id/issue", checkbook.Issue)
	api.POST("/checks/:id/void", checkbook.Void)
	api.POST("/checks/:id/expire", checkbook.Expire)

	return e
}
