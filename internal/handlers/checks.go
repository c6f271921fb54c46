package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

// ChecksHandler drives the checkbook: batches of blank checks and the
// manual lifecycle events. Clearing happens only through reconciliation.
type ChecksHandler struct {
	service *checks.Service
	logger  *logrus.Logger
}

type BatchResponse struct {
	Checks []models.Check `json:"checks"`
}

type FillRequest struct {
	Beneficiary string          `json:"beneficiary" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	PayableID   *string         `json:"payableId"`
}

type IssueRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

func NewChecksHandler(service *checks.Service, logger *logrus.Logger) *ChecksHandler {
	return &ChecksHandler{service: service, logger: logger}
}

// CreateBatch creates count blank checks numbered from start. The batch is
// all or nothing: 409 lists every number that already exists.
func (h *ChecksHandler) CreateBatch(c echo.Context) error {
	var req checks.BatchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, "CreateBatch", err)
	}
	batch, err := h.service.CreateBatch(c.Request().Context(), req)
	if err != nil {
		return respondError(c, h.logger, "CreateBatch", err)
	}
	return c.JSON(http.StatusCreated, BatchResponse{Checks: batch})
}

func (h *ChecksHandler) Get(c echo.Context) error {
	check, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "Get", err)
	}
	return c.JSON(http.StatusOK, check)
}

func (h *ChecksHandler) Fill(c echo.Context) error {
	var req FillRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, "Fill", err)
	}
	if !req.Amount.IsPositive() {
		return badRequest(c, "amount must be positive")
	}
	check, err := h.service.Fill(c.Request().Context(), c.Param("id"), req.Beneficiary, req.Amount, req.PayableID)
	if err != nil {
		return respondError(c, h.logger, "Fill", err)
	}
	return c.JSON(http.StatusOK, check)
}

func (h *ChecksHandler) Issue(c echo.Context) error {
	var req IssueRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, "Issue", err)
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return badRequest(c, "invalid date")
	}
	check, err := h.service.Issue(c.Request().Context(), c.Param("id"), date)
	if err != nil {
		return respondError(c, h.logger, "Issue", err)
	}
	return c.JSON(http.StatusOK, check)
}

func (h *ChecksHandler) Void(c echo.Context) error {
	check, err := h.service.Void(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "Void", err)
	}
	return c.JSON(http.StatusOK, check)
}

func (h *ChecksHandler) Expire(c echo.Context) error {
	check, err := h.service.Expire(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "Expire", err)
	}
	return c.JSON(http.StatusOK, check)
}
