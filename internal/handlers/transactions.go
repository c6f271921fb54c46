package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

const (
	defaultMovementLimit = 200
	maxMovementLimit     = 1000
)

// MovementsHandler lists imported bank movements and their reconciliation
// state.
type MovementsHandler struct {
	movements MovementReader
	payables  PayableReader
	logger    *logrus.Logger
}

type MovementsResponse struct {
	Items []models.BankMovement `json:"items"`
	Total int                   `json:"total"`
}

func NewMovementsHandler(movements MovementReader, payables PayableReader, logger *logrus.Logger) *MovementsHandler {
	return &MovementsHandler{movements: movements, payables: payables, logger: logger}
}

var movementStatuses = map[string]bool{
	string(models.MovementUnreconciled):       true,
	string(models.MovementReconciledAuto):     true,
	string(models.MovementReconciledManual):   true,
	string(models.MovementCommissionExcluded): true,
}

// ListMovements supports ?importId=, ?status= and ?limit= (default 200,
// clamped to 1000). Total counts the filtered movements before the limit.
func (h *MovementsHandler) ListMovements(c echo.Context) error {
	status := c.QueryParam("status")
	if status != "" && status != "all" && !movementStatuses[status] {
		return badRequest(c, "invalid status filter")
	}

	limit := defaultMovementLimit
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return badRequest(c, "invalid limit")
		}
		limit = min(n, maxMovementLimit)
	}

	all, err := h.movements.List(c.Request().Context(), c.QueryParam("importId"))
	if err != nil {
		return respondError(c, h.logger, "ListMovements", err)
	}

	items := make([]models.BankMovement, 0, min(len(all), limit))
	total := 0
	for _, m := range all {
		if status != "" && status != "all" && string(m.Status) != status {
			continue
		}
		total++
		if len(items) < limit {
			items = append(items, m)
		}
	}
	return c.JSON(http.StatusOK, MovementsResponse{Items: items, Total: total})
}
