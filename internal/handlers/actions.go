package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
)

// AmbiguousHandler serves the review queue: movements the engine could not
// settle on its own.
type AmbiguousHandler struct {
	queue  *processor.Queue
	logger *logrus.Logger
}

type ConfirmRequest struct {
	PayableID string `json:"payableId" validate:"required"`
}

type AmbiguousListResponse struct {
	Items []models.AmbiguousMatch `json:"items"`
	Count int                     `json:"count"`
}

func NewAmbiguousHandler(queue *processor.Queue, logger *logrus.Logger) *AmbiguousHandler {
	return &AmbiguousHandler{queue: queue, logger: logger}
}

var ambiguousStatuses = map[string]models.AmbiguousStatus{
	"pending":   models.AmbiguousPending,
	"confirmed": models.AmbiguousConfirmed,
	"rejected":  models.AmbiguousRejected,
}

// List returns review entries, pending ones unless ?status= says otherwise
// ("all" lists every entry).
func (h *AmbiguousHandler) List(c echo.Context) error {
	var filter *models.AmbiguousStatus
	switch s := c.QueryParam("status"); s {
	case "all":
	case "":
		pending := models.AmbiguousPending
		filter = &pending
	default:
		status, ok := ambiguousStatuses[s]
		if !ok {
			return badRequest(c, "invalid status filter")
		}
		filter = &status
	}

	items, err := h.queue.List(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, h.logger, "List", err)
	}
	if items == nil {
		items = []models.AmbiguousMatch{}
	}
	return c.JSON(http.StatusOK, AmbiguousListResponse{Items: items, Count: len(items)})
}

func (h *AmbiguousHandler) Get(c echo.Context) error {
	match, err := h.queue.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "Get", err)
	}
	return c.JSON(http.StatusOK, match)
}

// Confirm settles the movement with the chosen candidate.
func (h *AmbiguousHandler) Confirm(c echo.Context) error {
	var req ConfirmRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, "Confirm", err)
	}
	match, err := h.queue.Confirm(c.Request().Context(), c.Param("id"), req.PayableID)
	if err != nil {
		return respondError(c, h.logger, "Confirm", err)
	}
	return c.JSON(http.StatusOK, match)
}

func (h *AmbiguousHandler) Reject(c echo.Context) error {
	match, err := h.queue.Reject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "Reject", err)
	}
	return c.JSON(http.StatusOK, match)
}
