package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

type MovementDetailResponse struct {
	Movement *models.BankMovement `json:"movement"`
	// Payable is the settled payable when the movement was matched to one.
	Payable *models.Payable `json:"payable,omitempty"`
}

func (h *MovementsHandler) GetMovement(c echo.Context) error {
	ctx := c.Request().Context()
	m, err := h.movements.Get(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, "GetMovement", err)
	}

	resp := MovementDetailResponse{Movement: m}
	if m.MatchTarget != nil && settlesPayable(m.MatchMethod) {
		p, err := h.payables.Get(ctx, *m.MatchTarget)
		switch {
		case err == nil:
			resp.Payable = p
		case errors.Is(err, models.ErrNotFound):
		default:
			return respondError(c, h.logger, "GetMovement", err)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func settlesPayable(method *models.MatchMethod) bool {
	if method == nil {
		return false
	}
	switch *method {
	case models.MethodReferenceAmount, models.MethodAmountUnique, models.MethodTaxPayment, models.MethodManual:
		return true
	}
	return false
}
