package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
)

// PayablesHandler lists invoices, payroll items and tax filings with their
// payment state.
type PayablesHandler struct {
	payables PayableReader
	logger   *logrus.Logger
}

type PayablesResponse struct {
	Items []models.Payable `json:"items"`
}

func NewPayablesHandler(payables PayableReader, logger *logrus.Logger) *PayablesHandler {
	return &PayablesHandler{payables: payables, logger: logger}
}

var payableKinds = map[string]bool{
	string(models.PayableInvoice):   true,
	string(models.PayablePayroll):   true,
	string(models.PayableTaxFiling): true,
}

// ListPayables filters by ?kind=, ?paid=true|false and ?q= (a substring of
// the counterparty or document number, case-insensitive).
func (h *PayablesHandler) ListPayables(c echo.Context) error {
	kind := c.QueryParam("kind")
	if kind != "" && !payableKinds[kind] {
		return badRequest(c, "invalid kind filter")
	}

	var paid *bool
	if s := c.QueryParam("paid"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return badRequest(c, "invalid paid filter")
		}
		paid = &b
	}

	q := strings.ToUpper(strings.TrimSpace(c.QueryParam("q")))
	if q != "" && len(q) < 2 {
		return badRequest(c, "search query must be at least 2 characters")
	}

	all, err := h.payables.List(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, "ListPayables", err)
	}

	items := make([]models.Payable, 0, len(all))
	for _, p := range all {
		if kind != "" && string(p.Kind) != kind {
			continue
		}
		if paid != nil && p.Paid != *paid {
			continue
		}
		if q != "" && !strings.Contains(strings.ToUpper(p.Counterparty), q) &&
			(p.Number == nil || !strings.Contains(strings.ToUpper(*p.Number), q)) {
			continue
		}
		items = append(items, p)
	}
	return c.JSON(http.StatusOK, PayablesResponse{Items: items})
}
