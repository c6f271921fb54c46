package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/checks"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/logging"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/models"
	"github.com/ceraldicontabilita/definitivo-16-1-2025-sub000/internal/processor"
)

// RequestValidator plugs go-playground/validator into echo. Field errors
// are reported under their JSON names.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func validationErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

// bindAndValidate decodes the request body into req and runs its
// validate tags.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errInvalidBody
	}
	return c.Validate(req)
}

var errInvalidBody = errors.New("invalid request body")

// respondError maps domain errors to HTTP statuses. Anything unexpected is
// logged and reported as 500 without details.
func respondError(c echo.Context, logger *logrus.Logger, funcName string, err error) error {
	var (
		verrs      validator.ValidationErrors
		duplicate  *checks.DuplicateBatchError
		transition *checks.InvalidTransitionError
	)

	switch {
	case errors.Is(err, errInvalidBody):
		return badRequest(c, err.Error())
	case errors.As(err, &verrs):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"fields": validationErrors(verrs),
		})
	case errors.Is(err, checks.ErrInvalidBatch):
		return badRequest(c, err.Error())
	case errors.Is(err, models.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &duplicate):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":     duplicate.Error(),
			"conflicts": duplicate.Conflicts,
		})
	case errors.Is(err, models.ErrAlreadyResolved),
		errors.Is(err, models.ErrAlreadyPaid),
		errors.Is(err, models.ErrAlreadyReconciled),
		errors.Is(err, models.ErrRunInProgress):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &transition), errors.Is(err, processor.ErrNotCandidate):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}

	logging.LogError(logger, "handlers", funcName, c.Request().URL.Path, nil, err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
