package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/KaramelBytes/sheetask/internal/assistant"
	"github.com/KaramelBytes/sheetask/internal/chart"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/interpret"
	"github.com/KaramelBytes/sheetask/internal/mediator"
	"github.com/KaramelBytes/sheetask/internal/session"
	"github.com/KaramelBytes/sheetask/internal/transform"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(status int, code, message string, cause error) *APIError {
	e := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewBadRequestError creates a 400 error.
func NewBadRequestError(message string, cause error) *APIError {
	return newError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError creates a 400 error for one request field.
func NewValidationError(field string) *APIError {
	return newError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("validation failed for field: %s", field), nil)
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(resource, id string) *APIError {
	return newError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found: %s", resource, id), nil)
}

// NewConflictError creates a 409 error.
func NewConflictError(message string) *APIError {
	return newError(http.StatusConflict, "CONFLICT", message, nil)
}

// NewInternalError creates a 500 error.
func NewInternalError(message string, cause error) *APIError {
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

// toAPIError maps domain errors onto response codes.
func toAPIError(err error) *APIError {
	var (
		apiErr   *APIError
		httpErr  *echo.HTTPError
		upErr    *dataset.UploadError
		orErr    *mediator.OracleError
		bigErr   *mediator.PromptTooLargeError
		parseErr *interpret.ParseError
		schErr   *interpret.SchemaError
		typeErr  *chart.UnsupportedTypeError
		colErr   *chart.ColumnError
		buildErr *chart.BuildError
		execErr  *transform.ExecutionError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &httpErr):
		return &APIError{Status: httpErr.Code, Code: "HTTP_ERROR", Message: fmt.Sprintf("%v", httpErr.Message)}
	case errors.As(err, &upErr):
		return newError(http.StatusBadRequest, "UPLOAD_ERROR", "could not read the uploaded file", upErr)
	case errors.Is(err, mediator.ErrEmptyQuery):
		return newError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.As(err, &bigErr):
		return newError(http.StatusUnprocessableEntity, "PROMPT_TOO_LARGE", "dataset is too large for the configured model", bigErr)
	case errors.As(err, &orErr):
		return newError(http.StatusBadGateway, "ORACLE_ERROR", "the language model request failed, please retry", orErr)
	case errors.As(err, &parseErr):
		return newError(http.StatusUnprocessableEntity, "CHART_PARSE_ERROR", "the model did not return chart JSON", parseErr)
	case errors.As(err, &schErr):
		return newError(http.StatusUnprocessableEntity, "INVALID_CHART_DATA", "invalid chart data", schErr)
	case errors.As(err, &typeErr):
		return newError(http.StatusUnprocessableEntity, "UNSUPPORTED_CHART", typeErr.Error(), nil)
	case errors.As(err, &colErr):
		return newError(http.StatusUnprocessableEntity, "CHART_COLUMN_ERROR", colErr.Error(), nil)
	case errors.As(err, &buildErr):
		return newError(http.StatusUnprocessableEntity, "CHART_ERROR", "the chart could not be built from the model's description", buildErr)
	case errors.As(err, &execErr):
		return newError(http.StatusUnprocessableEntity, "EXECUTION_ERROR", "the modification could not be applied", execErr)
	case errors.Is(err, assistant.ErrNoPlan):
		return newError(http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, session.ErrBusy):
		return NewConflictError(err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrNoModification):
		return newError(http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, session.ErrCapacity):
		return newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", err.Error(), nil)
	}
	return &APIError{Status: http.StatusInternalServerError, Code: "UNKNOWN_ERROR", Message: "An unexpected error occurred"}
}

// NewErrorHandler returns an echo.HTTPErrorHandler writing APIError bodies.
func NewErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		apiErr := toAPIError(err)
		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.String("code", apiErr.Code),
				zap.Error(err),
			)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		_ = c.JSON(apiErr.Status, apiErr)
	}
}
