package api

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"

	"github.com/goliatone/go-integrations/core"
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Category  string         `json:"category"`
	Code      int            `json:"code"`
	TextCode  string         `json:"text_code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Fields    []FieldError   `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

func errorHandler(logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		mapped := toEnvelope(err)
		body := ErrorBody{
			Category:  string(mapped.Category),
			Code:      mapped.Code,
			TextCode:  mapped.TextCode,
			Message:   mapped.Message,
			RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
			Metadata:  core.RedactSensitiveMap(mapped.Metadata),
		}
		for _, field := range mapped.AllValidationErrors() {
			body.Fields = append(body.Fields, FieldError{Field: field.Field, Message: field.Message})
		}

		if mapped.Code >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Path(), "error", err.Error())
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(mapped.Code)
			return
		}
		_ = c.JSON(mapped.Code, errorResponse{Error: body})
	}
}

// toEnvelope keeps echo's own routing errors (404, 405) at their status.
func toEnvelope(err error) *goerrors.Error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		category := goerrors.CategoryBadInput
		switch httpErr.Code {
		case http.StatusNotFound:
			category = goerrors.CategoryNotFound
		case http.StatusUnauthorized:
			category = goerrors.CategoryAuth
		case http.StatusForbidden:
			category = goerrors.CategoryAuthz
		case http.StatusTooManyRequests:
			category = goerrors.CategoryRateLimit
		}
		if httpErr.Code >= http.StatusInternalServerError {
			category = goerrors.CategoryInternal
		}
		return core.MapError(goerrors.New(fmt.Sprint(httpErr.Message), category).WithCode(httpErr.Code))
	}
	return core.MapError(err)
}
