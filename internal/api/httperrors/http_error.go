package httperrors

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPError is the JSON error body every handler returns on failure.
type HTTPError struct {
	Code   int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Error type identifiers exposed to clients.
const (
	TypeGeneric      = "generic"
	TypeInvalidBody  = "invalid_request_body"
	TypeChainFailure = "chain_failure"
)

// NewHTTPError creates an error with the given status, type and title.
func NewHTTPError(code int, errorType, title string) *HTTPError {
	return &HTTPError{Code: code, Type: errorType, Title: title}
}

// WithDetail attaches a detail string and returns the error.
func (e *HTTPError) WithDetail(detail string) *HTTPError {
	e.Detail = detail
	return e
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

// Send writes the error as the response.
func (e *HTTPError) Send(c echo.Context) error {
	return c.JSON(e.Code, e)
}

var (
	ErrBadRequestInvalidBody = NewHTTPError(http.StatusBadRequest, TypeInvalidBody, "Request body could not be parsed.")
)
