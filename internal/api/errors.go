package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/tabulate/internal/database"
	"github.com/fluxbase-eu/tabulate/internal/middleware"
	"github.com/fluxbase-eu/tabulate/internal/observability"
	"github.com/fluxbase-eu/tabulate/internal/query"
)

// Error codes for failures that do not come from the query package
const (
	CodeResourceNotFound = "RESOURCE_NOT_FOUND"
	CodeInvalidQuery     = "INVALID_QUERY"
	CodeInvalidColumn    = "INVALID_COLUMN"
	CodeInvalidValue     = "INVALID_VALUE"
	CodeQueryTimeout     = "QUERY_TIMEOUT"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SendError sends an error response carrying the request ID
func SendError(c *fiber.Ctx, statusCode int, errMsg, code, message string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:     errMsg,
		Code:      code,
		Message:   message,
		RequestID: middleware.RequestID(c),
	})
}

// requestError is a failure whose response is already decided
type requestError struct {
	status  int
	err     string
	code    string
	message string
}

func (e *requestError) Error() string {
	return e.message
}

// handleListingError maps a tabulation or query failure to a response.
// Client input problems are 400s; everything else is logged and hidden.
func handleListingError(c *fiber.Ctx, resource string, err error) error {
	var clientErr query.ClientError
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return SendError(c, reqErr.status, reqErr.err, reqErr.code, reqErr.message)

	case errors.As(err, &clientErr):
		log.Warn().
			Str("resource", resource).
			Str("code", clientErr.Code()).
			Str("request_id", middleware.RequestID(c)).
			Msg(clientErr.Error())
		return SendError(c, fiber.StatusBadRequest, "Invalid listing parameters", clientErr.Code(), clientErr.Error())

	case database.IsUndefinedColumn(err):
		log.Warn().Err(err).Str("resource", resource).Msg("Listing referenced an unknown column")
		return SendError(c, fiber.StatusBadRequest, "Invalid listing parameters", CodeInvalidColumn,
			"A filter or sort refers to a column that does not exist")

	case database.IsInvalidInput(err):
		log.Warn().Err(err).Str("resource", resource).Msg("Database rejected a listing value")
		return SendError(c, fiber.StatusBadRequest, "Invalid listing parameters", CodeInvalidValue,
			"A filter value does not match its column type")

	case errors.Is(err, context.DeadlineExceeded) || database.IsCanceled(err):
		log.Error().Err(err).Str("resource", resource).Msg("Listing query timed out")
		return SendError(c, fiber.StatusGatewayTimeout, "Query timed out", CodeQueryTimeout, "")
	}

	log.Error().
		Err(err).
		Str("resource", resource).
		Str("request_id", middleware.RequestID(c)).
		Str("trace_id", observability.TraceID(c.UserContext())).
		Msg("Listing failed")
	return SendError(c, fiber.StatusInternalServerError, "Internal Server Error", CodeInternal, "")
}

// customErrorHandler renders errors that escape the handlers, including
// fiber's own 404 and 405 responses.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:     message,
		RequestID: middleware.RequestID(c),
	})
}
