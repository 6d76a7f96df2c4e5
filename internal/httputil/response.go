// Package httputil holds the JSON error envelope and query helpers shared by the
// order and notification handlers.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/orderflow/internal/errors"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty means err.Error() is shown to the client
}

var errorMappings = []errorMapping{
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found", "The requested resource was not found"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict", "A conflict occurred with existing data"},
	{apperrors.ErrInvalidInput, http.StatusUnprocessableEntity, "invalid_input", ""},
	{apperrors.ErrUnavailable, http.StatusServiceUnavailable, "unavailable", "A dependency is temporarily unavailable"},
}

var internalError = errorMapping{
	status:  http.StatusInternalServerError,
	code:    "internal_error",
	message: "An internal error occurred",
}

// HandleErrorGin writes the response for a use case error. Errors outside the
// apperrors sentinels become a 500 whose details are only logged.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	mapping := internalError
	for _, m := range errorMappings {
		if apperrors.Is(err, m.target) {
			mapping = m
			break
		}
	}

	message := mapping.message
	if message == "" {
		message = err.Error()
	}

	if logger != nil {
		logger.Error("request failed",
			slog.Int("status_code", mapping.status),
			slog.String("error_code", mapping.code),
			slog.Any("error", err),
		)
	}

	writeError(c, mapping.status, mapping.code, message)
}

// HandleBadRequestGin writes a 400 for a body or parameter that could not be decoded.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("bad request", slog.Any("error", err))
	}
	writeError(c, http.StatusBadRequest, "bad_request", err.Error())
}

// HandleValidationErrorGin writes a 422 for a request that decoded but failed validation.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("validation failed", slog.Any("error", err))
	}
	writeError(c, http.StatusUnprocessableEntity, "validation_error", err.Error())
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestid.Get(c),
	})
}
