package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/medcopilot/medcopilot/pkg/database"
	"github.com/medcopilot/medcopilot/pkg/orchestrator"
	"github.com/medcopilot/medcopilot/pkg/session"
	"github.com/medcopilot/medcopilot/pkg/storage"
)

// mapServiceError maps domain errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *orchestrator.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, database.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if errors.Is(err, orchestrator.ErrNotCancellable) || errors.Is(err, session.ErrAlreadyTerminal) {
		return echo.NewHTTPError(http.StatusConflict, "session is not in a cancellable state")
	}
	if errors.Is(err, session.ErrSessionActive) {
		return echo.NewHTTPError(http.StatusConflict, "session is still running")
	}
	if errors.Is(err, orchestrator.ErrShuttingDown) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is shutting down")
	}
	var maxErr *http.MaxBytesError
	if errors.Is(err, storage.ErrTooLarge) || errors.As(err, &maxErr) {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload exceeds maximum size")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
