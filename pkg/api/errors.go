package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/carelane/carelane/pkg/diarystore"
	"github.com/carelane/carelane/pkg/queue"
)

// mapServiceError maps store and queue errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	if errors.Is(err, diarystore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient diary not found")
	}
	if errors.Is(err, diarystore.ErrConcurrentModification) {
		return echo.NewHTTPError(http.StatusConflict, "diary was modified concurrently")
	}
	if errors.Is(err, queue.ErrMissingPatientID) {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	if errors.Is(err, queue.ErrManagerStopped) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event intake is shutting down")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
