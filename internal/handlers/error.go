package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixelrelay/pixelrelay/internal/pipeline"
)

// ErrorResponse is the standard API error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError converts a pipeline error into the JSON error body with its
// suggested status. Validation and signature rejections are user-facing and
// never logged as server faults; pipeline failures are logged with their
// cause while the caller only sees the generic message.
func respondError(c echo.Context, log *slog.Logger, err error) error {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		log.Error("unexpected handler error", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal error"})
	}
	if perr.Kind == pipeline.KindFailure {
		log.Error("pipeline failure",
			slog.String("message", perr.Message),
			slog.Any("cause", errors.Unwrap(perr)),
		)
	}
	return c.JSON(perr.Status, ErrorResponse{Error: perr.Message})
}
