package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixelrelay/pixelrelay/internal/pipeline"
)

// UploadHandler serves POST /upload: converts the uploaded file and hands
// the output to the storage sink, returning its descriptor. It is only
// registered when the sink capability is configured.
type UploadHandler struct {
	pipeline      *pipeline.Pipeline
	defaultFormat string
	logger        *slog.Logger
}

// NewUploadHandler creates the upload handler.
func NewUploadHandler(log *slog.Logger, p *pipeline.Pipeline, defaultFormat string) *UploadHandler {
	return &UploadHandler{
		pipeline:      p,
		defaultFormat: defaultFormat,
		logger:        log.With(slog.String("handler", "upload")),
	}
}

// Register mounts POST /upload on the Echo instance.
func (h *UploadHandler) Register(e *echo.Echo) {
	e.POST("/upload", h.Upload)
}

// Upload godoc
// @Summary Convert an uploaded image and store it
// @Description Same conversion as /convert, but the output goes to the
// @Description object-storage sink and the response is its descriptor.
// @Tags convert
// @Accept multipart/form-data
// @Param file formData file true "Binary upload"
// @Param format formData string false "Target format (avif|webp|png|jpeg|svg)"
// @Param keepMetadata formData string false "Preserve metadata when set to 1"
// @Success 200 {object} pipeline.Descriptor
// @Failure 400 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /upload [post]
func (h *UploadHandler) Upload(c echo.Context) error {
	req, file, err := conversionRequest(c, h.defaultFormat)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	body, err := file.Open()
	if err != nil {
		return respondError(c, h.logger, fmt.Errorf("open upload: %w", err))
	}

	desc, err := h.pipeline.ConvertAndStore(c.Request().Context(), body, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, desc)
}
