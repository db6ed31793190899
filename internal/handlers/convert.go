package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixelrelay/pixelrelay/internal/pipeline"
)

// ConvertHandler serves POST /convert: one uploaded file in, a converted
// stream out.
type ConvertHandler struct {
	pipeline      *pipeline.Pipeline
	defaultFormat string
	logger        *slog.Logger
}

// NewConvertHandler creates the convert handler. defaultFormat is the token
// used when a request omits the format selector.
func NewConvertHandler(log *slog.Logger, p *pipeline.Pipeline, defaultFormat string) *ConvertHandler {
	return &ConvertHandler{
		pipeline:      p,
		defaultFormat: defaultFormat,
		logger:        log.With(slog.String("handler", "convert")),
	}
}

// Register mounts POST /convert on the Echo instance.
func (h *ConvertHandler) Register(e *echo.Echo) {
	e.POST("/convert", h.Convert)
}

// Convert godoc
// @Summary Convert an uploaded image
// @Description Accepts one file field, classifies it by byte signature, and
// @Description streams back the converted output. The client-declared MIME
// @Description type and filename are ignored.
// @Tags convert
// @Accept multipart/form-data
// @Param file formData file true "Binary upload"
// @Param format formData string false "Target format (avif|webp|png|jpeg|svg)"
// @Param keepMetadata formData string false "Preserve metadata when set to 1"
// @Success 200 {file} binary "Converted stream"
// @Failure 400 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /convert [post]
func (h *ConvertHandler) Convert(c echo.Context) error {
	req, file, err := conversionRequest(c, h.defaultFormat)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	body, err := file.Open()
	if err != nil {
		return respondError(c, h.logger, fmt.Errorf("open upload: %w", err))
	}

	ctx := c.Request().Context()
	result, err := h.pipeline.Convert(ctx, body, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	// Client disconnect tears the streams down; normal completion does the
	// same through the deferred call. Cleanup is idempotent, so the two
	// paths cannot double-release.
	stop := context.AfterFunc(ctx, result.Cleanup)
	defer stop()
	defer result.Cleanup()

	c.Response().Header().Set(echo.HeaderContentType, result.ContentType)
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("inline; filename=%q", req.Format.Filename()))
	c.Response().WriteHeader(http.StatusOK)
	if _, err := io.Copy(c.Response().Writer, result.Output); err != nil {
		// Headers are already out; the connection just terminates.
		h.logger.Warn("convert stream interrupted", slog.Any("error", err))
	}
	return nil
}

// conversionRequest parses and validates request parameters. The format
// token is validated before the file field is touched, so a bad token never
// costs stream I/O.
func conversionRequest(c echo.Context, defaultFormat string) (pipeline.Request, *multipart.FileHeader, error) {
	token := c.FormValue("format")
	if token == "" {
		token = defaultFormat
	}
	keepMetadata := c.FormValue("keepMetadata") == "1"

	req, err := pipeline.NewRequest(token, keepMetadata)
	if err != nil {
		return pipeline.Request{}, nil, err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return pipeline.Request{}, nil, &pipeline.Error{
			Kind:    pipeline.KindValidation,
			Message: "No file uploaded",
			Status:  http.StatusBadRequest,
		}
	}
	return req, file, nil
}
