// Package transform is the built-in Transformer capability over in-process
// image codecs. It exists so the relay runs out of the box; deployments with
// an external transcoding engine swap it at wiring time. Decoding covers
// PNG, JPEG, GIF, and WEBP; encoding covers PNG, JPEG, and WEBP (lossless).
// AVIF has no in-process encoder, so the codec reports it unsupported and
// the pipeline rejects such requests up front.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"

	"github.com/HugoSmits86/nativewebp"
	_ "golang.org/x/image/webp"

	"github.com/pixelrelay/pixelrelay/internal/logger"
	"github.com/pixelrelay/pixelrelay/internal/pipeline"
	"github.com/pixelrelay/pixelrelay/internal/policy"
)

// Codec implements pipeline.Transformer with in-process decode/encode.
type Codec struct {
	logger *slog.Logger
}

// New creates the built-in codec transformer.
func New(log *slog.Logger) *Codec {
	return &Codec{logger: logger.Component(log, "transform")}
}

// CanEncode reports whether the codec has an encoder for the format.
func (c *Codec) CanEncode(format policy.Format) bool {
	switch format {
	case policy.FormatPNG, policy.FormatJPEG, policy.FormatWEBP:
		return true
	default:
		return false
	}
}

// Transform decodes the full input stream, normalizes EXIF orientation, and
// re-encodes in the target format. In-process codecs carry no metadata
// through re-encoding, so output is always stripped; KeepMetadata is honored
// by engines that support it and is a no-op here.
func (c *Codec) Transform(ctx context.Context, input io.Reader, opts pipeline.TransformOptions) (io.ReadCloser, error) {
	if !c.CanEncode(opts.Format) {
		return nil, fmt.Errorf("transform: no built-in encoder for %s", opts.Format)
	}
	// Decoding needs the whole stream; keep the bytes so the EXIF segment
	// can be read independently of the pixel decode.
	data, err := io.ReadAll(input)
	if err != nil {
		return nil, fmt.Errorf("transform: read input: %w", err)
	}
	img, sourceFormat, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("transform: decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sourceFormat == "jpeg" {
		img = reorient(img, orientationOf(data))
	}

	var buf bytes.Buffer
	switch opts.Format {
	case policy.FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		err = encoder.Encode(&buf, img)
	case policy.FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Encode.Quality})
	case policy.FormatWEBP:
		err = nativewebp.Encode(&buf, img, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("transform: encode %s: %w", opts.Format, err)
	}

	c.logger.Debug("transformed",
		slog.String("from", sourceFormat),
		slog.String("to", string(opts.Format)),
		slog.Int("bytes", buf.Len()),
	)
	return io.NopCloser(&buf), nil
}
