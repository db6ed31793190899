// Package policy holds the static output-format table: which format tokens a
// request may ask for, the response content type for each, and the encoder
// options handed to the transformer.
package policy

import (
	"fmt"
	"strings"

	"github.com/pixelrelay/pixelrelay/internal/sniff"
)

// Format is a validated output-format token.
type Format string

const (
	FormatAVIF Format = "avif"
	FormatWEBP Format = "webp"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatSVG  Format = "svg"
)

// DefaultFormat is used when a request omits the format selector.
const DefaultFormat = FormatWEBP

// EncodeOptions carries the per-format transformer parameters. Zero fields
// are meaningful only where the entry says so (e.g. Effort is unused for PNG).
type EncodeOptions struct {
	Quality           int
	Effort            int
	CompressionLevel  int
	AdaptiveFiltering bool
	// MozJPEG selects the high-quality JPEG codec variant.
	MozJPEG bool
}

type entry struct {
	contentType string
	options     EncodeOptions
	// passthrough entries carry no encoder options; the input bytes are
	// forwarded unmodified.
	passthrough bool
}

var table = map[Format]entry{
	FormatAVIF: {contentType: "image/avif", options: EncodeOptions{Quality: 50, Effort: 4}},
	FormatWEBP: {contentType: "image/webp", options: EncodeOptions{Quality: 80, Effort: 4}},
	FormatPNG:  {contentType: "image/png", options: EncodeOptions{CompressionLevel: 9, AdaptiveFiltering: true}},
	FormatJPEG: {contentType: "image/jpeg", options: EncodeOptions{Quality: 82, MozJPEG: true}},
	FormatSVG:  {contentType: "image/svg+xml", passthrough: true},
}

// Resolve validates a raw format token (case-insensitive) against the table.
// An empty token resolves to DefaultFormat. The error for an unknown token
// is user-facing.
func Resolve(token string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if normalized == "" {
		return DefaultFormat, nil
	}
	f := Format(normalized)
	if _, ok := table[f]; !ok {
		return "", fmt.Errorf("unsupported format %q", normalized)
	}
	return f, nil
}

// ContentType returns the response content type for the format.
func (f Format) ContentType() string {
	return table[f].contentType
}

// Options returns the transformer options for the format. Passthrough
// formats have none.
func (f Format) Options() EncodeOptions {
	return table[f].options
}

// Passthrough reports whether the format forwards input bytes unmodified
// instead of re-encoding.
func (f Format) Passthrough() bool {
	return table[f].passthrough
}

// Filename is the suggested download filename for a converted response.
func (f Format) Filename() string {
	return "converted." + string(f)
}

// AcceptsInput reports whether an input of the given signature kind may be
// converted to this format. SVG output is passthrough-only and therefore
// requires SVG input; every raster target accepts any recognized input.
func (f Format) AcceptsInput(kind sniff.Kind) bool {
	if f == FormatSVG {
		return kind == sniff.KindSVG
	}
	return true
}
