// Package sniff classifies uploaded bytes by magic signature.
// Classification never consults client-declared filenames or MIME headers.
package sniff

import (
	"bytes"
	"strings"
)

// HeadBudget is the number of leading bytes needed for classification.
// The ISO-BMFF "ftyp" brand box sits a few bytes past offset 4, and an SVG
// root element may follow a long XML prolog, so the budget is well past the
// deepest fixed-offset check.
const HeadBudget = 4100

// Kind is a byte-signature-derived content kind.
type Kind string

const (
	KindPNG     Kind = "png"
	KindJPEG    Kind = "jpeg"
	KindWEBP    Kind = "webp"
	KindAVIF    Kind = "avif"
	KindGIF     Kind = "gif"
	KindSVG     Kind = "svg"
	KindUnknown Kind = "unknown"
)

// Signature is the classification result for a head buffer.
type Signature struct {
	Kind  Kind
	Valid bool
}

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// Detect classifies a head buffer of up to HeadBudget bytes. Rules are
// evaluated in priority order and the first match wins; no match yields
// KindUnknown with Valid=false.
func Detect(head []byte) Signature {
	switch {
	case bytes.HasPrefix(head, pngMagic):
		return Signature{Kind: KindPNG, Valid: true}
	case bytes.HasPrefix(head, jpegMagic):
		return Signature{Kind: KindJPEG, Valid: true}
	case isWebP(head):
		return Signature{Kind: KindWEBP, Valid: true}
	case isAVIF(head):
		return Signature{Kind: KindAVIF, Valid: true}
	case bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a")):
		return Signature{Kind: KindGIF, Valid: true}
	case isSVG(head):
		return Signature{Kind: KindSVG, Valid: true}
	default:
		return Signature{Kind: KindUnknown, Valid: false}
	}
}

func isWebP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[0:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

// isAVIF checks the ISO-BMFF brand at bytes 4-11 ("ftypavif" still images,
// "ftypavis" sequences).
func isAVIF(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	brand := string(head[4:12])
	return strings.Contains(brand, "ftypavif") || strings.Contains(brand, "ftypavis")
}

func isSVG(head []byte) bool {
	return strings.Contains(strings.ToLower(string(head)), "<svg")
}

// MIME returns the canonical content type for a kind, or
// application/octet-stream for unclassified content.
func (k Kind) MIME() string {
	switch k {
	case KindPNG:
		return "image/png"
	case KindJPEG:
		return "image/jpeg"
	case KindWEBP:
		return "image/webp"
	case KindAVIF:
		return "image/avif"
	case KindGIF:
		return "image/gif"
	case KindSVG:
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
