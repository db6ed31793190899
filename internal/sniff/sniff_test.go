package sniff

import (
	"bytes"
	"testing"
)

func avifFixture(brand string) []byte {
	buf := []byte{0x00, 0x00, 0x00, 0x20}
	buf = append(buf, []byte(brand)...)
	return append(buf, make([]byte, 24)...)
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want Kind
	}{
		{
			name: "png",
			head: append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, 0x00, 0x00),
			want: KindPNG,
		},
		{
			name: "jpeg",
			head: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10},
			want: KindJPEG,
		},
		{
			name: "webp",
			head: []byte("RIFF\x24\x00\x00\x00WEBPVP8 "),
			want: KindWEBP,
		},
		{
			name: "avif still",
			head: avifFixture("ftypavif"),
			want: KindAVIF,
		},
		{
			name: "avif sequence",
			head: avifFixture("ftypavis"),
			want: KindAVIF,
		},
		{
			name: "gif87a",
			head: []byte("GIF87a\x01\x00\x01\x00"),
			want: KindGIF,
		},
		{
			name: "gif89a",
			head: []byte("GIF89a\x01\x00\x01\x00"),
			want: KindGIF,
		},
		{
			name: "svg",
			head: []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`),
			want: KindSVG,
		},
		{
			name: "svg uppercase",
			head: []byte(`<SVG viewBox="0 0 1 1"/>`),
			want: KindSVG,
		},
		{
			name: "svg after long prolog",
			head: append(bytes.Repeat([]byte("<!-- padding -->"), 64), []byte("<svg/>")...),
			want: KindSVG,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Detect(tc.head)
			if got.Kind != tc.want || !got.Valid {
				t.Fatalf("Detect() = %+v, want kind %q valid", got, tc.want)
			}
		})
	}
}

func TestDetectUnknown(t *testing.T) {
	cases := []struct {
		name string
		head []byte
	}{
		{name: "plain text", head: []byte("hello, this is not an image at all")},
		{name: "empty", head: nil},
		{name: "short riff", head: []byte("RIFF")},
		{name: "riff but not webp", head: []byte("RIFF\x24\x00\x00\x00WAVEfmt ")},
		{name: "jpeg two bytes only", head: []byte{0xFF, 0xD8}},
		{name: "ftyp other brand", head: avifFixture("ftypisom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Detect(tc.head)
			if got.Valid || got.Kind != KindUnknown {
				t.Fatalf("Detect() = %+v, want unknown/invalid", got)
			}
		})
	}
}

func TestDetectPriorityOrder(t *testing.T) {
	// A PNG-signed buffer that also contains "<svg" must classify as PNG:
	// fixed-offset rules run before the whole-buffer SVG scan.
	head := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("<svg/>")...)
	if got := Detect(head); got.Kind != KindPNG {
		t.Fatalf("Detect() = %+v, want png", got)
	}
}

func TestKindMIME(t *testing.T) {
	cases := map[Kind]string{
		KindPNG:     "image/png",
		KindJPEG:    "image/jpeg",
		KindWEBP:    "image/webp",
		KindAVIF:    "image/avif",
		KindGIF:     "image/gif",
		KindSVG:     "image/svg+xml",
		KindUnknown: "application/octet-stream",
	}
	for kind, want := range cases {
		if got := kind.MIME(); got != want {
			t.Fatalf("MIME(%q) = %q, want %q", kind, got, want)
		}
	}
}
