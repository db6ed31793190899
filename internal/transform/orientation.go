package transform

import (
	"bytes"
	"image"

	"github.com/rwcarlsen/goexif/exif"
)

// orientationOf reads the EXIF orientation tag from a JPEG byte stream.
// Anything unreadable or out of range means "no rotation" (1).
func orientationOf(data []byte) int {
	ex, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := ex.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// reorient bakes an EXIF orientation into the pixel data so the re-encoded
// output renders upright without relying on metadata the encoder drops.
// Orientations 5-8 swap width and height.
func reorient(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.NRGBA
	if orientation >= 5 {
		dst = image.NewNRGBA(image.Rect(0, 0, h, w))
	} else {
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	}

	for y := range h {
		for x := range w {
			var dx, dy int
			switch orientation {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 CW
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 270 CW
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
