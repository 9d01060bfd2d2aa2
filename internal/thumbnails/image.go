package thumbnails

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageDecodeError means the thumbnail bytes are not an image we can read.
type ImageDecodeError struct {
	Err error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("cannot decode thumbnail image: %v", e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// Decode reads an image and returns it with its format name, which doubles
// as the stored file extension ("jpeg", "png", "gif", "webp", "bmp").
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &ImageDecodeError{Err: fmt.Errorf("empty image")}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &ImageDecodeError{Err: err}
	}
	return img, format, nil
}

// Resize fits src inside a width x height box keeping its aspect ratio and
// centers it on a transparent canvas of exactly that size. Images already
// smaller than the box are not enlarged.
func Resize(src image.Image, width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))

	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW == 0 || srcH == 0 || width <= 0 || height <= 0 {
		return canvas
	}

	scale := math.Min(float64(width)/float64(srcW), float64(height)/float64(srcH))
	if scale > 1 {
		scale = 1
	}
	w := clamp(int(math.Round(float64(srcW)*scale)), 1, width)
	h := clamp(int(math.Round(float64(srcH)*scale)), 1, height)

	x0 := (width - w) / 2
	y0 := (height - h) / 2
	target := image.Rect(x0, y0, x0+w, y0+h)

	draw.CatmullRom.Scale(canvas, target, src, b, draw.Src, nil)
	return canvas
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
