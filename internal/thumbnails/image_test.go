package thumbnails

import (
	"errors"
	"image/color"
	"testing"

	"github.com/johnrirwin/localtv/internal/testutil"
)

func TestResizeLetterboxesWideImage(t *testing.T) {
	src := testutil.SolidImage(800, 200, color.NRGBA{R: 255, A: 255})

	got := Resize(src, 142, 104)

	if b := got.Bounds(); b.Dx() != 142 || b.Dy() != 104 {
		t.Fatalf("Resize() bounds = %v, want 142x104", b)
	}

	// 800x200 scales to 142x36, centered at y=34.
	transparent := []struct{ x, y int }{{71, 0}, {71, 33}, {71, 70}, {71, 103}, {0, 10}}
	for _, p := range transparent {
		if _, _, _, a := got.At(p.x, p.y).RGBA(); a != 0 {
			t.Errorf("pixel (%d,%d) alpha = %d, want transparent", p.x, p.y, a)
		}
	}
	opaque := []struct{ x, y int }{{71, 52}, {0, 40}, {141, 60}, {71, 35}, {71, 68}}
	for _, p := range opaque {
		if _, _, _, a := got.At(p.x, p.y).RGBA(); a < 0xf000 {
			t.Errorf("pixel (%d,%d) alpha = %d, want opaque", p.x, p.y, a)
		}
	}
}

func TestResizeDoesNotUpscale(t *testing.T) {
	src := testutil.SolidImage(40, 20, color.NRGBA{G: 255, A: 255})

	got := Resize(src, 142, 104)

	// 40x20 stays 40x20, placed at (51,42).
	if _, _, _, a := got.At(50, 50).RGBA(); a != 0 {
		t.Errorf("pixel left of image alpha = %d, want transparent", a)
	}
	if _, _, _, a := got.At(51, 42).RGBA(); a < 0xf000 {
		t.Errorf("top-left image pixel alpha = %d, want opaque", a)
	}
	if _, _, _, a := got.At(90, 61).RGBA(); a < 0xf000 {
		t.Errorf("bottom-right image pixel alpha = %d, want opaque", a)
	}
	if _, _, _, a := got.At(91, 62).RGBA(); a != 0 {
		t.Errorf("pixel past image alpha = %d, want transparent", a)
	}
}

func TestResizeExactFit(t *testing.T) {
	got := Resize(testutil.SolidImage(284, 208, color.NRGBA{B: 255, A: 255}), 142, 104)
	for _, p := range [][2]int{{0, 0}, {141, 103}, {71, 52}} {
		if _, _, _, a := got.At(p[0], p[1]).RGBA(); a < 0xf000 {
			t.Errorf("pixel %v alpha = %d, want opaque", p, a)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		format  string
		wantErr bool
	}{
		{name: "png", data: testutil.PNG(t, 4, 4), format: "png"},
		{name: "jpeg", data: testutil.JPEG(t, 4, 4), format: "jpeg"},
		{name: "empty", data: nil, wantErr: true},
		{name: "garbage", data: []byte("<html>not an image</html>"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, format, err := Decode(tt.data)
			if tt.wantErr {
				var decodeErr *ImageDecodeError
				if !errors.As(err, &decodeErr) {
					t.Fatalf("Decode() error = %v, want *ImageDecodeError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if format != tt.format {
				t.Errorf("Decode() format = %q, want %q", format, tt.format)
			}
		})
	}
}
