package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"

	"golang.org/x/image/draw"
)

// JPEGEncoder scales and encodes frames as JPEG.
type JPEGEncoder struct {
	mu      sync.Mutex
	quality int
	scale   float64
	size    int // last output size, used to pre-size the next buffer
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100) and
// scale factor (0 < scale <= 1). Out-of-range values are clamped.
func NewJPEGEncoder(quality int, scale float64) *JPEGEncoder {
	e := &JPEGEncoder{}
	e.SetQuality(quality)
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	e.scale = scale
	return e
}

func (e *JPEGEncoder) SetQuality(quality int) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	e.mu.Lock()
	e.quality = quality
	e.mu.Unlock()
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	e.mu.Lock()
	quality, hint := e.quality, e.size
	e.mu.Unlock()

	src := Scale(img, e.scale)

	var buf bytes.Buffer
	if hint == 0 {
		hint = 256 * 1024
	}
	buf.Grow(hint)
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.size = buf.Len()
	e.mu.Unlock()
	return buf.Bytes(), nil
}

// Scale resizes img by factor with bilinear interpolation. A factor of 1
// returns img unchanged. The result is never smaller than 1x1.
func Scale(img image.Image, factor float64) image.Image {
	if factor >= 1 || factor <= 0 {
		return img
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
