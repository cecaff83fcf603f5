package capture

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/junsooki/framecast/internal/encoder"
	"github.com/junsooki/framecast/internal/frame"
)

// SyntheticSource renders a moving test pattern. It is always supported.
type SyntheticSource struct {
	kind frame.Kind
	enc  encoder.Encoder

	mu  sync.Mutex
	img *image.RGBA
	n   int
}

func NewSyntheticSource(kind frame.Kind, width, height int) *SyntheticSource {
	if width <= 0 {
		width = DefaultCameraWidth
	}
	if height <= 0 {
		height = DefaultCameraHeight
	}
	return &SyntheticSource{
		kind: kind,
		enc:  encoder.NewJPEGEncoder(DefaultQuality, 1),
		img:  image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

func (s *SyntheticSource) Supported() bool { return true }

func (s *SyntheticSource) CaptureOne() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	s.render(s.n)
	data, err := s.enc.Encode(s.img)
	if err != nil {
		return nil, fmt.Errorf("capture: encode test pattern: %w", err)
	}
	return data, nil
}

func (s *SyntheticSource) render(n int) {
	b := s.img.Bounds()
	w, h := b.Dx(), b.Dy()
	tint := uint8(0)
	if s.kind == frame.KindWebcam {
		tint = 96
	}
	bar := (n * 8) % w
	sec := uint8(time.Now().Second() * 4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), tint + sec/4, 255}
			if x >= bar && x < bar+16 {
				c = color.RGBA{255, 255, 255, 255}
			}
			s.img.SetRGBA(x, y, c)
		}
	}
}
