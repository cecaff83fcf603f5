package capture

import (
	"fmt"
	"os"
	"runtime"

	"github.com/junsooki/framecast/internal/encoder"
)

const (
	DefaultScale   = 0.5
	DefaultQuality = 70
)

type ScreenOptions struct {
	Display int
	Scale   float64
	Quality int
}

// ScreenSource grabs one display, scales it and encodes it as JPEG.
type ScreenSource struct {
	display int
	enc     encoder.Encoder
	getenv  func(string) string
}

func NewScreenSource(opts ScreenOptions) *ScreenSource {
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	return &ScreenSource{
		display: opts.Display,
		enc:     encoder.NewJPEGEncoder(opts.Quality, opts.Scale),
		getenv:  os.Getenv,
	}
}

func (s *ScreenSource) Name() string { return "screen/" + screenBackend }

func (s *ScreenSource) Supported() bool {
	if isWayland(runtime.GOOS, s.getenv) {
		return false
	}
	return screenAvailable(s.display)
}

func (s *ScreenSource) CaptureOne() ([]byte, error) {
	img, err := grabDisplay(s.display)
	if err != nil {
		return nil, err
	}
	data, err := s.enc.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("capture: encode screen: %w", err)
	}
	return data, nil
}

// isWayland reports a Linux session where X11-style screen grabs return
// black frames or fail.
func isWayland(goos string, getenv func(string) string) bool {
	if goos != "linux" {
		return false
	}
	return getenv("WAYLAND_DISPLAY") != "" || getenv("XDG_SESSION_TYPE") == "wayland"
}
