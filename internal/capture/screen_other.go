//go:build !darwin

package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

const screenBackend = "screenshot"

func screenAvailable(display int) bool {
	n := screenshot.NumActiveDisplays()
	return n > 0 && display >= 0 && display < n
}

func grabDisplay(display int) (*image.RGBA, error) {
	if n := screenshot.NumActiveDisplays(); display >= n {
		return nil, fmt.Errorf("%w: display %d out of range (have %d)", ErrUnsupported, display, n)
	}
	img, err := screenshot.CaptureDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("capture: grab display %d: %w", display, err)
	}
	return img, nil
}
