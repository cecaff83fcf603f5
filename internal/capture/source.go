// Package capture produces encoded frames from screens, cameras and files
// and publishes them into a frame.Slot at a fixed cadence.
package capture

import (
	"errors"
	"io"
)

// ErrUnsupported reports that a source cannot run on this machine. A loop
// that sees it stops for good.
var ErrUnsupported = errors.New("capture: source not supported on this system")

// Source is one capture backend. CaptureOne returns the next encoded frame,
// or an empty slice when nothing new was produced this cycle.
type Source interface {
	Name() string
	Supported() bool
	CaptureOne() ([]byte, error)
}

// closeSource releases backends that hold processes or watchers.
func closeSource(src Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
