package capture

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/junsooki/framecast/internal/frame"
)

// Options carries per-backend settings used by Probe.
type Options struct {
	Screen ScreenOptions
	Camera CameraOptions
}

// Probe picks the source for a stream from a selector: "auto" (the native
// backend for the kind), "synthetic", "file:<path>" or "off". It returns
// nil, nil for "off".
func Probe(kind frame.Kind, selector string, opts Options) (Source, error) {
	selector = strings.TrimSpace(selector)
	var src Source
	switch {
	case selector == "off":
		return nil, nil
	case selector == "" || selector == "auto":
		switch kind {
		case frame.KindScreen:
			src = NewScreenSource(opts.Screen)
		case frame.KindWebcam:
			src = NewCameraSource(opts.Camera)
		default:
			return nil, fmt.Errorf("capture: no native source for stream %q", kind)
		}
	case selector == "synthetic":
		src = NewSyntheticSource(kind, 0, 0)
	case strings.HasPrefix(selector, "file:"):
		path := strings.TrimPrefix(selector, "file:")
		if path == "" {
			return nil, fmt.Errorf("capture: empty file path in %q", selector)
		}
		src = NewFileSource(path)
	default:
		return nil, fmt.Errorf("capture: unknown source %q for stream %q", selector, kind)
	}
	slog.Info("capture: probed source", "stream", kind, "source", src.Name(), "supported", src.Supported())
	return src, nil
}
