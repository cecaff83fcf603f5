// Package permissions wraps the macOS privacy gate in front of screen
// capture. Other platforms have no such gate.
package permissions

/*
#cgo LDFLAGS: -framework CoreGraphics
#include <CoreGraphics/CoreGraphics.h>

// Both calls exist from macOS 10.15 on.
static int screen_access(int prompt) {
    return prompt ? CGRequestScreenCaptureAccess() : CGPreflightScreenCaptureAccess();
}
*/
import "C"

func HasScreenRecording() bool { return C.screen_access(0) != 0 }

// RequestScreenRecording asks for access and reports whether it is already
// granted. macOS prompts once per binary; grabs return blank images until
// the process restarts after the user allows it.
func RequestScreenRecording() bool { return C.screen_access(1) != 0 }
