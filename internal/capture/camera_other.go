//go:build !linux && !darwin && !windows

package capture

const (
	cameraInputFormat   = "none"
	defaultCameraDevice = ""
)

func cameraInputArgs(o CameraOptions) []string { return commonInputArgs(o) }

func cameraDevicePresent(string) bool { return false }
