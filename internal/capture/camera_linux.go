package capture

import "os"

const (
	cameraInputFormat   = "v4l2"
	defaultCameraDevice = "/dev/video0"
)

func cameraInputArgs(o CameraOptions) []string {
	return append(commonInputArgs(o), "-input_format", "mjpeg", "-i", o.Device)
}

func cameraDevicePresent(device string) bool {
	_, err := os.Stat(device)
	return err == nil
}
