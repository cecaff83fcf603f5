package capture

const (
	cameraInputFormat   = "avfoundation"
	defaultCameraDevice = "0"
)

func cameraInputArgs(o CameraOptions) []string {
	// avfoundation takes "video:audio"; no audio device.
	return append(commonInputArgs(o), "-pixel_format", "uyvy422", "-i", o.Device+":none")
}

func cameraDevicePresent(string) bool { return true }
