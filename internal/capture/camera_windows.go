package capture

const (
	cameraInputFormat   = "dshow"
	defaultCameraDevice = ""
)

func cameraInputArgs(o CameraOptions) []string {
	return append(commonInputArgs(o), "-i", "video="+o.Device)
}

// dshow needs the device's friendly name; there is no sensible default.
func cameraDevicePresent(device string) bool { return device != "" }
