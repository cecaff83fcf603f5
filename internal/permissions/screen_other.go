//go:build !darwin

package permissions

// HasScreenRecording is always true outside macOS; the OS does not gate
// screen grabs behind a per-app permission.
func HasScreenRecording() bool { return true }

func RequestScreenRecording() bool { return true }
