//go:build darwin

package camera

const (
	defaultDevicePath   = "0"
	defaultDeviceFormat = "avfoundation"
)

// avfoundation takes "video:audio"; audio is never captured.
func inputName(path string) string { return path + ":none" }

func probeDevice(string) error { return nil }
