//go:build windows

package camera

import "strings"

const (
	defaultDevicePath   = "video=Integrated Camera"
	defaultDeviceFormat = "dshow"
)

func inputName(path string) string {
	if strings.HasPrefix(path, "video=") {
		return path
	}
	return "video=" + path
}

func probeDevice(string) error { return nil }
