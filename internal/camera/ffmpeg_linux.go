//go:build linux

package camera

import "os"

const (
	defaultDevicePath   = "/dev/video0"
	defaultDeviceFormat = "v4l2"
)

func inputName(path string) string { return path }

// probeDevice fails fast when the video node is missing instead of waiting
// for ffmpeg to report it.
func probeDevice(path string) error {
	_, err := os.Stat(path)
	return err
}
