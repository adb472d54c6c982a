//go:build darwin

package screenrec

import (
	"fmt"
	"strconv"
)

// avfoundationBackend captures the screen and microphone with avfoundation.
// avfoundation grabs whole displays, so the region is cropped by a filter.
type avfoundationBackend struct{}

var platformBackend captureBackend = avfoundationBackend{}

func (avfoundationBackend) Name() string { return "avfoundation" }

func (avfoundationBackend) DefaultDevice(kind DeviceKind) string {
	if kind == DeviceKindMicrophone {
		return ":0"
	}
	return "1:none"
}

func (b avfoundationBackend) InputArgs(kind DeviceKind, cfg FFmpegSourceConfig) ([]string, error) {
	device := cfg.Device
	if device == "" {
		device = b.DefaultDevice(kind)
	}

	switch kind {
	case DeviceKindScreen:
		r := cfg.Region
		return []string{
			"-f", "avfoundation",
			"-framerate", strconv.Itoa(cfg.FPS),
			"-capture_cursor", "1",
			"-i", device,
			"-vf", fmt.Sprintf("crop=%d:%d:%d:%d", r.Width, r.Height, r.X, r.Y),
		}, nil
	case DeviceKindMicrophone:
		return []string{
			"-f", "avfoundation",
			"-i", device,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported device kind: %v", kind)
	}
}
