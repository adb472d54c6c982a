//go:build linux

package screenrec

import (
	"fmt"
	"os"
	"strconv"
)

// x11Backend captures the X11 display with x11grab and the microphone
// through PulseAudio.
type x11Backend struct{}

var platformBackend captureBackend = x11Backend{}

func (x11Backend) Name() string { return "x11grab/pulse" }

func (x11Backend) DefaultDevice(kind DeviceKind) string {
	if kind == DeviceKindMicrophone {
		return "default"
	}
	if display := os.Getenv("DISPLAY"); display != "" {
		return display
	}
	return ":0.0"
}

func (b x11Backend) InputArgs(kind DeviceKind, cfg FFmpegSourceConfig) ([]string, error) {
	device := cfg.Device
	if device == "" {
		device = b.DefaultDevice(kind)
	}

	switch kind {
	case DeviceKindScreen:
		return []string{
			"-f", "x11grab",
			"-framerate", strconv.Itoa(cfg.FPS),
			"-video_size", fmt.Sprintf("%dx%d", cfg.Region.Width, cfg.Region.Height),
			"-draw_mouse", "1",
			"-i", fmt.Sprintf("%s+%d,%d", device, cfg.Region.X, cfg.Region.Y),
		}, nil
	case DeviceKindMicrophone:
		return []string{
			"-f", "pulse",
			"-sample_rate", strconv.Itoa(cfg.SampleRate),
			"-channels", strconv.Itoa(cfg.Channels),
			"-i", device,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported device kind: %v", kind)
	}
}
