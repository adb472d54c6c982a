//go:build windows

package screenrec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// gdigrabBackend captures the desktop with gdigrab and the microphone
// with DirectShow.
type gdigrabBackend struct{}

var platformBackend captureBackend = gdigrabBackend{}

func (gdigrabBackend) Name() string { return "gdigrab/dshow" }

func (gdigrabBackend) DefaultDevice(kind DeviceKind) string {
	if kind == DeviceKindMicrophone {
		// DirectShow has no alias for the default input.
		return ""
	}
	return "desktop"
}

func (b gdigrabBackend) InputArgs(kind DeviceKind, cfg FFmpegSourceConfig) ([]string, error) {
	device := cfg.Device
	if device == "" {
		device = b.DefaultDevice(kind)
	}

	switch kind {
	case DeviceKindScreen:
		r := cfg.Region
		return []string{
			"-f", "gdigrab",
			"-framerate", strconv.Itoa(cfg.FPS),
			"-offset_x", strconv.Itoa(r.X),
			"-offset_y", strconv.Itoa(r.Y),
			"-video_size", fmt.Sprintf("%dx%d", r.Width, r.Height),
			"-i", device,
		}, nil
	case DeviceKindMicrophone:
		if device == "" {
			return nil, errors.New("no default audio device, maybe no microphone")
		}
		if !strings.HasPrefix(device, "audio=") {
			device = "audio=" + device
		}
		return []string{
			"-f", "dshow",
			"-i", device,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported device kind: %v", kind)
	}
}
