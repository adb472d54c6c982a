package screenrec

import (
	"fmt"
)

// DeviceKind represents the type of capture device.
type DeviceKind int

const (
	DeviceKindScreen     DeviceKind = iota // Desktop or display
	DeviceKindMicrophone                   // Audio input
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindScreen:
		return "screen"
	case DeviceKindMicrophone:
		return "microphone"
	default:
		return "unknown"
	}
}

// Region is a capture rectangle in screen pixels.
type Region struct {
	X, Y          int // Offset from the top-left corner
	Width, Height int // Size in pixels
}

// Validate checks the region against the minimum capture size and, when
// screenW/screenH are positive, against the screen bounds.
func (r Region) Validate(screenW, screenH int) error {
	if r.Width < MinCaptureWidth {
		return fmt.Errorf("width %d is below the minimum %d", r.Width, MinCaptureWidth)
	}
	if r.Height <= 0 {
		return fmt.Errorf("height %d must be positive", r.Height)
	}
	if r.Width%2 != 0 || r.Height%2 != 0 {
		return fmt.Errorf("dimensions %dx%d must be even", r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("offset %d,%d must not be negative", r.X, r.Y)
	}
	if screenW > 0 && r.X+r.Width > screenW {
		return fmt.Errorf("region %d+%d exceeds screen width %d", r.X, r.Width, screenW)
	}
	if screenH > 0 && r.Y+r.Height > screenH {
		return fmt.Errorf("region %d+%d exceeds screen height %d", r.Y, r.Height, screenH)
	}
	return nil
}

// MinCaptureWidth is the smallest accepted capture width.
const MinCaptureWidth = 240

// captureBackend builds ffmpeg input arguments for one platform. Exactly
// one implementation is compiled in, selected by build tags.
type captureBackend interface {
	// Name is the ffmpeg input format family, e.g. "x11grab/pulse".
	Name() string

	// DefaultDevice returns the device used when none is configured.
	DefaultDevice(kind DeviceKind) string

	// InputArgs returns the arguments placed before the output options.
	InputArgs(kind DeviceKind, cfg FFmpegSourceConfig) ([]string, error)
}

// CaptureBackendName returns the name of the compiled-in capture backend.
func CaptureBackendName() string {
	return platformBackend.Name()
}

// DefaultDevice returns the platform default device for kind.
func DefaultDevice(kind DeviceKind) string {
	return platformBackend.DefaultDevice(kind)
}
