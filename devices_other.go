//go:build !linux && !darwin && !windows

package screenrec

import (
	"fmt"
	"runtime"
)

type unsupportedBackend struct{}

var platformBackend captureBackend = unsupportedBackend{}

func (unsupportedBackend) Name() string { return "unsupported" }

func (unsupportedBackend) DefaultDevice(DeviceKind) string { return "" }

func (unsupportedBackend) InputArgs(kind DeviceKind, cfg FFmpegSourceConfig) ([]string, error) {
	return nil, fmt.Errorf("%v capture is not supported on %s", kind, runtime.GOOS)
}
