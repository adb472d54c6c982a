//go:build !(darwin || linux) || noh264

package screenrec

import (
	"errors"
)

var errNoNativeH264 = errors.New("native H.264 support not built for this platform")

// H264LibraryError returns why libmedia_h264 could not be loaded.
func H264LibraryError() error { return errNoNativeH264 }

// IsH264EncoderAvailable reports false: no native encoder on this build.
func IsH264EncoderAvailable() bool { return false }
