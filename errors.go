package screenrec

import (
	"errors"
	"fmt"
)

// ErrorKind classifies recorder failures.
type ErrorKind int

const (
	ErrorKindUnknown             ErrorKind = iota
	ErrorKindDeviceOpen                    // Capture device could not be opened
	ErrorKindStreamDiscovery               // Capture device exposes no usable stream
	ErrorKindDecoderOpen                   // Raw decoder could not be created
	ErrorKindEncoderOpen                   // Encoder could not be created
	ErrorKindParameterConversion           // Stream parameters rejected by encoder or container
	ErrorKindResamplerInit                 // Resampler setup or conversion failure
	ErrorKindFileOpen                      // Output file could not be created
	ErrorKindHeaderWrite                   // Container header write failed
	ErrorKindTrailerWrite                  // Container trailer write failed
	ErrorKindQueueWrite                    // Converted frame did not fit the frame queue
	ErrorKindPacketWrite                   // Interleaved packet write failed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindDeviceOpen:
		return "device-open"
	case ErrorKindStreamDiscovery:
		return "stream-discovery"
	case ErrorKindDecoderOpen:
		return "decoder-open"
	case ErrorKindEncoderOpen:
		return "encoder-open"
	case ErrorKindParameterConversion:
		return "parameter-conversion"
	case ErrorKindResamplerInit:
		return "resampler-init"
	case ErrorKindFileOpen:
		return "file-open"
	case ErrorKindHeaderWrite:
		return "header-write"
	case ErrorKindTrailerWrite:
		return "trailer-write"
	case ErrorKindQueueWrite:
		return "queue-write"
	case ErrorKindPacketWrite:
		return "packet-write"
	default:
		return "unknown"
	}
}

// Error is a fatal recorder error tagged with its kind.
type Error struct {
	Kind ErrorKind
	Op   string // Operation that failed, e.g. "open video device"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindUnknown
}

// ErrInvalidCommand is matched by every lifecycle usage error.
var ErrInvalidCommand = errors.New("invalid command")

// commandError is a recoverable lifecycle usage error.
type commandError struct {
	msg string
}

func (e *commandError) Error() string { return e.msg }

func (e *commandError) Is(target error) bool { return target == ErrInvalidCommand }

// Lifecycle usage errors. The session is unaffected when one is returned.
var (
	ErrNothingToPause   error = &commandError{"nothing to pause: recording has not started"}
	ErrAlreadyPaused    error = &commandError{"already paused"}
	ErrNothingToResume  error = &commandError{"nothing to resume: recording has not started"}
	ErrAlreadyRecording error = &commandError{"already recording"}
	ErrAlreadyStopped   error = &commandError{"recording already stopped"}
)

// Pipeline sentinels.
var (
	// ErrPending is returned by Retrieve when no output is ready yet.
	ErrPending = errors.New("output not ready")

	// ErrNoFrame is returned by a capture source when no frame is available yet.
	ErrNoFrame = errors.New("no frame available")

	// ErrQueueAborted is returned by queue operations after a fatal error.
	ErrQueueAborted = errors.New("frame queue aborted")

	// ErrNotSupported is returned when an optional operation is not supported.
	ErrNotSupported = errors.New("operation not supported")
)
