package screenrec

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Common errors
var (
	ErrEncoderNotFound = errors.New("encoder not available")
	ErrEncoderClosed   = errors.New("encoder closed")
)

// Frame is one converted unit submitted to an Encoder.
type Frame struct {
	PTS     int64  // Presentation timestamp in the encoder time base
	Data    []byte // I420 picture or interleaved S16 samples, valid during Submit
	Samples int    // Samples per channel (audio only)
}

// Encoder turns converted frames into packets.
//
// Submit may buffer; Retrieve returns ErrPending when nothing is ready.
// Submit(nil) signals end of stream, after which Retrieve drains the
// remaining packets and then returns io.EOF.
type Encoder interface {
	io.Closer

	// Submit hands one frame to the encoder. nil flushes.
	Submit(f *Frame) error

	// Retrieve returns the next encoded packet.
	Retrieve() (*Packet, error)

	// TimeBase is the time base of Frame.PTS and of the packets produced.
	TimeBase() Rational

	// Params describes the output stream.
	Params() CodecParams
}

// FrameSizeSetter is implemented by audio encoders whose nominal frame
// size follows the converter.
type FrameSizeSetter interface {
	SetFrameSize(samples int)
}

// Unflusher is implemented by encoders that cannot drain frames they
// still hold when the stream ends.
type Unflusher interface {
	// Unflushed returns the frames dropped by end of stream.
	Unflushed() int
}

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	Type       VideoEncoderType // Implementation (default: auto)
	Width      int              // Frame width
	Height     int              // Frame height
	FPS        int              // Frame rate, also the time base denominator
	BitrateBps int              // Target bitrate (native only)
	Profile    H264Profile      // H.264 profile (native only)
	Threads    int              // Encoder threads (native only, 0 = auto)
	Delay      int              // Frames held before output (builtin only)
}

// DefaultVideoEncoderConfig returns a default encoder configuration.
func DefaultVideoEncoderConfig(width, height int) VideoEncoderConfig {
	return VideoEncoderConfig{
		Type:       VideoEncoderAuto,
		Width:      width,
		Height:     height,
		FPS:        30,
		BitrateBps: 4000000,
		Profile:    H264ProfileBaseline,
	}
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	SampleRate int // Sample rate, also the time base denominator
	Channels   int // Interleaved channels
	FrameSize  int // Nominal samples per frame
}

// --- Registry ---

type videoEncoderFactory struct {
	available func() bool
	create    func(VideoEncoderConfig) (Encoder, error)
}

type encoderRegistry struct {
	mu    sync.RWMutex
	video map[VideoEncoderType]videoEncoderFactory
}

var globalEncoderRegistry = &encoderRegistry{
	video: make(map[VideoEncoderType]videoEncoderFactory),
}

// registerVideoEncoder registers an H.264 implementation.
func registerVideoEncoder(t VideoEncoderType, available func() bool, create func(VideoEncoderConfig) (Encoder, error)) {
	globalEncoderRegistry.mu.Lock()
	defer globalEncoderRegistry.mu.Unlock()
	globalEncoderRegistry.video[t] = videoEncoderFactory{available: available, create: create}
}

// VideoEncoderTypes returns the implementations usable on this system.
func VideoEncoderTypes() []VideoEncoderType {
	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	types := make([]VideoEncoderType, 0, len(globalEncoderRegistry.video))
	for t, f := range globalEncoderRegistry.video {
		if f.available() {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// NewVideoEncoder creates an H.264 encoder. Auto prefers the native
// encoder and falls back to the built-in one.
func NewVideoEncoder(config VideoEncoderConfig) (Encoder, error) {
	if config.Width <= 0 || config.Height <= 0 || config.Width%2 != 0 || config.Height%2 != 0 {
		return nil, fmt.Errorf("invalid video size %dx%d", config.Width, config.Height)
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}

	globalEncoderRegistry.mu.RLock()
	defer globalEncoderRegistry.mu.RUnlock()

	order := []VideoEncoderType{config.Type}
	if config.Type == "" || config.Type == VideoEncoderAuto {
		order = []VideoEncoderType{VideoEncoderNative, VideoEncoderBuiltin}
	}
	for _, t := range order {
		f, ok := globalEncoderRegistry.video[t]
		if !ok || !f.available() {
			continue
		}
		return f.create(config)
	}
	return nil, fmt.Errorf("%w: %s", ErrEncoderNotFound, config.Type)
}

// NewAudioEncoder creates the PCM audio encoder.
func NewAudioEncoder(config AudioEncoderConfig) (Encoder, error) {
	return NewPCMEncoder(config)
}

func init() {
	registerVideoEncoder(VideoEncoderBuiltin,
		func() bool { return true },
		func(c VideoEncoderConfig) (Encoder, error) {
			return NewH264PCMEncoder(c)
		},
	)
}
