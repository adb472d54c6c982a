package screenrec

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// SourceType identifies the type of capture source.
type SourceType int

const (
	SourceTypeUnknown     SourceType = iota
	SourceTypeScreen                 // Desktop capture (platform-specific)
	SourceTypeMicrophone             // Microphone capture (platform-specific)
	SourceTypeTestPattern            // Synthetic test pattern generator
	SourceTypeTone                   // Synthetic sine tone generator
)

func (s SourceType) String() string {
	switch s {
	case SourceTypeScreen:
		return "Screen"
	case SourceTypeMicrophone:
		return "Microphone"
	case SourceTypeTestPattern:
		return "TestPattern"
	case SourceTypeTone:
		return "Tone"
	default:
		return "Unknown"
	}
}

// StreamInfo describes the single stream a capture source produces.
type StreamInfo struct {
	Index int       // Source-side stream index carried by RawPacket
	Kind  MediaKind // Video or audio

	// Video
	Width       int         // Frame width in pixels
	Height      int         // Frame height in pixels
	FPS         int         // Nominal frames per second
	PixelFormat PixelFormat // Packed or planar pixel layout

	// Audio
	SampleRate   int         // Samples per second
	Channels     int         // Interleaved channels
	SampleFormat AudioFormat // Sample encoding
}

// CaptureSource produces raw packets from a live device or generator.
//
// ReadPacket returns ErrNoFrame when nothing is available yet and io.EOF
// once a finite source is exhausted. The returned packet is valid until
// the next ReadPacket call.
type CaptureSource interface {
	io.Closer

	// Open acquires the device. Streams is valid after Open succeeds.
	Open(ctx context.Context) error

	// Streams lists the streams the source produces.
	Streams() []StreamInfo

	// ReadPacket reads the next raw packet (blocking).
	ReadPacket(ctx context.Context) (*RawPacket, error)
}

// CaptureSourceFactory creates a capture source from a type-specific config.
type CaptureSourceFactory func(config interface{}) (CaptureSource, error)

// sourceRegistry holds registered source factories.
type sourceRegistry struct {
	factories map[SourceType]CaptureSourceFactory
	mu        sync.RWMutex
}

var globalSourceRegistry = &sourceRegistry{
	factories: make(map[SourceType]CaptureSourceFactory),
}

// RegisterCaptureSource registers a factory for a source type.
func RegisterCaptureSource(stype SourceType, factory CaptureSourceFactory) {
	globalSourceRegistry.mu.Lock()
	defer globalSourceRegistry.mu.Unlock()
	globalSourceRegistry.factories[stype] = factory
}

// CreateCaptureSource creates a capture source of the specified type.
func CreateCaptureSource(stype SourceType, config interface{}) (CaptureSource, error) {
	globalSourceRegistry.mu.RLock()
	factory, ok := globalSourceRegistry.factories[stype]
	globalSourceRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("capture source type not available: %v", stype)
	}

	return factory(config)
}

// IsCaptureSourceAvailable checks if a source type is registered.
func IsCaptureSourceAvailable(stype SourceType) bool {
	globalSourceRegistry.mu.RLock()
	defer globalSourceRegistry.mu.RUnlock()
	_, ok := globalSourceRegistry.factories[stype]
	return ok
}

// AvailableCaptureSources returns the registered source types in order.
func AvailableCaptureSources() []SourceType {
	globalSourceRegistry.mu.RLock()
	defer globalSourceRegistry.mu.RUnlock()

	types := make([]SourceType, 0, len(globalSourceRegistry.factories))
	for t := range globalSourceRegistry.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// firstStream returns the first stream of the wanted kind.
func firstStream(src CaptureSource, kind MediaKind) (StreamInfo, bool) {
	for _, s := range src.Streams() {
		if s.Kind == kind {
			return s, true
		}
	}
	return StreamInfo{}, false
}
