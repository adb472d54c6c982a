// Core frame, sample and packet types shared by the recording pipeline.
package screenrec

// MediaKind identifies the media type carried by a stream.
type MediaKind int

const (
	MediaKindVideo MediaKind = iota
	MediaKindAudio
)

func (k MediaKind) String() string {
	switch k {
	case MediaKindVideo:
		return "video"
	case MediaKindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                     // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// FrameSize returns the number of bytes needed for a tightly packed frame.
func (p PixelFormat) FrameSize(width, height int) int {
	switch p {
	case PixelFormatI420, PixelFormatNV12:
		return I420Size(width, height)
	case PixelFormatRGB24:
		return width * height * 3
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return width * height * 4
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM, little endian
	AudioFormatF32                    // 32-bit float, little endian
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// VideoFrame represents a decoded video frame.
// Planar formats use one slice per plane; packed formats use Data[0] only.
type VideoFrame struct {
	Data      [][]byte    // Plane data
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Capture timestamp in nanoseconds
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}

// AudioSamples represents interleaved raw audio samples.
type AudioSamples struct {
	Data        []byte      // Interleaved sample data
	SampleRate  int         // Sample rate (e.g., 44100)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples (per channel)
	Format      AudioFormat // Sample format
	Timestamp   int64       // Capture timestamp in nanoseconds
}

// RawPacket is one undecoded read from a capture source.
// It is owned by the capture loop that read it.
type RawPacket struct {
	StreamIndex int    // Index of the source stream this data belongs to
	Data        []byte // Raw payload (packed pixels or interleaved samples)
	Timestamp   int64  // Source timestamp in nanoseconds
}

// Packet is one encoded unit produced by an Encoder.
// PTS/DTS/Duration are in the encoder time base until the mux loop
// rescales them into the container time base.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	Keyframe    bool
	Data        []byte
}

// Clone copies p so the caller may reuse its buffer.
func (p *Packet) Clone() *Packet {
	clone := *p
	if p.Data != nil {
		clone.Data = make([]byte, len(p.Data))
		copy(clone.Data, p.Data)
	}
	return &clone
}
