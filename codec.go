package screenrec

// Codec identifies an output codec.
type Codec int

const (
	CodecUnknown   Codec = iota
	CodecH264            // H.264 Annex B elementary stream
	CodecPCMS16LE        // Signed 16-bit little endian interleaved PCM
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecPCMS16LE:
		return "PCM_S16LE"
	default:
		return "Unknown"
	}
}

// Kind returns the media kind carried by this codec.
func (c Codec) Kind() MediaKind {
	if c == CodecPCMS16LE {
		return MediaKindAudio
	}
	return MediaKindVideo
}

// MatroskaID returns the Matroska CodecID for this codec.
func (c Codec) MatroskaID() string {
	switch c {
	case CodecH264:
		return "V_MPEG4/ISO/AVC"
	case CodecPCMS16LE:
		return "A_PCM/INT/LIT"
	default:
		return ""
	}
}

// H264Profile represents H.264 encoding profiles.
type H264Profile int

const (
	H264ProfileBaseline H264Profile = 66
	H264ProfileMain     H264Profile = 77
	H264ProfileHigh     H264Profile = 100
)

func (p H264Profile) String() string {
	switch p {
	case H264ProfileBaseline:
		return "baseline"
	case H264ProfileMain:
		return "main"
	case H264ProfileHigh:
		return "high"
	default:
		return "unknown"
	}
}

// VideoEncoderType selects the H.264 encoder implementation.
type VideoEncoderType string

const (
	// VideoEncoderAuto uses the native encoder when it loads, the
	// built-in encoder otherwise.
	VideoEncoderAuto VideoEncoderType = "auto"
	// VideoEncoderNative uses libmedia_h264 (x264) loaded at runtime.
	VideoEncoderNative VideoEncoderType = "native"
	// VideoEncoderBuiltin uses the pure Go lossless I_PCM encoder.
	VideoEncoderBuiltin VideoEncoderType = "builtin"
)

// CodecParams describes an encoder's output stream.
type CodecParams struct {
	Codec Codec

	// Video
	Width   int
	Height  int
	FPS     int
	Profile H264Profile
	SPS     []byte // Without start code
	PPS     []byte // Without start code

	// Audio
	SampleRate int
	Channels   int
	FrameSize  int // Nominal samples per frame
}
