//go:build (darwin || linux) && !noh264

// H.264 encoding and decoding via libmedia_h264 (x264 / OpenH264) using purego.

package screenrec

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"unsafe"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/ebitengine/purego"
)

var (
	mediaH264Once    sync.Once
	mediaH264Handle  uintptr
	mediaH264InitErr error
)

// libmedia_h264 function pointers
var (
	mediaH264EncoderCreate        func(width, height, fps, bitrateKbps, profile, threads int32) uint64
	mediaH264EncoderEncode        func(encoder uint64, yPlane, uPlane, vPlane uintptr, yStride, uvStride, forceKeyframe int32, outData uintptr, outCapacity int32, outFrameType, outPts, outDts uintptr) int32
	mediaH264EncoderMaxOutputSize func(encoder uint64) int32
	mediaH264EncoderGetSPSPPS     func(encoder uint64, spsOut uintptr, spsCapacity int32, spsLen uintptr, ppsOut uintptr, ppsCapacity int32, ppsLen uintptr) int32
	mediaH264EncoderDestroy       func(encoder uint64)

	mediaH264GetError         func() uintptr
	mediaH264EncoderAvailable func() int32
)

// Constants from media_h264.h
const (
	mediaH264ProfileBaseline = 66
	mediaH264ProfileMain     = 77
	mediaH264ProfileHigh     = 100

	mediaH264FrameI   = 0
	mediaH264FrameIDR = 3
)

// mediaH264EncodeResult holds encoder output parameters. It must be
// heap-allocated for purego on arm64: the GC may move a stack variable
// during the C call.
type mediaH264EncodeResult struct {
	FrameType int32
	PTS       int64
	DTS       int64
}

func h264ProfileToStreamPurego(p H264Profile) int {
	switch p {
	case H264ProfileMain:
		return mediaH264ProfileMain
	case H264ProfileHigh:
		return mediaH264ProfileHigh
	default:
		return mediaH264ProfileBaseline
	}
}

func loadMediaH264() error {
	mediaH264Once.Do(func() {
		mediaH264InitErr = loadMediaH264Lib()
	})
	return mediaH264InitErr
}

func loadMediaH264Lib() error {
	var lastErr error
	for _, path := range mediaH264LibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		mediaH264Handle = handle
		loadMediaH264Symbols()
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libmedia_h264: %w", lastErr)
	}
	return errors.New("libmedia_h264 not found in any standard location")
}

func mediaH264LibPaths() []string {
	return nativeLibPaths("libmedia_h264", "SCREENREC_H264_LIB_PATH", "MEDIA_SDK_LIB_PATH")
}

func loadMediaH264Symbols() {
	purego.RegisterLibFunc(&mediaH264EncoderCreate, mediaH264Handle, "media_h264_encoder_create")
	purego.RegisterLibFunc(&mediaH264EncoderEncode, mediaH264Handle, "media_h264_encoder_encode")
	purego.RegisterLibFunc(&mediaH264EncoderMaxOutputSize, mediaH264Handle, "media_h264_encoder_max_output_size")
	purego.RegisterLibFunc(&mediaH264EncoderGetSPSPPS, mediaH264Handle, "media_h264_encoder_get_sps_pps")
	purego.RegisterLibFunc(&mediaH264EncoderDestroy, mediaH264Handle, "media_h264_encoder_destroy")

	purego.RegisterLibFunc(&mediaH264GetError, mediaH264Handle, "media_h264_get_error")
	purego.RegisterLibFunc(&mediaH264EncoderAvailable, mediaH264Handle, "media_h264_encoder_available")
}

// H264LibraryError returns why libmedia_h264 could not be loaded, or nil.
func H264LibraryError() error {
	return loadMediaH264()
}

// IsH264EncoderAvailable checks if the native H.264 encoder is available.
func IsH264EncoderAvailable() bool {
	return loadMediaH264() == nil && mediaH264EncoderAvailable() != 0
}

func getH264Error() string {
	ptr := mediaH264GetError()
	if ptr == 0 {
		return "unknown error"
	}
	return cString(ptr)
}

// H264Encoder encodes I420 frames with x264 through libmedia_h264. The
// library runs with zero latency, so it emits at most one access unit
// per submitted frame.
type H264Encoder struct {
	config VideoEncoderConfig

	handle    uint64
	outputBuf []byte
	result    *mediaH264EncodeResult
	sps, pps  []byte

	pts       []int64 // PTS of submitted frames not yet emitted
	out       []*Packet
	unflushed int
	eos       bool
	closed    bool
}

// NewH264Encoder creates a native H.264 encoder.
func NewH264Encoder(config VideoEncoderConfig) (*H264Encoder, error) {
	if err := loadMediaH264(); err != nil {
		return nil, fmt.Errorf("H.264 encoder not available: %w", err)
	}
	if mediaH264EncoderAvailable() == 0 {
		return nil, errors.New("H.264 encoder not available (x264 not compiled)")
	}

	profile := config.Profile
	if profile == 0 {
		profile = H264ProfileBaseline
	}
	threads := config.Threads
	if threads <= 0 {
		threads = 4
	}
	bitrateKbps := config.BitrateBps / 1000
	if bitrateKbps <= 0 {
		bitrateKbps = 4000
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}

	handle := mediaH264EncoderCreate(
		int32(config.Width),
		int32(config.Height),
		int32(config.FPS),
		int32(bitrateKbps),
		int32(h264ProfileToStreamPurego(profile)),
		int32(threads),
	)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create H.264 encoder: %s", getH264Error())
	}

	maxOutput := mediaH264EncoderMaxOutputSize(handle)
	if maxOutput <= 0 {
		maxOutput = int32(config.Width * config.Height * 3 / 2)
	}

	config.Profile = profile
	enc := &H264Encoder{
		config:    config,
		handle:    handle,
		outputBuf: make([]byte, maxOutput),
		result:    &mediaH264EncodeResult{},
	}
	enc.extractSPSPPS()
	if len(enc.sps) == 0 || len(enc.pps) == 0 {
		mediaH264EncoderDestroy(handle)
		return nil, errors.New("H.264 encoder returned no SPS/PPS")
	}
	return enc, nil
}

func (e *H264Encoder) extractSPSPPS() {
	spsOut := make([]byte, 256)
	ppsOut := make([]byte, 256)
	lens := &[2]int32{}

	mediaH264EncoderGetSPSPPS(
		e.handle,
		uintptr(unsafe.Pointer(&spsOut[0])), 256, uintptr(unsafe.Pointer(&lens[0])),
		uintptr(unsafe.Pointer(&ppsOut[0])), 256, uintptr(unsafe.Pointer(&lens[1])),
	)
	runtime.KeepAlive(lens)

	// The library may hand back Annex B framed parameter sets.
	e.sps = stripStartCode(spsOut[:lens[0]])
	e.pps = stripStartCode(ppsOut[:lens[1]])
}

// stripStartCode returns the single NAL unit in b without its start code.
func stripStartCode(b []byte) []byte {
	var au h264.AnnexB
	if err := au.Unmarshal(b); err == nil && len(au) == 1 {
		return append([]byte(nil), au[0]...)
	}
	return append([]byte(nil), b...)
}

// Submit implements Encoder.
func (e *H264Encoder) Submit(f *Frame) error {
	if e.closed || e.eos {
		return ErrEncoderClosed
	}
	if f == nil {
		// libmedia_h264 has no flush call, so held frames are lost.
		e.eos = true
		e.unflushed = len(e.pts)
		e.pts = nil
		return nil
	}

	w, h := e.config.Width, e.config.Height
	if len(f.Data) < I420Size(w, h) {
		return fmt.Errorf("frame has %d bytes, need %d", len(f.Data), I420Size(w, h))
	}
	ySize, uvSize := w*h, (w/2)*(h/2)
	e.pts = append(e.pts, f.PTS)

	res := e.result
	n := mediaH264EncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&f.Data[0])),
		uintptr(unsafe.Pointer(&f.Data[ySize])),
		uintptr(unsafe.Pointer(&f.Data[ySize+uvSize])),
		int32(w),
		int32(w/2),
		0,
		uintptr(unsafe.Pointer(&e.outputBuf[0])),
		int32(len(e.outputBuf)),
		uintptr(unsafe.Pointer(&res.FrameType)),
		uintptr(unsafe.Pointer(&res.PTS)),
		uintptr(unsafe.Pointer(&res.DTS)),
	)
	runtime.KeepAlive(f.Data)
	runtime.KeepAlive(res)

	if n < 0 {
		e.pts = e.pts[:len(e.pts)-1]
		return fmt.Errorf("encode failed: %s", getH264Error())
	}
	if n == 0 {
		return nil
	}

	pts := e.pts[0]
	e.pts = e.pts[1:]
	data := make([]byte, n)
	copy(data, e.outputBuf[:n])
	e.out = append(e.out, &Packet{
		PTS:      pts,
		DTS:      pts,
		Duration: 1,
		Keyframe: res.FrameType == mediaH264FrameIDR || res.FrameType == mediaH264FrameI,
		Data:     data,
	})
	return nil
}

// Retrieve implements Encoder.
func (e *H264Encoder) Retrieve() (*Packet, error) {
	if len(e.out) > 0 {
		p := e.out[0]
		e.out[0] = nil
		e.out = e.out[1:]
		return p, nil
	}
	if e.eos {
		return nil, io.EOF
	}
	return nil, ErrPending
}

// Unflushed implements Unflusher.
func (e *H264Encoder) Unflushed() int { return e.unflushed }

// TimeBase implements Encoder.
func (e *H264Encoder) TimeBase() Rational {
	return Rational{Num: 1, Den: int64(e.config.FPS)}
}

// Params implements Encoder.
func (e *H264Encoder) Params() CodecParams {
	return CodecParams{
		Codec:   CodecH264,
		Width:   e.config.Width,
		Height:  e.config.Height,
		FPS:     e.config.FPS,
		Profile: e.config.Profile,
		SPS:     e.sps,
		PPS:     e.pps,
	}
}

// Close implements Encoder.
func (e *H264Encoder) Close() error {
	e.closed = true
	e.out = nil
	if e.handle != 0 {
		mediaH264EncoderDestroy(e.handle)
		e.handle = 0
	}
	return nil
}

func init() {
	registerVideoEncoder(VideoEncoderNative, IsH264EncoderAvailable,
		func(c VideoEncoderConfig) (Encoder, error) {
			return NewH264Encoder(c)
		},
	)
}
