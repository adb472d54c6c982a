//go:build (darwin || linux) && !noh264

package screenrec

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The decoder half of libmedia_h264 only checks encoder output.
var (
	testDecoderOnce sync.Once
	testDecoderErr  error

	mediaH264DecoderCreate    func(threads int32) uint64
	mediaH264DecoderDecode    func(decoder uint64, data uintptr, dataLen int32, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	mediaH264DecoderDestroy   func(decoder uint64)
	mediaH264DecoderAvailable func() int32
)

func loadTestDecoder() error {
	testDecoderOnce.Do(func() {
		if testDecoderErr = loadMediaH264(); testDecoderErr != nil {
			return
		}
		purego.RegisterLibFunc(&mediaH264DecoderCreate, mediaH264Handle, "media_h264_decoder_create")
		purego.RegisterLibFunc(&mediaH264DecoderDecode, mediaH264Handle, "media_h264_decoder_decode")
		purego.RegisterLibFunc(&mediaH264DecoderDestroy, mediaH264Handle, "media_h264_decoder_destroy")
		purego.RegisterLibFunc(&mediaH264DecoderAvailable, mediaH264Handle, "media_h264_decoder_available")
		if mediaH264DecoderAvailable() == 0 {
			testDecoderErr = errors.New("H.264 decoder not compiled into libmedia_h264")
		}
	})
	return testDecoderErr
}

// decodeResult must live on the heap for purego on arm64.
type decodeResult struct {
	YPtr     uintptr
	UPtr     uintptr
	VPtr     uintptr
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
}

type testDecoder struct {
	handle uint64
	out    *decodeResult
}

func newTestDecoder(t *testing.T) *testDecoder {
	t.Helper()
	if err := loadTestDecoder(); err != nil {
		t.Skipf("native H.264 decoder not available: %v", err)
	}
	handle := mediaH264DecoderCreate(1)
	require.NotZero(t, handle, getH264Error())
	d := &testDecoder{handle: handle, out: &decodeResult{}}
	t.Cleanup(func() { mediaH264DecoderDestroy(d.handle) })
	return d
}

// decode returns the Y plane of the decoded picture, or nil when the
// decoder has no picture ready.
func (d *testDecoder) decode(au []byte) (y []byte, width, height int, err error) {
	out := d.out
	result := mediaH264DecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&au[0])),
		int32(len(au)),
		uintptr(unsafe.Pointer(&out.YPtr)),
		uintptr(unsafe.Pointer(&out.UPtr)),
		uintptr(unsafe.Pointer(&out.VPtr)),
		uintptr(unsafe.Pointer(&out.YStride)),
		uintptr(unsafe.Pointer(&out.UVStride)),
		uintptr(unsafe.Pointer(&out.Width)),
		uintptr(unsafe.Pointer(&out.Height)),
	)
	runtime.KeepAlive(au)
	runtime.KeepAlive(out)
	switch {
	case result < 0:
		return nil, 0, 0, fmt.Errorf("decode: %s", getH264Error())
	case result == 0:
		return nil, 0, 0, nil
	}

	width, height = int(out.Width), int(out.Height)
	y = make([]byte, width*height)
	for row := 0; row < height; row++ {
		line := unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(out.YPtr), row*int(out.YStride))), width)
		copy(y[row*width:], line)
	}
	return y, width, height, nil
}

func TestH264PCMEncoder_NativeDecode(t *testing.T) {
	dec := newTestDecoder(t)

	e, err := NewH264PCMEncoder(VideoEncoderConfig{Width: 48, Height: 32, FPS: 30})
	require.NoError(t, err)
	pic := grayPicture(48, 32)
	require.NoError(t, e.Submit(&Frame{Data: pic}))
	p, err := e.Retrieve()
	require.NoError(t, err)

	y, w, h, err := dec.decode(p.Data)
	require.NoError(t, err)
	if y == nil {
		y, w, h, err = dec.decode(p.Data)
		require.NoError(t, err)
	}
	require.NotNil(t, y)
	assert.Equal(t, 48, w)
	assert.Equal(t, 32, h)
	assert.Equal(t, pic[:48*32], y, "I_PCM is lossless")
}
