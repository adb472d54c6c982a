package screenrec

import (
	"io"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grayPicture returns an I420 picture with a horizontal luma ramp.
func grayPicture(w, h int) []byte {
	pic := make([]byte, I420Size(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pic[y*w+x] = byte(16 + (x*200)/w)
		}
	}
	for i := w * h; i < len(pic); i++ {
		pic[i] = 128
	}
	return pic
}

func TestH264PCMEncoder_ParameterSets(t *testing.T) {
	tests := []struct {
		width, height int
	}{
		{320, 240},
		{100, 60},
		{1280, 720},
		{16, 16},
	}

	for _, tt := range tests {
		e, err := NewH264PCMEncoder(VideoEncoderConfig{Width: tt.width, Height: tt.height, FPS: 30})
		require.NoError(t, err)

		var sps h264.SPS
		require.NoError(t, sps.Unmarshal(e.SPS()))
		assert.Equal(t, tt.width, sps.Width(), "%dx%d", tt.width, tt.height)
		assert.Equal(t, tt.height, sps.Height(), "%dx%d", tt.width, tt.height)
		assert.Equal(t, uint8(66), sps.ProfileIdc)

		assert.Equal(t, h264.NALUTypePPS, h264.NALUType(e.PPS()[0]&0x1F))

		params := e.Params()
		assert.Equal(t, CodecH264, params.Codec)
		assert.Equal(t, e.SPS(), params.SPS)
		assert.Equal(t, Rational{Num: 1, Den: 30}, e.TimeBase())
	}
}

func TestH264PCMEncoder_AccessUnit(t *testing.T) {
	e, err := NewH264PCMEncoder(VideoEncoderConfig{Width: 32, Height: 32, FPS: 25})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Submit(&Frame{PTS: 7, Data: grayPicture(32, 32)}))
	p, err := e.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.PTS)
	assert.Equal(t, int64(7), p.DTS)
	assert.Equal(t, int64(1), p.Duration)
	assert.True(t, p.Keyframe)

	var au h264.AnnexB
	require.NoError(t, au.Unmarshal(p.Data))
	require.Len(t, au, 3)
	assert.Equal(t, h264.NALUTypeSPS, h264.NALUType(au[0][0]&0x1F))
	assert.Equal(t, h264.NALUTypePPS, h264.NALUType(au[1][0]&0x1F))
	assert.Equal(t, h264.NALUTypeIDR, h264.NALUType(au[2][0]&0x1F))

	// Four I_PCM macroblocks carry at least their raw samples.
	assert.Greater(t, len(au[2]), 4*384)
}

func TestH264PCMEncoder_Delay(t *testing.T) {
	e, err := NewH264PCMEncoder(VideoEncoderConfig{Width: 16, Height: 16, FPS: 30, Delay: 2})
	require.NoError(t, err)

	pic := grayPicture(16, 16)
	for i := 0; i < 2; i++ {
		require.NoError(t, e.Submit(&Frame{PTS: int64(i), Data: pic}))
		_, err := e.Retrieve()
		assert.ErrorIs(t, err, ErrPending)
	}
	require.NoError(t, e.Submit(&Frame{PTS: 2, Data: pic}))
	p, err := e.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.PTS)

	require.NoError(t, e.Submit(nil))
	for _, want := range []int64{1, 2} {
		p, err := e.Retrieve()
		require.NoError(t, err)
		assert.Equal(t, want, p.PTS)
	}
	_, err = e.Retrieve()
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, e.Submit(&Frame{Data: pic}), ErrEncoderClosed)
}

func TestH264PCMEncoder_Errors(t *testing.T) {
	_, err := NewH264PCMEncoder(VideoEncoderConfig{Width: 15, Height: 16})
	assert.Error(t, err)

	e, err := NewH264PCMEncoder(VideoEncoderConfig{Width: 16, Height: 16})
	require.NoError(t, err)
	assert.Error(t, e.Submit(&Frame{Data: make([]byte, 10)}))
}

func TestAddEmulationPrevention(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{[]byte{0, 0, 1}, []byte{0, 0, 3, 1}},
		{[]byte{0, 0, 4}, []byte{0, 0, 4}},
		{[]byte{0, 0, 0, 0}, []byte{0, 0, 3, 0, 0}},
		{[]byte{1, 0, 0, 3, 0}, []byte{1, 0, 0, 3, 3, 0}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, addEmulationPrevention(tt.in))
	}
}

func TestBitWriter_ExpGolomb(t *testing.T) {
	var w bitWriter
	w.writeUE(0) // 1
	w.writeUE(1) // 010
	w.writeUE(2) // 011
	w.writeSE(-1) // 011
	w.writeTrailingBits()
	// 1010 0110 1110 0000
	assert.Equal(t, []byte{0xA6, 0xE0}, w.bytes())
}
