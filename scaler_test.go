package screenrec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoScaler_NoScaling(t *testing.T) {
	frame := &VideoFrame{
		Data: [][]byte{
			make([]byte, 640*480),
			make([]byte, 320*240),
			make([]byte, 320*240),
		},
		Stride:    []int{640, 320, 320},
		Width:     640,
		Height:    480,
		Format:    PixelFormatI420,
		Timestamp: 12345,
	}

	scaler := NewVideoScaler(640, 480, 640, 480, ScaleModeStretch)
	out := scaler.Scale(frame)

	// Should return same frame when no scaling needed
	if out != frame {
		t.Error("Expected same frame when no scaling needed")
	}
}

func TestVideoScaler_Downscale(t *testing.T) {
	// Create test frame with gradient
	srcW, srcH := 1280, 720
	dstW, dstH := 640, 360

	frame := createGradientFrame(srcW, srcH)

	scaler := NewVideoScaler(srcW, srcH, dstW, dstH, ScaleModeStretch)
	out := scaler.Scale(frame)

	if out.Width != dstW || out.Height != dstH {
		t.Errorf("Expected %dx%d, got %dx%d", dstW, dstH, out.Width, out.Height)
	}

	if len(out.Data[0]) != dstW*dstH {
		t.Errorf("Y plane size mismatch: expected %d, got %d", dstW*dstH, len(out.Data[0]))
	}

	if len(out.Data[1]) != (dstW/2)*(dstH/2) {
		t.Errorf("U plane size mismatch")
	}
}

func TestVideoScaler_Upscale(t *testing.T) {
	srcW, srcH := 320, 240
	dstW, dstH := 640, 480

	frame := createGradientFrame(srcW, srcH)

	scaler := NewVideoScaler(srcW, srcH, dstW, dstH, ScaleModeStretch)
	out := scaler.Scale(frame)

	if out.Width != dstW || out.Height != dstH {
		t.Errorf("Expected %dx%d, got %dx%d", dstW, dstH, out.Width, out.Height)
	}
}

func TestVideoScaler_Fill(t *testing.T) {
	// 16:9 source to 4:3 destination (should crop sides)
	srcW, srcH := 1920, 1080
	dstW, dstH := 640, 480

	frame := createGradientFrame(srcW, srcH)

	scaler := NewVideoScaler(srcW, srcH, dstW, dstH, ScaleModeFill)
	out := scaler.Scale(frame)

	if out.Width != dstW || out.Height != dstH {
		t.Errorf("Expected %dx%d, got %dx%d", dstW, dstH, out.Width, out.Height)
	}
}

func TestVideoScaler_BytesMatchPlanes(t *testing.T) {
	scaler := NewVideoScaler(640, 480, 320, 240, ScaleModeStretch)
	out := scaler.Scale(createGradientFrame(640, 480))

	b := scaler.Bytes()
	require.Len(t, b, I420Size(320, 240))
	assert.Equal(t, out.Data[0], b[:320*240])
	assert.Equal(t, out.Data[2], b[320*240+160*120:])
}

func TestConvertToI420_BGRA(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b byte
		y, u, v byte
	}{
		{"white", 255, 255, 255, 235, 128, 128},
		{"black", 0, 0, 0, 16, 128, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &VideoFrame{
				Data:   [][]byte{make([]byte, 4*4*4)},
				Stride: []int{4 * 4},
				Width:  4,
				Height: 4,
				Format: PixelFormatBGRA32,
			}
			for i := 0; i < len(src.Data[0]); i += 4 {
				src.Data[0][i], src.Data[0][i+1], src.Data[0][i+2], src.Data[0][i+3] = tt.b, tt.g, tt.r, 255
			}

			dst := make([]byte, I420Size(4, 4))
			require.NoError(t, ConvertToI420(src, Region{Width: 4, Height: 4}, dst))
			for i := 0; i < 16; i++ {
				assert.Equal(t, tt.y, dst[i], "Y[%d]", i)
			}
			for i := 16; i < 20; i++ {
				assert.Equal(t, tt.u, dst[i], "U[%d]", i-16)
				assert.Equal(t, tt.v, dst[i+4], "V[%d]", i-16)
			}
		})
	}
}

func TestConvertToI420_Crop(t *testing.T) {
	src := createGradientFrame(8, 8)
	for i := range src.Data[0] {
		src.Data[0][i] = byte(i)
	}

	dst := make([]byte, I420Size(4, 2))
	require.NoError(t, ConvertToI420(src, Region{X: 2, Y: 4, Width: 4, Height: 2}, dst))
	assert.Equal(t, []byte{34, 35, 36, 37, 42, 43, 44, 45}, dst[:8])
	assert.Equal(t, []byte{128, 128, 128, 128}, dst[8:])
}

func TestConvertToI420_NV12(t *testing.T) {
	src := &VideoFrame{
		Data:   [][]byte{make([]byte, 4*2), {10, 20, 30, 40}},
		Stride: []int{4, 4},
		Width:  4,
		Height: 2,
		Format: PixelFormatNV12,
	}

	dst := make([]byte, I420Size(4, 2))
	require.NoError(t, ConvertToI420(src, Region{Width: 4, Height: 2}, dst))
	assert.Equal(t, []byte{10, 30}, dst[8:10])
	assert.Equal(t, []byte{20, 40}, dst[10:12])
}

func TestConvertToI420_Errors(t *testing.T) {
	src := createGradientFrame(8, 8)
	dst := make([]byte, I420Size(8, 8))

	assert.Error(t, ConvertToI420(src, Region{Width: 3, Height: 4}, dst), "odd width")
	assert.Error(t, ConvertToI420(src, Region{X: 2, Width: 8, Height: 8}, dst), "outside frame")
	assert.Error(t, ConvertToI420(src, Region{Width: 8, Height: 8}, dst[:10]), "short destination")
	src.Format = PixelFormat(42)
	assert.Error(t, ConvertToI420(src, Region{Width: 8, Height: 8}, dst), "unknown format")
}

func createGradientFrame(width, height int) *VideoFrame {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)

	yData := make([]byte, ySize)
	uData := make([]byte, uvSize)
	vData := make([]byte, uvSize)

	// Fill Y with horizontal gradient
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			yData[y*width+x] = byte(x * 255 / width)
		}
	}

	// Fill U/V with neutral values
	for i := range uData {
		uData[i] = 128
		vData[i] = 128
	}

	return &VideoFrame{
		Data:   [][]byte{yData, uData, vData},
		Stride: []int{width, width / 2, width / 2},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}
}

func BenchmarkVideoScaler_720pTo480p(b *testing.B) {
	frame := createGradientFrame(1280, 720)
	scaler := NewVideoScaler(1280, 720, 640, 480, ScaleModeFill)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scaler.Scale(frame)
	}
}

func BenchmarkVideoScaler_1080pTo720p(b *testing.B) {
	frame := createGradientFrame(1920, 1080)
	scaler := NewVideoScaler(1920, 1080, 1280, 720, ScaleModeFill)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scaler.Scale(frame)
	}
}
