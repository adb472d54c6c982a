package screenrec

import (
	"fmt"
)

// Converter turns decoded frames into the canonical bytes queued for the
// encoder. The returned slice is valid until the next call.
type Converter interface {
	// Convert converts one decoded frame. It may return no bytes.
	Convert(d *Decoded) ([]byte, error)

	// Flush returns any output still buffered inside the converter.
	Flush() ([]byte, error)

	// UnitSize is the number of bytes the encoder consumes per frame.
	UnitSize() int
}

// VideoConverterConfig configures a VideoConverter.
type VideoConverterConfig struct {
	Crop      Region    // Region of the source frame (zero = whole frame)
	DstWidth  int       // Output width
	DstHeight int       // Output height
	Mode      ScaleMode // Aspect handling when crop and output sizes differ
}

// VideoConverter crops, converts to I420 and scales. Output size is fixed
// at construction.
type VideoConverter struct {
	config  VideoConverterConfig
	cropBuf []byte
	scaler  *VideoScaler
}

// NewVideoConverter creates a converter for frames described by src.
func NewVideoConverter(src StreamInfo, config VideoConverterConfig) (*VideoConverter, error) {
	if config.Crop.Width == 0 || config.Crop.Height == 0 {
		config.Crop = Region{Width: src.Width &^ 1, Height: src.Height &^ 1}
	}
	if config.DstWidth == 0 || config.DstHeight == 0 {
		config.DstWidth, config.DstHeight = config.Crop.Width, config.Crop.Height
	}
	c := config.Crop
	if c.X < 0 || c.Y < 0 || c.X+c.Width > src.Width || c.Y+c.Height > src.Height {
		return nil, fmt.Errorf("crop %dx%d+%d+%d outside %dx%d source", c.Width, c.Height, c.X, c.Y, src.Width, src.Height)
	}
	if config.DstWidth%2 != 0 || config.DstHeight%2 != 0 || c.Width%2 != 0 || c.Height%2 != 0 {
		return nil, fmt.Errorf("dimensions must be even: crop %dx%d, output %dx%d", c.Width, c.Height, config.DstWidth, config.DstHeight)
	}

	v := &VideoConverter{
		config:  config,
		cropBuf: make([]byte, I420Size(c.Width, c.Height)),
	}
	if c.Width != config.DstWidth || c.Height != config.DstHeight {
		v.scaler = NewVideoScaler(c.Width, c.Height, config.DstWidth, config.DstHeight, config.Mode)
	}
	return v, nil
}

// UnitSize implements Converter.
func (v *VideoConverter) UnitSize() int {
	return I420Size(v.config.DstWidth, v.config.DstHeight)
}

// Convert implements Converter.
func (v *VideoConverter) Convert(d *Decoded) ([]byte, error) {
	if d.Video == nil {
		return nil, fmt.Errorf("video converter got no video frame")
	}
	if err := ConvertToI420(d.Video, v.config.Crop, v.cropBuf); err != nil {
		return nil, err
	}
	if v.scaler == nil {
		return v.cropBuf, nil
	}

	w, h := v.config.Crop.Width, v.config.Crop.Height
	ySize, uvSize := w*h, (w/2)*(h/2)
	v.scaler.Scale(&VideoFrame{
		Data:   [][]byte{v.cropBuf[:ySize], v.cropBuf[ySize : ySize+uvSize], v.cropBuf[ySize+uvSize:]},
		Stride: []int{w, w / 2, w / 2},
		Width:  w,
		Height: h,
		Format: PixelFormatI420,
	})
	return v.scaler.Bytes(), nil
}

// Flush implements Converter. Video conversion buffers nothing.
func (v *VideoConverter) Flush() ([]byte, error) {
	return nil, nil
}

// AudioConverterConfig configures an AudioConverter.
type AudioConverterConfig struct {
	OutRate     int // Output sample rate
	OutChannels int // Output channels
	FrameSize   int // Initial nominal samples per encoder frame (default: 1024)

	// OnFrameSizeChange is called on the capture goroutine when the
	// destination buffer grows. The new size becomes the nominal samples
	// per encoder frame.
	OnFrameSizeChange func(samples int)
}

// AudioConverter resamples to interleaved S16 at the output rate.
type AudioConverter struct {
	config    AudioConverterConfig
	resampler *Resampler
	dst       []byte
	capacity  int // Samples per channel dst can hold
}

// NewAudioConverter creates a converter for samples described by src.
func NewAudioConverter(src StreamInfo, config AudioConverterConfig) (*AudioConverter, error) {
	if config.FrameSize <= 0 {
		config.FrameSize = 1024
	}
	r, err := NewResampler(src.SampleRate, src.Channels, src.SampleFormat, config.OutRate, config.OutChannels)
	if err != nil {
		return nil, newError(ErrorKindResamplerInit, "create resampler", err)
	}
	a := &AudioConverter{
		config:    config,
		resampler: r,
	}
	a.grow(config.FrameSize)
	return a, nil
}

// FrameSize returns the current nominal samples per encoder frame.
func (a *AudioConverter) FrameSize() int {
	return a.capacity
}

// UnitSize implements Converter.
func (a *AudioConverter) UnitSize() int {
	return a.capacity * a.config.OutChannels * 2
}

func (a *AudioConverter) grow(samples int) {
	a.capacity = samples
	a.dst = make([]byte, samples*a.config.OutChannels*2)
}

// ensure reallocates when need exceeds the current capacity and
// propagates the new nominal frame size.
func (a *AudioConverter) ensure(need int) {
	if need <= a.capacity {
		return
	}
	a.grow(need)
	if a.config.OnFrameSizeChange != nil {
		a.config.OnFrameSizeChange(need)
	}
}

// Convert implements Converter. A conversion failure is fatal for the
// session and is reported as a resampler error.
func (a *AudioConverter) Convert(d *Decoded) ([]byte, error) {
	s := d.Audio
	if s == nil {
		return nil, fmt.Errorf("audio converter got no samples")
	}
	a.ensure(a.resampler.OutputSamples(s.SampleCount))

	n, err := a.resampler.Process(s.Data, s.SampleCount, a.dst)
	if err != nil {
		return nil, newError(ErrorKindResamplerInit, "resample", err)
	}
	if n < 0 {
		return nil, newError(ErrorKindResamplerInit, "resample", fmt.Errorf("negative output sample count %d", n))
	}
	return a.dst[:n*a.config.OutChannels*2], nil
}

// Flush implements Converter.
func (a *AudioConverter) Flush() ([]byte, error) {
	a.ensure(a.resampler.OutputSamples(0))
	n, err := a.resampler.Flush(a.dst)
	if err != nil {
		return nil, newError(ErrorKindResamplerInit, "flush resampler", err)
	}
	return a.dst[:n*a.config.OutChannels*2], nil
}
