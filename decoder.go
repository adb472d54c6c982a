package screenrec

import (
	"fmt"
	"io"
)

// Decoded is one decoded unit. Exactly one field is set.
type Decoded struct {
	Video *VideoFrame
	Audio *AudioSamples
}

// Decoder turns raw capture packets into frames.
//
// Submit(nil) signals end of stream. Retrieve returns ErrPending when
// nothing is ready and io.EOF once a flushed decoder is empty. The
// returned frame is valid until the next Submit.
type Decoder interface {
	Submit(p *RawPacket) error
	Retrieve() (*Decoded, error)
}

// NewDecoder creates the decoder for a capture stream.
func NewDecoder(info StreamInfo) (Decoder, error) {
	switch info.Kind {
	case MediaKindVideo:
		return NewRawVideoDecoder(info)
	case MediaKindAudio:
		return NewPCMDecoder(info)
	default:
		return nil, fmt.Errorf("no decoder for %v stream", info.Kind)
	}
}

// RawVideoDecoder wraps raw pixel packets as video frames.
type RawVideoDecoder struct {
	info    StreamInfo
	size    int
	frame   VideoFrame
	pending bool
	eos     bool
}

// NewRawVideoDecoder creates a decoder for raw frames described by info.
func NewRawVideoDecoder(info StreamInfo) (*RawVideoDecoder, error) {
	size := info.PixelFormat.FrameSize(info.Width, info.Height)
	if info.Width <= 0 || info.Height <= 0 || size == 0 {
		return nil, fmt.Errorf("invalid raw video stream %dx%d %v", info.Width, info.Height, info.PixelFormat)
	}
	return &RawVideoDecoder{info: info, size: size}, nil
}

// Submit implements Decoder.
func (d *RawVideoDecoder) Submit(p *RawPacket) error {
	if d.eos {
		return fmt.Errorf("decoder already flushed")
	}
	if p == nil {
		d.eos = true
		return nil
	}
	if len(p.Data) != d.size {
		return fmt.Errorf("raw frame has %d bytes, want %d", len(p.Data), d.size)
	}

	w, h := d.info.Width, d.info.Height
	f := &d.frame
	f.Width, f.Height = w, h
	f.Format = d.info.PixelFormat
	f.Timestamp = p.Timestamp

	switch d.info.PixelFormat {
	case PixelFormatI420:
		ySize, uvSize := w*h, (w/2)*(h/2)
		f.Data = [][]byte{p.Data[:ySize], p.Data[ySize : ySize+uvSize], p.Data[ySize+uvSize:]}
		f.Stride = []int{w, w / 2, w / 2}
	case PixelFormatNV12:
		f.Data = [][]byte{p.Data[:w*h], p.Data[w*h:]}
		f.Stride = []int{w, w}
	default:
		f.Data = [][]byte{p.Data}
		f.Stride = []int{d.size / h}
	}
	d.pending = true
	return nil
}

// Retrieve implements Decoder.
func (d *RawVideoDecoder) Retrieve() (*Decoded, error) {
	if d.pending {
		d.pending = false
		return &Decoded{Video: &d.frame}, nil
	}
	if d.eos {
		return nil, io.EOF
	}
	return nil, ErrPending
}

// PCMDecoder wraps interleaved PCM packets as audio samples.
type PCMDecoder struct {
	info    StreamInfo
	frame   int // Bytes per sample frame
	samples AudioSamples
	pending bool
	eos     bool
}

// NewPCMDecoder creates a decoder for PCM described by info.
func NewPCMDecoder(info StreamInfo) (*PCMDecoder, error) {
	frame := info.Channels * info.SampleFormat.BytesPerSample()
	if info.SampleRate <= 0 || frame == 0 {
		return nil, fmt.Errorf("invalid PCM stream %d Hz, %d channels, %v", info.SampleRate, info.Channels, info.SampleFormat)
	}
	return &PCMDecoder{info: info, frame: frame}, nil
}

// Submit implements Decoder.
func (d *PCMDecoder) Submit(p *RawPacket) error {
	if d.eos {
		return fmt.Errorf("decoder already flushed")
	}
	if p == nil {
		d.eos = true
		return nil
	}
	if len(p.Data)%d.frame != 0 {
		return fmt.Errorf("%d bytes is not a whole number of %d-byte samples", len(p.Data), d.frame)
	}
	d.samples = AudioSamples{
		Data:        p.Data,
		SampleRate:  d.info.SampleRate,
		Channels:    d.info.Channels,
		SampleCount: len(p.Data) / d.frame,
		Format:      d.info.SampleFormat,
		Timestamp:   p.Timestamp,
	}
	d.pending = d.samples.SampleCount > 0
	return nil
}

// Retrieve implements Decoder.
func (d *PCMDecoder) Retrieve() (*Decoded, error) {
	if d.pending {
		d.pending = false
		return &Decoded{Audio: &d.samples}, nil
	}
	if d.eos {
		return nil, io.EOF
	}
	return nil, ErrPending
}
