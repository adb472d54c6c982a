package screenrec

import (
	"fmt"
	"io"
)

// PCMEncoder packages interleaved S16 samples as packets. It never
// buffers, so every Submit yields exactly one packet.
type PCMEncoder struct {
	config  AudioEncoderConfig
	pending *Packet
	eos     bool
	closed  bool
}

// NewPCMEncoder creates a PCM encoder.
func NewPCMEncoder(config AudioEncoderConfig) (*PCMEncoder, error) {
	if config.SampleRate <= 0 || config.Channels <= 0 {
		return nil, fmt.Errorf("invalid audio format %d Hz, %d channels", config.SampleRate, config.Channels)
	}
	if config.FrameSize <= 0 {
		config.FrameSize = 1024
	}
	return &PCMEncoder{config: config}, nil
}

// SetFrameSize implements FrameSizeSetter.
func (e *PCMEncoder) SetFrameSize(samples int) {
	e.config.FrameSize = samples
}

// Submit implements Encoder.
func (e *PCMEncoder) Submit(f *Frame) error {
	if e.closed || e.eos {
		return ErrEncoderClosed
	}
	if f == nil {
		e.eos = true
		return nil
	}
	if e.pending != nil {
		return fmt.Errorf("packet %d not retrieved", e.pending.PTS)
	}

	bytesPerFrame := e.config.Channels * 2
	samples := f.Samples
	if samples == 0 {
		samples = len(f.Data) / bytesPerFrame
	}
	if samples > e.config.FrameSize {
		return fmt.Errorf("%d samples exceed frame size %d", samples, e.config.FrameSize)
	}
	data := make([]byte, samples*bytesPerFrame)
	copy(data, f.Data)

	e.pending = &Packet{
		PTS:      f.PTS,
		DTS:      f.PTS,
		Duration: int64(samples),
		Keyframe: true,
		Data:     data,
	}
	return nil
}

// Retrieve implements Encoder.
func (e *PCMEncoder) Retrieve() (*Packet, error) {
	if p := e.pending; p != nil {
		e.pending = nil
		return p, nil
	}
	if e.eos {
		return nil, io.EOF
	}
	return nil, ErrPending
}

// TimeBase implements Encoder.
func (e *PCMEncoder) TimeBase() Rational {
	return Rational{Num: 1, Den: int64(e.config.SampleRate)}
}

// Params implements Encoder.
func (e *PCMEncoder) Params() CodecParams {
	return CodecParams{
		Codec:      CodecPCMS16LE,
		SampleRate: e.config.SampleRate,
		Channels:   e.config.Channels,
		FrameSize:  e.config.FrameSize,
	}
}

// Close implements Encoder.
func (e *PCMEncoder) Close() error {
	e.closed = true
	e.pending = nil
	return nil
}
