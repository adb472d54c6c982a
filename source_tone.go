package screenrec

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// ToneConfig configures a synthetic microphone source.
type ToneConfig struct {
	SampleRate int           // Sample rate (default: 44100)
	Channels   int           // Number of channels (default: 2)
	FrameSize  int           // Samples per packet (default: 1024)
	Format     AudioFormat   // Sample format (default: S16)
	Frequency  float64       // Tone frequency in Hz (default: 440)
	Amplitude  float64       // Amplitude 0.0-1.0 (default: 0.5)
	Duration   time.Duration // Length before io.EOF (0 = unlimited)
	Unpaced    bool          // Deliver packets as fast as they are read
}

// DefaultToneConfig returns a default tone configuration.
func DefaultToneConfig() ToneConfig {
	return ToneConfig{
		SampleRate: 44100,
		Channels:   2,
		FrameSize:  1024,
		Format:     AudioFormatS16,
		Frequency:  440.0, // A4
		Amplitude:  0.5,
	}
}

// ToneSource generates an interleaved sine tone.
type ToneSource struct {
	config ToneConfig

	sampleData []byte
	phase      float64
	produced   int64 // Samples per channel delivered so far
	limit      int64 // Samples per channel before io.EOF, 0 = unlimited
	startTime  time.Time
	opened     bool

	mu sync.Mutex
}

// NewToneSource creates a new tone source.
func NewToneSource(config ToneConfig) *ToneSource {
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FrameSize <= 0 {
		config.FrameSize = 1024
	}
	if config.Frequency <= 0 {
		config.Frequency = 440.0
	}
	if config.Amplitude <= 0 {
		config.Amplitude = 0.5
	}
	if config.Amplitude > 1.0 {
		config.Amplitude = 1.0
	}

	s := &ToneSource{
		config:     config,
		sampleData: make([]byte, config.FrameSize*config.Channels*config.Format.BytesPerSample()),
	}
	if config.Duration > 0 {
		s.limit = int64(config.Duration) * int64(config.SampleRate) / int64(time.Second)
	}
	return s
}

// Open implements CaptureSource.
func (s *ToneSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return fmt.Errorf("source already open")
	}
	s.opened = true
	s.startTime = time.Now()
	return nil
}

// Streams implements CaptureSource.
func (s *ToneSource) Streams() []StreamInfo {
	return []StreamInfo{{
		Index:        0,
		Kind:         MediaKindAudio,
		SampleRate:   s.config.SampleRate,
		Channels:     s.config.Channels,
		SampleFormat: s.config.Format,
	}}
}

// ReadPacket implements CaptureSource. The last packet of a finite tone
// may be shorter than FrameSize.
func (s *ToneSource) ReadPacket(ctx context.Context) (*RawPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil, fmt.Errorf("source not open")
	}
	n := int64(s.config.FrameSize)
	if s.limit > 0 {
		if s.produced >= s.limit {
			return nil, io.EOF
		}
		n = min(n, s.limit-s.produced)
	}

	ts := time.Duration(s.produced * int64(time.Second) / int64(s.config.SampleRate))
	if !s.config.Unpaced {
		if wait := time.Until(s.startTime.Add(ts)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	data := s.sampleData[:int(n)*s.config.Channels*s.config.Format.BytesPerSample()]
	s.generateSineWave(data, int(n))
	s.produced += n

	return &RawPacket{StreamIndex: 0, Data: data, Timestamp: ts.Nanoseconds()}, nil
}

// Close implements CaptureSource.
func (s *ToneSource) Close() error {
	s.mu.Lock()
	s.opened = false
	s.mu.Unlock()
	return nil
}

func (s *ToneSource) generateSineWave(data []byte, samples int) {
	phaseIncrement := 2.0 * math.Pi * s.config.Frequency / float64(s.config.SampleRate)
	bps := s.config.Format.BytesPerSample()

	idx := 0
	for i := 0; i < samples; i++ {
		v := s.config.Amplitude * math.Sin(s.phase)
		s.phase += phaseIncrement
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}

		for c := 0; c < s.config.Channels; c++ {
			if s.config.Format == AudioFormatF32 {
				binary.LittleEndian.PutUint32(data[idx:], math.Float32bits(float32(v)))
			} else {
				binary.LittleEndian.PutUint16(data[idx:], uint16(int16(v*32767.0)))
			}
			idx += bps
		}
	}
}

func init() {
	RegisterCaptureSource(SourceTypeTone, func(config interface{}) (CaptureSource, error) {
		cfg, ok := config.(*ToneConfig)
		if !ok {
			defaultCfg := DefaultToneConfig()
			cfg = &defaultCfg
		}
		return NewToneSource(*cfg), nil
	})
}
