package screenrec

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternNoise:
		return "Noise"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// TestPatternConfig configures a synthetic screen source.
type TestPatternConfig struct {
	Width   int         // Frame width (default: 1280)
	Height  int         // Frame height (default: 720)
	FPS     int         // Frames per second (default: 30)
	Pattern PatternType // Pattern type (default: ColorBars)
	Frames  int         // Frames before io.EOF (0 = unlimited)
	Unpaced bool        // Deliver frames as fast as they are read

	// For SolidColor pattern
	SolidR, SolidG, SolidB uint8

	// For Checkerboard pattern
	CheckerSize int // Size of each checker square (default: 32)
}

// DefaultTestPatternConfig returns a default test pattern configuration.
func DefaultTestPatternConfig() TestPatternConfig {
	return TestPatternConfig{
		Width:       1280,
		Height:      720,
		FPS:         30,
		Pattern:     PatternColorBars,
		CheckerSize: 32,
	}
}

// TestPatternSource generates BGRA frames the way a screen grabber
// delivers them.
type TestPatternSource struct {
	config TestPatternConfig

	frame         []byte // Packed BGRA, reused for every packet
	frameDuration time.Duration
	frameCount    int
	startTime     time.Time
	opened        bool

	// Random state for noise pattern
	rngState uint64

	mu sync.Mutex
}

// NewTestPatternSource creates a new test pattern source.
func NewTestPatternSource(config TestPatternConfig) *TestPatternSource {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.CheckerSize <= 0 {
		config.CheckerSize = 32
	}

	return &TestPatternSource{
		config:        config,
		frame:         make([]byte, PixelFormatBGRA32.FrameSize(config.Width, config.Height)),
		frameDuration: time.Second / time.Duration(config.FPS),
		rngState:      0x9E3779B97F4A7C15,
	}
}

// Open implements CaptureSource.
func (s *TestPatternSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return fmt.Errorf("source already open")
	}
	s.opened = true
	s.startTime = time.Now()
	s.frameCount = 0
	return nil
}

// Streams implements CaptureSource.
func (s *TestPatternSource) Streams() []StreamInfo {
	return []StreamInfo{{
		Index:       0,
		Kind:        MediaKindVideo,
		Width:       s.config.Width,
		Height:      s.config.Height,
		FPS:         s.config.FPS,
		PixelFormat: PixelFormatBGRA32,
	}}
}

// ReadPacket implements CaptureSource.
func (s *TestPatternSource) ReadPacket(ctx context.Context) (*RawPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil, fmt.Errorf("source not open")
	}
	if s.config.Frames > 0 && s.frameCount >= s.config.Frames {
		return nil, io.EOF
	}

	pts := time.Duration(s.frameCount) * s.frameDuration
	if !s.config.Unpaced {
		if wait := time.Until(s.startTime.Add(pts)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if s.frameCount == 0 || s.config.Pattern == PatternMovingBox || s.config.Pattern == PatternNoise {
		s.generatePattern(s.frameCount)
	}
	s.frameCount++

	return &RawPacket{
		StreamIndex: 0,
		Data:        s.frame,
		Timestamp:   pts.Nanoseconds(),
	}, nil
}

// Close implements CaptureSource.
func (s *TestPatternSource) Close() error {
	s.mu.Lock()
	s.opened = false
	s.mu.Unlock()
	return nil
}

func (s *TestPatternSource) generatePattern(frameNum int) {
	switch s.config.Pattern {
	case PatternColorBars:
		s.generateColorBars()
	case PatternGradient:
		s.generateGradient()
	case PatternCheckerboard:
		s.generateCheckerboard()
	case PatternSolidColor:
		s.fill(s.config.SolidR, s.config.SolidG, s.config.SolidB)
	case PatternNoise:
		s.generateNoise()
	case PatternMovingBox:
		s.generateMovingBox(frameNum)
	default:
		s.generateColorBars()
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (s *TestPatternSource) setPixel(x, y int, r, g, b uint8) {
	i := (y*s.config.Width + x) * 4
	s.frame[i] = b
	s.frame[i+1] = g
	s.frame[i+2] = r
	s.frame[i+3] = 0xFF
}

func (s *TestPatternSource) fill(r, g, b uint8) {
	for y := 0; y < s.config.Height; y++ {
		for x := 0; x < s.config.Width; x++ {
			s.setPixel(x, y, r, g, b)
		}
	}
}

func (s *TestPatternSource) generateColorBars() {
	w, h := s.config.Width, s.config.Height
	barWidth := max(w/8, 1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rgb := colorBarsRGB[min(x/barWidth, 7)]
			s.setPixel(x, y, rgb[0], rgb[1], rgb[2])
		}
	}
}

func (s *TestPatternSource) generateGradient() {
	w, h := s.config.Width, s.config.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			s.setPixel(x, y, v, v, v)
		}
	}
}

func (s *TestPatternSource) generateCheckerboard() {
	size := s.config.CheckerSize
	for y := 0; y < s.config.Height; y++ {
		for x := 0; x < s.config.Width; x++ {
			v := uint8(16)
			if ((x/size)+(y/size))%2 == 0 {
				v = 235
			}
			s.setPixel(x, y, v, v, v)
		}
	}
}

func (s *TestPatternSource) generateNoise() {
	// xorshift64
	for y := 0; y < s.config.Height; y++ {
		for x := 0; x < s.config.Width; x++ {
			s.rngState ^= s.rngState << 13
			s.rngState ^= s.rngState >> 7
			s.rngState ^= s.rngState << 17
			v := uint8(s.rngState)
			s.setPixel(x, y, v, v, v)
		}
	}
}

func (s *TestPatternSource) generateMovingBox(frameNum int) {
	w, h := s.config.Width, s.config.Height
	s.fill(16, 16, 16)

	// Box moves in a circle
	boxSize := min(100, min(w, h)/2)
	radius := float64(min(w, h)) / 4
	angle := float64(frameNum) * 0.05
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < boxY+boxSize && y < h; y++ {
		for x := max(boxX, 0); x < boxX+boxSize && x < w; x++ {
			s.setPixel(x, y, 235, 235, 235)
		}
	}
}

func init() {
	RegisterCaptureSource(SourceTypeTestPattern, func(config interface{}) (CaptureSource, error) {
		cfg, ok := config.(*TestPatternConfig)
		if !ok {
			defaultCfg := DefaultTestPatternConfig()
			cfg = &defaultCfg
		}
		return NewTestPatternSource(*cfg), nil
	})
}
