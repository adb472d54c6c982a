package screenrec

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestPatternSource_Defaults(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{})

	streams := source.Streams()
	require.Len(t, streams, 1)
	s := streams[0]
	if s.Width != 1280 || s.Height != 720 {
		t.Errorf("Default size = %dx%d, want 1280x720", s.Width, s.Height)
	}
	if s.FPS != 30 {
		t.Errorf("Default FPS = %d, want 30", s.FPS)
	}
	if s.Kind != MediaKindVideo || s.PixelFormat != PixelFormatBGRA32 {
		t.Errorf("Stream = %v/%v, want video/BGRA32", s.Kind, s.PixelFormat)
	}
}

func TestTestPatternSource_OpenClose(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 320, Height: 240})
	ctx := context.Background()

	_, err := source.ReadPacket(ctx)
	assert.Error(t, err, "read before open")

	require.NoError(t, source.Open(ctx))
	assert.Error(t, source.Open(ctx), "double open")
	assert.NoError(t, source.Close())
	assert.NoError(t, source.Close(), "double close")
}

func TestTestPatternSource_ReadPacket(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{
		Width:   320,
		Height:  240,
		Pattern: PatternColorBars,
		Unpaced: true,
	})
	ctx := context.Background()
	require.NoError(t, source.Open(ctx))
	defer source.Close()

	pkt, err := source.ReadPacket(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pkt.StreamIndex)
	assert.Len(t, pkt.Data, 320*240*4)
	assert.Equal(t, int64(0), pkt.Timestamp)

	// First bar is 75% white in BGRA.
	assert.Equal(t, []byte{192, 192, 192, 255}, pkt.Data[:4])

	pkt, err = source.ReadPacket(ctx)
	require.NoError(t, err)
	assert.Equal(t, (time.Second / 30).Nanoseconds(), pkt.Timestamp)
}

func TestTestPatternSource_Frames(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 64, Height: 64, Frames: 3, Unpaced: true})
	ctx := context.Background()
	require.NoError(t, source.Open(ctx))
	defer source.Close()

	for i := 0; i < 3; i++ {
		_, err := source.ReadPacket(ctx)
		require.NoError(t, err)
	}
	_, err := source.ReadPacket(ctx)
	assert.True(t, errors.Is(err, io.EOF), "got %v", err)
}

func TestTestPatternSource_AllPatterns(t *testing.T) {
	patterns := []PatternType{
		PatternColorBars,
		PatternGradient,
		PatternCheckerboard,
		PatternSolidColor,
		PatternNoise,
		PatternMovingBox,
	}

	for _, p := range patterns {
		t.Run(p.String(), func(t *testing.T) {
			source := NewTestPatternSource(TestPatternConfig{
				Width:   64,
				Height:  48,
				Pattern: p,
				SolidR:  10, SolidG: 20, SolidB: 30,
				Unpaced: true,
			})
			ctx := context.Background()
			require.NoError(t, source.Open(ctx))
			defer source.Close()

			pkt, err := source.ReadPacket(ctx)
			require.NoError(t, err)
			require.Len(t, pkt.Data, 64*48*4)
			for i := 3; i < len(pkt.Data); i += 4 {
				if pkt.Data[i] != 0xFF {
					t.Fatalf("alpha at pixel %d = %d", i/4, pkt.Data[i])
				}
			}
			if p == PatternSolidColor {
				assert.Equal(t, []byte{30, 20, 10, 255}, pkt.Data[:4])
			}
		})
	}
}

func TestTestPatternSource_FrameTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	source := NewTestPatternSource(TestPatternConfig{Width: 64, Height: 64, FPS: 30})
	ctx := context.Background()
	require.NoError(t, source.Open(ctx))
	defer source.Close()

	start := time.Now()
	for i := 0; i < 10; i++ {
		_, err := source.ReadPacket(ctx)
		require.NoError(t, err)
	}
	// Nine frame intervals at 30 fps.
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestTestPatternSource_ContextCancellation(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 64, Height: 64, FPS: 1})
	require.NoError(t, source.Open(context.Background()))
	defer source.Close()

	_, err := source.ReadPacket(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = source.ReadPacket(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTestPatternSource_Registry(t *testing.T) {
	require.True(t, IsCaptureSourceAvailable(SourceTypeTestPattern))

	cfg := TestPatternConfig{Width: 320, Height: 240}
	src, err := CreateCaptureSource(SourceTypeTestPattern, &cfg)
	require.NoError(t, err)
	assert.Equal(t, 320, src.Streams()[0].Width)
}

func TestToneSource_Duration(t *testing.T) {
	source := NewToneSource(ToneConfig{SampleRate: 8000, Channels: 2, FrameSize: 1500, Duration: 250 * time.Millisecond, Unpaced: true})
	ctx := context.Background()
	require.NoError(t, source.Open(ctx))
	defer source.Close()

	info := source.Streams()[0]
	assert.Equal(t, MediaKindAudio, info.Kind)
	assert.Equal(t, AudioFormatS16, info.SampleFormat)

	// 2000 samples: one full packet, then a 500-sample remainder.
	var samples int
	for {
		pkt, err := source.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		samples += len(pkt.Data) / 4
	}
	assert.Equal(t, 2000, samples)
}

func TestToneSource_Amplitude(t *testing.T) {
	source := NewToneSource(ToneConfig{SampleRate: 44100, Channels: 1, FrameSize: 441, Amplitude: 0.5, Unpaced: true})
	ctx := context.Background()
	require.NoError(t, source.Open(ctx))
	defer source.Close()

	pkt, err := source.ReadPacket(ctx)
	require.NoError(t, err)
	var peak int16
	for i := 0; i+1 < len(pkt.Data); i += 2 {
		v := int16(uint16(pkt.Data[i]) | uint16(pkt.Data[i+1])<<8)
		if v > peak {
			peak = v
		}
	}
	assert.InDelta(t, 16383, int(peak), 200)
}

func BenchmarkTestPatternSource_ColorBars(b *testing.B) {
	benchmarkPattern(b, PatternColorBars)
}

func BenchmarkTestPatternSource_MovingBox(b *testing.B) {
	benchmarkPattern(b, PatternMovingBox)
}

func benchmarkPattern(b *testing.B, p PatternType) {
	source := NewTestPatternSource(TestPatternConfig{Width: 1280, Height: 720, Pattern: p, Unpaced: true})
	ctx := context.Background()
	if err := source.Open(ctx); err != nil {
		b.Fatal(err)
	}
	defer source.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := source.ReadPacket(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
