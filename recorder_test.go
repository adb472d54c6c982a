package screenrec

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticConfig records 60 frames of 64x48 video and two seconds of
// stereo tone, both delivered as fast as they are read.
func syntheticConfig(t *testing.T, name string) Config {
	t.Helper()
	pattern := DefaultTestPatternConfig()
	pattern.Width, pattern.Height = 64, 48
	pattern.Pattern = PatternMovingBox
	pattern.Frames = 60
	pattern.Unpaced = true

	tone := DefaultToneConfig()
	tone.Duration = 2 * time.Second
	tone.Unpaced = true

	cfg := DefaultConfig()
	cfg.OutputPath = filepath.Join(t.TempDir(), name)
	cfg.Width, cfg.Height = 0, 0
	cfg.VideoEncoder = VideoEncoderBuiltin
	cfg.QueueFrames = 8
	cfg.VideoSource = NewTestPatternSource(pattern)
	cfg.AudioSource = NewToneSource(tone)
	return cfg
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(30 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func recordToEnd(t *testing.T, rec *Recorder) {
	t.Helper()
	require.NoError(t, rec.Start())
	waitFor(t, rec.SourcesExhausted(), "sources")
	require.NoError(t, rec.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, rec.Wait(ctx))
	assert.True(t, rec.HasFinished())
	assert.False(t, rec.WasFatal())
}

func sum(durations []uint32) int64 {
	var total int64
	for _, d := range durations {
		total += int64(d)
	}
	return total
}

func TestRecorder_MP4(t *testing.T) {
	rec, err := NewRecorder(syntheticConfig(t, "session.mp4"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Session())
	assert.Equal(t, StateNotStarted, rec.State())

	recordToEnd(t, rec)

	tracks, durations := readMP4Samples(t, rec.OutputPath())
	assert.Equal(t, 2, tracks)
	require.Len(t, durations[1], 60)
	for _, d := range durations[1] {
		assert.Equal(t, uint32(3000), d)
	}
	assert.Equal(t, int64(88200), sum(durations[2]), "every audio sample written")

	st := rec.Status()
	require.Len(t, st.Streams, 2)
	assert.Equal(t, "video", st.Streams[0].Name)
	assert.Equal(t, int64(60), st.Streams[0].Captured)
	assert.Equal(t, int64(60), st.Streams[0].Written)
	assert.Equal(t, "audio", st.Streams[1].Name)
	assert.Equal(t, st.Streams[1].Encoded, st.Streams[1].Written)
	assert.GreaterOrEqual(t, st.Streams[1].FrameSize, 1024)
	assert.LessOrEqual(t, st.Streams[0].QueuePeak, st.Streams[0].QueueCapacity)
	assert.Equal(t, StateFinished, st.State)
	assert.NoError(t, st.Err)
}

func TestRecorder_AudioFrameSizeGrowth(t *testing.T) {
	cfg := syntheticConfig(t, "grow.mp4")
	tone := DefaultToneConfig()
	tone.SampleRate = 48000
	tone.FrameSize = 4096
	tone.Duration = 2 * time.Second
	tone.Unpaced = true
	cfg.AudioSource = NewToneSource(tone)

	rec, err := NewRecorder(cfg)
	require.NoError(t, err)
	recordToEnd(t, rec)

	_, durations := readMP4Samples(t, rec.OutputPath())
	assert.Len(t, durations[1], 60)
	assert.Equal(t, int64(88200), sum(durations[2]), "every resampled sample written")

	st := rec.Status()
	require.Len(t, st.Streams, 2)
	assert.Greater(t, st.Streams[1].FrameSize, 1024)
	assert.Equal(t, st.Streams[1].Encoded, st.Streams[1].Written)
	assert.Equal(t, int64(len(durations[2])), st.Streams[1].Written)
}

func TestRecorder_MKV(t *testing.T) {
	rec, err := NewRecorder(syntheticConfig(t, "session.mkv"))
	require.NoError(t, err)
	recordToEnd(t, rec)

	doc := readMKV(t, rec.OutputPath())
	require.Len(t, doc.Segment.Tracks.TrackEntry, 2)

	var last int64 = -1
	blocks := map[uint64]int{}
	for _, c := range doc.Segment.Cluster {
		for _, b := range c.SimpleBlock {
			blocks[b.TrackNumber]++
			if b.TrackNumber == 1 {
				ts := int64(c.Timecode) + int64(b.Timecode)
				assert.Greater(t, ts, last)
				last = ts
			}
		}
	}
	assert.Equal(t, 60, blocks[1])
	assert.Greater(t, blocks[2], 80)
	assert.Equal(t, int64(1967), last, "frame 59 at 30 fps")
}

func TestRecorder_PauseResumeKeepsFrames(t *testing.T) {
	cfg := syntheticConfig(t, "paused.mp4")
	cfg.AudioEnabled = false
	rec, err := NewRecorder(cfg)
	require.NoError(t, err)

	require.NoError(t, rec.Start())
	require.NoError(t, rec.Pause())
	assert.Equal(t, StatePaused, rec.State())
	assert.ErrorIs(t, rec.Pause(), ErrAlreadyPaused)
	time.Sleep(20 * time.Millisecond)

	// Start while paused resumes.
	require.NoError(t, rec.Start())
	assert.Equal(t, StateStarted, rec.State())
	require.NoError(t, rec.Pause())
	require.NoError(t, rec.Resume())

	waitFor(t, rec.SourcesExhausted(), "sources")
	require.NoError(t, rec.Stop())
	waitFor(t, rec.Done(), "finish")
	require.NoError(t, rec.Err())

	tracks, durations := readMP4Samples(t, rec.OutputPath())
	assert.Equal(t, 1, tracks)
	assert.Len(t, durations[1], 60)
}

func TestRecorder_CommandsBeforeStart(t *testing.T) {
	rec, err := NewRecorder(syntheticConfig(t, "never.mp4"))
	require.NoError(t, err)

	err = rec.Pause()
	assert.ErrorIs(t, err, ErrNothingToPause)
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.ErrorIs(t, rec.Resume(), ErrNothingToResume)
	assert.Equal(t, StateNotStarted, rec.State())

	require.NoError(t, rec.Stop())
	waitFor(t, rec.Done(), "finish")
	assert.True(t, rec.HasFinished())
	assert.False(t, rec.WasFatal())
	assert.NoFileExists(t, rec.OutputPath())
	assert.True(t, rec.Status().Started.IsZero())

	assert.ErrorIs(t, rec.Start(), ErrAlreadyStopped)
	assert.ErrorIs(t, rec.Stop(), ErrAlreadyStopped)
}

func TestRecorder_CommandsAfterStop(t *testing.T) {
	rec, err := NewRecorder(syntheticConfig(t, "stopped.mp4"))
	require.NoError(t, err)
	require.NoError(t, rec.Start())
	assert.ErrorIs(t, rec.Start(), ErrAlreadyRecording)
	assert.ErrorIs(t, rec.Resume(), ErrAlreadyRecording)
	require.NoError(t, rec.Stop())

	assert.ErrorIs(t, rec.Pause(), ErrAlreadyStopped)
	assert.ErrorIs(t, rec.Resume(), ErrAlreadyStopped)
	assert.ErrorIs(t, rec.Stop(), ErrAlreadyStopped)

	waitFor(t, rec.Done(), "finish")
	assert.NoError(t, rec.Err())
	assert.FileExists(t, rec.OutputPath())
}

func TestRecorder_SetupErrors(t *testing.T) {
	t.Run("audio source without audio", func(t *testing.T) {
		cfg := syntheticConfig(t, "a.mp4")
		cfg.AudioSource = NewTestPatternSource(DefaultTestPatternConfig())
		rec, err := NewRecorder(cfg)
		require.NoError(t, err)

		err = rec.Start()
		assert.Equal(t, ErrorKindStreamDiscovery, KindOf(err))
		waitFor(t, rec.Done(), "finish")
		assert.True(t, rec.WasFatal())
		assert.Equal(t, err, rec.Err())

		// A failed setup leaves the session where it was.
		assert.Equal(t, StateNotStarted, rec.State())
		assert.False(t, rec.HasFinished())
		assert.Equal(t, err, rec.Start(), "setup is not retried")
		assert.Equal(t, StateNotStarted, rec.State())

		require.NoError(t, rec.Stop())
		assert.True(t, rec.HasFinished())
	})

	t.Run("output directory missing", func(t *testing.T) {
		cfg := syntheticConfig(t, "a.mp4")
		cfg.OutputPath = filepath.Join(t.TempDir(), "missing", "a.mp4")
		rec, err := NewRecorder(cfg)
		require.NoError(t, err)

		err = rec.Start()
		assert.Equal(t, ErrorKindFileOpen, KindOf(err))
		assert.True(t, rec.WasFatal())
	})

	t.Run("unknown encoder", func(t *testing.T) {
		cfg := syntheticConfig(t, "a.mp4")
		cfg.VideoEncoder = "vp8"
		rec, err := NewRecorder(cfg)
		require.NoError(t, err)

		err = rec.Start()
		assert.Equal(t, ErrorKindEncoderOpen, KindOf(err))
		assert.True(t, errors.Is(err, ErrEncoderNotFound))
	})
}

func TestNewRecorder_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width = 100
	_, err := NewRecorder(cfg)
	assert.Error(t, err, "below minimum width")

	cfg = DefaultConfig()
	cfg.ScreenWidth, cfg.ScreenHeight = 1920, 1080
	cfg.OffsetX = 1000
	_, err = NewRecorder(cfg)
	assert.Error(t, err, "outside screen")

	cfg = DefaultConfig()
	cfg.OutputWidth, cfg.OutputHeight = 641, 480
	_, err = NewRecorder(cfg)
	assert.Error(t, err, "odd output size")

	cfg = DefaultConfig()
	cfg.OutputPath = "clip"
	rec, err := NewRecorder(cfg)
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", rec.OutputPath())
}

func TestRecorder_CropOverrideSource(t *testing.T) {
	cfg := syntheticConfig(t, "crop.mp4")
	pattern := DefaultTestPatternConfig()
	pattern.Width, pattern.Height = 400, 300
	pattern.Frames = 3
	pattern.Unpaced = true
	cfg.VideoSource = NewTestPatternSource(pattern)
	cfg.Width, cfg.Height = 320, 240
	cfg.OffsetX, cfg.OffsetY = 40, 20
	cfg.OutputWidth, cfg.OutputHeight = 160, 120
	cfg.AudioEnabled = false

	rec, err := NewRecorder(cfg)
	require.NoError(t, err)
	recordToEnd(t, rec)

	_, durations := readMP4Samples(t, rec.OutputPath())
	assert.Len(t, durations[1], 3)
}
