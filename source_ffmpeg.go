package screenrec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FFmpegSourceConfig configures a device capture source backed by an
// ffmpeg subprocess writing raw frames to a pipe.
type FFmpegSourceConfig struct {
	FFmpegPath string     // ffmpeg binary (default: "ffmpeg" from PATH)
	Kind       DeviceKind // Screen or microphone
	Device     string     // Platform device identifier ("" = platform default)

	// Screen
	Region Region // Capture rectangle
	FPS    int    // Frames per second (default: 30)

	// Microphone
	SampleRate int // Sample rate (default: 44100)
	Channels   int // Channels (default: 2)
	FrameSize  int // Samples per packet (default: 1024)

	OpenTimeout time.Duration // Time allowed for the first packet (default: 10s)
	Logger      *logrus.Entry
}

// FFmpegSource reads raw BGRA frames or s16le samples from ffmpeg.
type FFmpegSource struct {
	config FFmpegSourceConfig
	log    *logrus.Entry

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr *tailBuffer
	cancel context.CancelFunc

	buf       []byte
	packets   int64
	startTime time.Time

	mu sync.Mutex
}

// NewFFmpegSource creates a device source. The process starts on Open.
func NewFFmpegSource(config FFmpegSourceConfig) *FFmpegSource {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FrameSize <= 0 {
		config.FrameSize = 1024
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 10 * time.Second
	}
	log := config.Logger
	if log == nil {
		log = discardLogger()
	}

	s := &FFmpegSource{
		config: config,
		log:    log.WithField("device", config.Kind.String()),
		stderr: newTailBuffer(4096),
	}
	if config.Kind == DeviceKindScreen {
		s.buf = make([]byte, PixelFormatBGRA32.FrameSize(config.Region.Width, config.Region.Height))
	} else {
		s.buf = make([]byte, config.FrameSize*config.Channels*AudioFormatS16.BytesPerSample())
	}
	return s
}

// Args returns the full ffmpeg command line without the binary.
func (s *FFmpegSource) Args() ([]string, error) {
	input, err := platformBackend.InputArgs(s.config.Kind, s.config)
	if err != nil {
		return nil, err
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, input...)
	if s.config.Kind == DeviceKindScreen {
		args = append(args,
			"-f", "rawvideo",
			"-pix_fmt", "bgra",
			"-r", strconv.Itoa(s.config.FPS),
			"pipe:1",
		)
	} else {
		args = append(args,
			"-f", "s16le",
			"-acodec", "pcm_s16le",
			"-ar", strconv.Itoa(s.config.SampleRate),
			"-ac", strconv.Itoa(s.config.Channels),
			"pipe:1",
		)
	}
	return args, nil
}

// Open starts ffmpeg and waits for the device to deliver data.
func (s *FFmpegSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("source already open")
	}
	args, err := s.Args()
	if err != nil {
		return err
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, s.config.FFmpegPath, args...)
	cmd.Stderr = s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	s.log.WithField("args", strings.Join(args, " ")).Debug("starting ffmpeg")
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", s.config.FFmpegPath, err)
	}
	s.cmd = cmd
	s.stdout = stdout
	s.cancel = cancel
	s.reader = bufio.NewReaderSize(stdout, len(s.buf))

	// The device is open once ffmpeg produces its first byte.
	peeked := make(chan error, 1)
	go func() {
		_, err := s.reader.Peek(1)
		peeked <- err
	}()
	timer := time.NewTimer(s.config.OpenTimeout)
	defer timer.Stop()

	select {
	case err = <-peeked:
	case <-timer.C:
		err = fmt.Errorf("no data within %v", s.config.OpenTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.closeLocked()
		if tail := s.stderr.String(); tail != "" {
			return fmt.Errorf("%w: %s", err, tail)
		}
		return err
	}
	s.startTime = time.Now()
	return nil
}

// Streams implements CaptureSource.
func (s *FFmpegSource) Streams() []StreamInfo {
	if s.config.Kind == DeviceKindScreen {
		return []StreamInfo{{
			Index:       0,
			Kind:        MediaKindVideo,
			Width:       s.config.Region.Width,
			Height:      s.config.Region.Height,
			FPS:         s.config.FPS,
			PixelFormat: PixelFormatBGRA32,
		}}
	}
	return []StreamInfo{{
		Index:        0,
		Kind:         MediaKindAudio,
		SampleRate:   s.config.SampleRate,
		Channels:     s.config.Channels,
		SampleFormat: AudioFormatS16,
	}}
}

// ReadPacket implements CaptureSource. Video packets are whole frames;
// audio packets are FrameSize samples. The read itself is not
// interruptible, so a stalled device stalls the caller until Close.
func (s *FFmpegSource) ReadPacket(ctx context.Context) (*RawPacket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return nil, fmt.Errorf("source not open")
	}

	if _, err := io.ReadFull(reader, s.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			s.log.Warn("ffmpeg ended mid-packet, dropping partial data")
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			if tail := s.stderr.String(); tail != "" {
				s.log.WithField("stderr", tail).Info("ffmpeg exited")
			}
		}
		return nil, err
	}

	var ts int64
	if s.config.Kind == DeviceKindScreen {
		ts = time.Since(s.startTime).Nanoseconds()
	} else {
		ts = s.packets * int64(s.config.FrameSize) * int64(time.Second) / int64(s.config.SampleRate)
	}
	s.packets++
	return &RawPacket{StreamIndex: 0, Data: s.buf, Timestamp: ts}, nil
}

// Close stops ffmpeg and reaps the process.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *FFmpegSource) closeLocked() error {
	if s.cmd == nil {
		return nil
	}
	s.cancel()
	s.stdout.Close()
	err := s.cmd.Wait()
	s.cmd = nil
	s.reader = nil

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
		// Killed on purpose.
		return nil
	}
	return err
}

// tailBuffer keeps the last bytes written to it.
type tailBuffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{size: size}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.size {
		t.buf = t.buf[len(t.buf)-t.size:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

func init() {
	factory := func(kind DeviceKind) CaptureSourceFactory {
		return func(config interface{}) (CaptureSource, error) {
			cfg, ok := config.(*FFmpegSourceConfig)
			if !ok {
				return nil, fmt.Errorf("%v source needs *FFmpegSourceConfig, got %T", kind, config)
			}
			c := *cfg
			c.Kind = kind
			return NewFFmpegSource(c), nil
		}
	}
	RegisterCaptureSource(SourceTypeScreen, factory(DeviceKindScreen))
	RegisterCaptureSource(SourceTypeMicrophone, factory(DeviceKindMicrophone))
}
