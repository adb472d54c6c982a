package screenrec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config configures a recording session.
type Config struct {
	OutputPath string // Output file; .mp4 is appended without a known extension (default: "output.mp4")

	// Capture region in screen pixels. A zero size captures the source frame.
	Width, Height    int
	OffsetX, OffsetY int
	ScreenWidth      int // Screen size used to validate the region (0 = unknown)
	ScreenHeight     int

	OutputWidth  int       // Encoded width (0 = capture width)
	OutputHeight int       // Encoded height (0 = capture height)
	ScaleMode    ScaleMode // Aspect handling when scaling
	FPS          int       // Frame rate (default: 30)

	VideoDevice  string // Platform device identifier ("" = default)
	AudioDevice  string
	AudioEnabled bool
	SampleRate   int // Output sample rate (default: 44100)
	Channels     int // Output channels (default: 2)

	AudioFrameSize int // Initial samples per audio encoder frame (default: 1024)
	QueueFrames    int // Frame queue capacity in units (default: 30)

	VideoEncoder VideoEncoderType // H.264 implementation (default: auto)
	BitrateBps   int              // Native encoder bitrate
	EncoderDelay int              // Frames the built-in encoder holds back

	FFmpegPath string // ffmpeg binary for device capture

	// VideoSource and AudioSource replace the device sources when set.
	// The recorder owns and closes them.
	VideoSource CaptureSource
	AudioSource CaptureSource

	Logger *logrus.Entry
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		OutputPath:     "output.mp4",
		Width:          1280,
		Height:         720,
		FPS:            30,
		AudioEnabled:   true,
		SampleRate:     44100,
		Channels:       2,
		AudioFrameSize: 1024,
		QueueFrames:    30,
		VideoEncoder:   VideoEncoderAuto,
		BitrateBps:     4000000,
	}
}

// Recorder runs one recording session: a capture loop per stream feeding
// bounded frame queues, and a mux loop encoding and interleaving them
// into one container file.
//
// Control methods may be called from any goroutine.
type Recorder struct {
	config  Config
	session string
	log     *logrus.Entry
	life    *lifecycle

	ctrl    sync.Mutex // Serializes Start/Pause/Resume/Stop
	started time.Time

	sources  []CaptureSource
	encoders []Encoder
	loops    []*captureLoop
	mux      *muxLoop
	writer   ContainerWriter
	cancel   context.CancelFunc

	done      chan struct{}
	doneOnce  sync.Once
	exhausted chan struct{}
	remaining atomic.Int32 // Capture loops whose source has not run out

	errMu sync.Mutex
	err   error
	fatal atomic.Bool
}

// NewRecorder validates config and creates an idle session.
func NewRecorder(config Config) (*Recorder, error) {
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.AudioFrameSize <= 0 {
		config.AudioFrameSize = 1024
	}
	if config.QueueFrames <= 0 {
		config.QueueFrames = 30
	}
	if config.VideoEncoder == "" {
		config.VideoEncoder = VideoEncoderAuto
	}
	config.OutputPath = NormalizeOutputPath(config.OutputPath)

	if config.Width != 0 || config.Height != 0 || config.VideoSource == nil {
		r := config.region()
		if err := r.Validate(config.ScreenWidth, config.ScreenHeight); err != nil {
			return nil, fmt.Errorf("invalid capture region: %w", err)
		}
	}
	if (config.OutputWidth != 0 || config.OutputHeight != 0) &&
		(config.OutputWidth <= 0 || config.OutputHeight <= 0 || config.OutputWidth%2 != 0 || config.OutputHeight%2 != 0) {
		return nil, fmt.Errorf("invalid output size %dx%d", config.OutputWidth, config.OutputHeight)
	}

	log := config.Logger
	if log == nil {
		log = discardLogger()
	}
	session := uuid.NewString()
	r := &Recorder{
		config:    config,
		session:   session,
		log:       log.WithField("session", session),
		life:      newLifecycle(),
		done:      make(chan struct{}),
		exhausted: make(chan struct{}),
	}
	return r, nil
}

func (c Config) region() Region {
	return Region{X: c.OffsetX, Y: c.OffsetY, Width: c.Width, Height: c.Height}
}

// Session returns the session id carried by every log line.
func (r *Recorder) Session() string { return r.session }

// OutputPath returns the normalized output path.
func (r *Recorder) OutputPath() string { return r.config.OutputPath }

// Start begins recording from NotStarted, or resumes from Paused.
func (r *Recorder) Start() error {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()

	switch r.life.State() {
	case StatePaused:
		return r.life.resume()
	case StateNotStarted:
		if r.fatal.Load() {
			return r.Err()
		}
	default:
		return r.life.start()
	}

	if err := r.setup(); err != nil {
		r.log.WithError(err).Error("setup failed")
		r.setErr(err)
		r.release()
		r.closeDone()
		return err
	}
	if err := r.life.start(); err != nil {
		return err
	}
	r.started = time.Now()
	r.launch()
	r.log.WithField("output", r.config.OutputPath).Info("recording started")
	return nil
}

// Pause suspends capture. Devices stay open; queued data is kept.
func (r *Recorder) Pause() error {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()
	if err := r.life.pause(); err != nil {
		return err
	}
	r.log.Info("recording paused")
	return nil
}

// Resume continues a paused session.
func (r *Recorder) Resume() error {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()
	if err := r.life.resume(); err != nil {
		return err
	}
	r.log.Info("recording resumed")
	return nil
}

// Stop ends capture and starts draining. It does not wait; use Wait or
// Done. Stopping a session that never started finishes it at once.
func (r *Recorder) Stop() error {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()
	finished, err := r.life.stop()
	if err != nil {
		return err
	}
	if finished {
		r.log.Info("nothing recorded")
		r.closeDone()
		return nil
	}
	r.log.Info("recording stopped, draining")
	return nil
}

// Wait blocks until the session finishes or ctx is done, and returns the
// fatal error, if any.
func (r *Recorder) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the session reaches Finished.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// SourcesExhausted is closed once every capture source reported the end
// of its data. Live devices never do.
func (r *Recorder) SourcesExhausted() <-chan struct{} { return r.exhausted }

// HasFinished reports whether the session reached Finished.
func (r *Recorder) HasFinished() bool { return r.life.State() == StateFinished }

// WasFatal reports whether the session ended on a fatal error.
func (r *Recorder) WasFatal() bool { return r.fatal.Load() }

// Err returns the fatal error, if any.
func (r *Recorder) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// State returns the current lifecycle state.
func (r *Recorder) State() RecordingState { return r.life.State() }

// Status returns a snapshot of the session.
func (r *Recorder) Status() Status {
	r.ctrl.Lock()
	started := r.started
	var streams []*muxStream
	if r.mux != nil {
		streams = r.mux.streams
	}
	r.ctrl.Unlock()

	st := Status{
		Session:    r.session,
		State:      r.life.State(),
		OutputPath: r.config.OutputPath,
		Started:    started,
		Fatal:      r.WasFatal(),
		Err:        r.Err(),
	}
	for _, s := range streams {
		st.Streams = append(st.Streams, s.stats.snapshot(s.name, s.kind, s.queue))
	}
	return st
}

// setup opens sources, codecs, queues and the container. Errors carry
// the kind of the failing step.
func (r *Recorder) setup() error {
	ctx := context.Background()

	video, err := r.openSource(ctx, DeviceKindScreen, r.config.VideoSource)
	if err != nil {
		return err
	}
	videoInfo, ok := firstStream(video, MediaKindVideo)
	if !ok {
		return newError(ErrorKindStreamDiscovery, "find video stream", fmt.Errorf("source has no video stream"))
	}

	var audio CaptureSource
	var audioInfo StreamInfo
	if r.config.AudioEnabled {
		if audio, err = r.openSource(ctx, DeviceKindMicrophone, r.config.AudioSource); err != nil {
			return err
		}
		if audioInfo, ok = firstStream(audio, MediaKindAudio); !ok {
			return newError(ErrorKindStreamDiscovery, "find audio stream", fmt.Errorf("source has no audio stream"))
		}
	}

	vs, vl, err := r.setupVideo(video, videoInfo)
	if err != nil {
		return err
	}
	streams := []*muxStream{vs}
	loops := []*captureLoop{vl}
	if audio != nil {
		as, al, err := r.setupAudio(audio, audioInfo)
		if err != nil {
			return err
		}
		streams = append(streams, as)
		loops = append(loops, al)
	}
	r.mux = &muxLoop{streams: streams, life: r.life, log: r.log.WithField("loop", "mux")}
	r.loops = loops

	descs := make([]StreamDescriptor, len(streams))
	for i, s := range streams {
		descs[i] = StreamDescriptor{Index: i, Kind: s.kind, Params: s.enc.Params()}
	}
	w, err := NewContainerWriter(r.config.OutputPath, descs)
	if err != nil {
		return err
	}
	r.writer = w
	r.mux.writer = w
	for i, d := range w.Streams() {
		streams[i].outTB = d.TimeBase
	}
	if err := w.WriteHeader(); err != nil {
		return err
	}

	for i, s := range streams {
		s.queue.index = i
		r.life.watch(s.queue)
	}
	return nil
}

func (r *Recorder) openSource(ctx context.Context, kind DeviceKind, override CaptureSource) (CaptureSource, error) {
	src := override
	if src == nil {
		cfg := &FFmpegSourceConfig{
			FFmpegPath: r.config.FFmpegPath,
			FPS:        r.config.FPS,
			SampleRate: r.config.SampleRate,
			Channels:   r.config.Channels,
			FrameSize:  r.config.AudioFrameSize,
			Logger:     r.log,
		}
		stype := SourceTypeMicrophone
		if kind == DeviceKindScreen {
			stype = SourceTypeScreen
			cfg.Device = r.config.VideoDevice
			cfg.Region = r.config.region()
		} else {
			cfg.Device = r.config.AudioDevice
		}
		var err error
		if src, err = CreateCaptureSource(stype, cfg); err != nil {
			return nil, newError(ErrorKindDeviceOpen, "open "+kind.String(), err)
		}
	}
	r.sources = append(r.sources, src)
	if err := src.Open(ctx); err != nil {
		return nil, newError(ErrorKindDeviceOpen, "open "+kind.String(), err)
	}
	r.log.WithField("device", kind.String()).Info("capture device opened")
	return src, nil
}

func (r *Recorder) setupVideo(src CaptureSource, info StreamInfo) (*muxStream, *captureLoop, error) {
	dec, err := NewDecoder(info)
	if err != nil {
		return nil, nil, newError(ErrorKindDecoderOpen, "open video decoder", err)
	}

	// Device sources crop at capture time. Other sources are cropped here
	// when they deliver more than the region.
	var crop Region
	if r.config.VideoSource != nil && r.config.Width > 0 &&
		(r.config.Width != info.Width || r.config.Height != info.Height) {
		crop = r.config.region()
	}
	conv, err := NewVideoConverter(info, VideoConverterConfig{
		Crop:      crop,
		DstWidth:  r.config.OutputWidth,
		DstHeight: r.config.OutputHeight,
		Mode:      r.config.ScaleMode,
	})
	if err != nil {
		return nil, nil, newError(ErrorKindParameterConversion, "configure video conversion", err)
	}

	ec := DefaultVideoEncoderConfig(conv.config.DstWidth, conv.config.DstHeight)
	ec.Type = r.config.VideoEncoder
	ec.FPS = r.config.FPS
	ec.Delay = r.config.EncoderDelay
	if r.config.BitrateBps > 0 {
		ec.BitrateBps = r.config.BitrateBps
	}
	enc, err := NewVideoEncoder(ec)
	if err != nil {
		return nil, nil, newError(ErrorKindEncoderOpen, "open video encoder", err)
	}
	r.encoders = append(r.encoders, enc)
	r.log.WithField("encoder", fmt.Sprintf("%T", enc)).
		WithField("size", fmt.Sprintf("%dx%d", ec.Width, ec.Height)).
		Info("video encoder opened")

	stats := &streamStats{}
	q := NewFrameQueue("video", r.config.QueueFrames, conv.UnitSize(), r.life.State)
	s := &muxStream{
		name:  "video",
		kind:  MediaKindVideo,
		queue: q,
		enc:   enc,
		encTB: enc.TimeBase(),
		stats: stats,
	}
	s.unit.Store(int64(conv.UnitSize()))
	loop := &captureLoop{
		name:      "video",
		src:       src,
		stream:    info,
		dec:       dec,
		conv:      conv,
		queue:     q,
		life:      r.life,
		stats:     stats,
		log:       r.log.WithField("stream", "video"),
		exhausted: r.sourceExhausted,
	}
	return s, loop, nil
}

func (r *Recorder) setupAudio(src CaptureSource, info StreamInfo) (*muxStream, *captureLoop, error) {
	dec, err := NewDecoder(info)
	if err != nil {
		return nil, nil, newError(ErrorKindDecoderOpen, "open audio decoder", err)
	}

	stats := &streamStats{}
	s := &muxStream{
		index:       1,
		name:        "audio",
		kind:        MediaKindAudio,
		stats:       stats,
		sampleBytes: r.config.Channels * AudioFormatS16.BytesPerSample(),
	}
	var q *FrameQueue
	conv, err := NewAudioConverter(info, AudioConverterConfig{
		OutRate:     r.config.SampleRate,
		OutChannels: r.config.Channels,
		FrameSize:   r.config.AudioFrameSize,
		OnFrameSizeChange: func(samples int) {
			// The queue grows before the mux reads the larger unit.
			q.Reserve(samples * s.sampleBytes)
			s.setFrameSize(samples)
			r.log.WithField("frame_size", samples).Debug("audio frame size grew")
		},
	})
	if err != nil {
		return nil, nil, err
	}

	enc, err := NewAudioEncoder(AudioEncoderConfig{
		SampleRate: r.config.SampleRate,
		Channels:   r.config.Channels,
		FrameSize:  conv.FrameSize(),
	})
	if err != nil {
		return nil, nil, newError(ErrorKindEncoderOpen, "open audio encoder", err)
	}
	r.encoders = append(r.encoders, enc)

	q = NewFrameQueue("audio", r.config.QueueFrames, conv.UnitSize(), r.life.State)
	s.queue = q
	s.enc = enc
	s.encTB = enc.TimeBase()
	s.frameSize = conv.FrameSize()
	s.setFrameSize(conv.FrameSize())

	loop := &captureLoop{
		name:      "audio",
		src:       src,
		stream:    info,
		dec:       dec,
		conv:      conv,
		queue:     q,
		life:      r.life,
		stats:     stats,
		log:       r.log.WithField("stream", "audio"),
		exhausted: r.sourceExhausted,
	}
	return s, loop, nil
}

// launch starts the capture loops and the mux loop.
func (r *Recorder) launch() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.remaining.Store(int32(len(r.loops)))

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range r.loops {
		g.Go(func() error {
			return r.guard(l.name, l.run(gctx))
		})
	}
	mux := r.mux
	g.Go(func() error {
		return r.guard("mux", mux.run(gctx))
	})

	go func() {
		g.Wait()
		r.complete()
	}()
}

// guard records the first fatal error and aborts the other loops.
func (r *Recorder) guard(loop string, err error) error {
	if err == nil || errors.Is(err, ErrQueueAborted) || errors.Is(err, context.Canceled) {
		return err
	}
	if KindOf(err) == ErrorKindUnknown {
		err = newError(ErrorKindQueueWrite, loop, err)
	}
	if r.setErr(err) {
		r.log.WithField("loop", loop).WithError(err).Error("fatal error, aborting session")
		r.life.abort()
	}
	return err
}

// setErr stores err as the session error unless one is already set.
func (r *Recorder) setErr(err error) bool {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.fatal.Store(true)
	if r.err != nil {
		return false
	}
	r.err = err
	return true
}

func (r *Recorder) sourceExhausted() {
	if r.remaining.Add(-1) == 0 {
		close(r.exhausted)
	}
}

// complete finalizes the file once every loop has returned.
func (r *Recorder) complete() {
	if !r.WasFatal() {
		if err := r.writer.WriteTrailer(); err != nil {
			r.setErr(err)
			r.log.WithError(err).Error("finalizing output failed")
		}
	}
	r.release()
	r.life.finish()

	st := r.Status()
	fields := logrus.Fields{"output": r.config.OutputPath, "fatal": st.Fatal}
	for _, s := range st.Streams {
		fields[s.Name+"_written"] = s.Written
	}
	r.log.WithFields(fields).Info("recording finished")
	r.closeDone()
}

// release closes sources, encoders and the container.
func (r *Recorder) release() {
	if r.cancel != nil {
		r.cancel()
	}
	for _, src := range r.sources {
		if err := src.Close(); err != nil {
			r.log.WithError(err).Warn("closing capture source")
		}
	}
	for _, enc := range r.encoders {
		enc.Close()
	}
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			r.log.WithError(err).Warn("closing output")
		}
	}
}

func (r *Recorder) closeDone() {
	r.doneOnce.Do(func() { close(r.done) })
}
