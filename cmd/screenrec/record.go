package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/thesyncim/screenrec"
)

const commandHelp = "Commands: start, pause, resume, stop, status"

func newRecordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start an interactive recording session",
		Long: `Open the capture devices and wait for commands on stdin:

  start    begin recording (or resume when paused)
  pause    suspend capture, keeping buffered frames
  resume   continue a paused recording
  stop     finish the file and exit
  status   show per-stream counters

Commands are case-insensitive. Interrupting the process stops the
recording and finalizes the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRecord(cmd)
		},
	}

	d := screenrec.DefaultConfig()
	f := cmd.Flags()
	f.StringP("output", "o", d.OutputPath, "output file (.mp4 or .mkv)")
	f.Int("width", d.Width, "capture width")
	f.Int("height", d.Height, "capture height")
	f.Int("offset-x", 0, "capture offset from the left edge")
	f.Int("offset-y", 0, "capture offset from the top edge")
	f.Int("output-width", 0, "encoded width (0 = capture width)")
	f.Int("output-height", 0, "encoded height (0 = capture height)")
	f.String("scale-mode", "stretch", "aspect handling when scaling: stretch or fill")
	f.Int("fps", d.FPS, "frames per second")
	f.String("video-device", "", "screen device (default: platform default)")
	f.String("audio-device", "", "microphone device (default: platform default)")
	f.Bool("audio", d.AudioEnabled, "record the microphone")
	f.Int("sample-rate", d.SampleRate, "audio sample rate")
	f.Int("channels", d.Channels, "audio channels")
	f.Int("queue-frames", d.QueueFrames, "frame queue capacity per stream")
	f.String("encoder", string(d.VideoEncoder), "video encoder: auto, native or builtin")
	f.Int("bitrate", d.BitrateBps, "native encoder bitrate in bits per second")
	f.String("ffmpeg", "ffmpeg", "ffmpeg binary used for device capture")
	f.Bool("synthetic", false, "record a test pattern and tone instead of devices")
	f.Duration("synthetic-duration", 0, "length of the synthetic sources (0 = unlimited)")

	for _, name := range []string{
		"output", "width", "height", "offset-x", "offset-y", "output-width", "output-height",
		"scale-mode", "fps", "video-device", "audio-device", "audio", "sample-rate", "channels",
		"queue-frames", "encoder", "bitrate", "ffmpeg", "synthetic", "synthetic-duration",
	} {
		a.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
	return cmd
}

// recorderConfig builds the session config from flags, environment and
// the config file.
func (a *app) recorderConfig() (screenrec.Config, error) {
	v := a.v
	cfg := screenrec.DefaultConfig()
	cfg.OutputPath = v.GetString("output")
	cfg.Width = v.GetInt("width")
	cfg.Height = v.GetInt("height")
	cfg.OffsetX = v.GetInt("offset_x")
	cfg.OffsetY = v.GetInt("offset_y")
	cfg.OutputWidth = v.GetInt("output_width")
	cfg.OutputHeight = v.GetInt("output_height")
	cfg.FPS = v.GetInt("fps")
	cfg.VideoDevice = v.GetString("video_device")
	cfg.AudioDevice = v.GetString("audio_device")
	cfg.AudioEnabled = v.GetBool("audio")
	cfg.SampleRate = v.GetInt("sample_rate")
	cfg.Channels = v.GetInt("channels")
	cfg.QueueFrames = v.GetInt("queue_frames")
	cfg.VideoEncoder = screenrec.VideoEncoderType(v.GetString("encoder"))
	cfg.BitrateBps = v.GetInt("bitrate")
	cfg.FFmpegPath = v.GetString("ffmpeg")
	cfg.Logger = logrus.NewEntry(a.log)

	switch strings.ToLower(v.GetString("scale_mode")) {
	case "", "stretch":
		cfg.ScaleMode = screenrec.ScaleModeStretch
	case "fill":
		cfg.ScaleMode = screenrec.ScaleModeFill
	default:
		return cfg, fmt.Errorf("unknown scale mode %q", v.GetString("scale_mode"))
	}

	if v.GetBool("synthetic") {
		d := v.GetDuration("synthetic_duration")
		pattern := screenrec.DefaultTestPatternConfig()
		pattern.Width, pattern.Height = cfg.Width+cfg.OffsetX, cfg.Height+cfg.OffsetY
		pattern.FPS = cfg.FPS
		pattern.Pattern = screenrec.PatternMovingBox
		if d > 0 {
			pattern.Frames = int(d * time.Duration(cfg.FPS) / time.Second)
		}
		cfg.VideoSource = screenrec.NewTestPatternSource(pattern)

		tone := screenrec.DefaultToneConfig()
		tone.Duration = d
		cfg.AudioSource = screenrec.NewToneSource(tone)
	}
	return cfg, nil
}

func (a *app) runRecord(cmd *cobra.Command) error {
	cfg, err := a.recorderConfig()
	if err != nil {
		return err
	}
	rec, err := screenrec.NewRecorder(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	lines := readLines(ctx, cmd.InOrStdin())

	fmt.Fprintf(out, "Output: %s\n", color.CyanString(rec.OutputPath()))
	fmt.Fprintln(out, commandHelp)
	for {
		if interactive {
			fmt.Fprintf(out, "[%s] > ", rec.State())
		}
		select {
		case <-rec.Done():
			return finish(out, rec)
		case <-ctx.Done():
			fmt.Fprintln(out)
			return stopAndWait(out, rec)
		case line, ok := <-lines:
			if !ok {
				return stopAndWait(out, rec)
			}
			if handleCommand(out, rec, line) {
				return stopAndWait(out, rec)
			}
		}
	}
}

// readLines delivers stdin lines until ctx is done or input ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// handleCommand runs one command line. It reports whether the session
// was stopped.
func handleCommand(out io.Writer, rec *screenrec.Recorder, line string) bool {
	var err error
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return false
	case "start":
		if err = rec.Start(); err == nil {
			color.New(color.FgGreen).Fprintln(out, "Recording.")
		}
	case "pause":
		if err = rec.Pause(); err == nil {
			color.New(color.FgYellow).Fprintln(out, "Paused.")
		}
	case "resume":
		if err = rec.Resume(); err == nil {
			color.New(color.FgGreen).Fprintln(out, "Recording.")
		}
	case "stop":
		if err = rec.Stop(); err == nil {
			return true
		}
	case "status":
		printStatus(out, rec.Status())
	case "help":
		fmt.Fprintln(out, commandHelp)
	default:
		err = screenrec.ErrInvalidCommand
	}

	if err != nil && !rec.WasFatal() {
		color.New(color.FgYellow).Fprintln(out, commandMessage(err))
	}
	return false
}

// commandMessage words a command error for the prompt.
func commandMessage(err error) string {
	switch {
	case errors.Is(err, screenrec.ErrNothingToPause):
		return "Nothing to pause, recording has not started yet. Maybe you meant 'start' or 'stop'."
	case errors.Is(err, screenrec.ErrAlreadyPaused):
		return "Already paused. Maybe you meant 'resume' or 'stop'."
	case errors.Is(err, screenrec.ErrNothingToResume):
		return "Nothing to resume, recording has not started yet. Maybe you meant 'start'."
	case errors.Is(err, screenrec.ErrAlreadyRecording):
		return "Already recording. Maybe you meant 'pause' or 'stop'."
	case errors.Is(err, screenrec.ErrAlreadyStopped):
		return "Recording has already been stopped."
	case errors.Is(err, screenrec.ErrInvalidCommand):
		return "Invalid command."
	}
	return err.Error()
}

// stopAndWait stops the session if it is still running and waits for
// the file to be finalized.
func stopAndWait(out io.Writer, rec *screenrec.Recorder) error {
	if err := rec.Stop(); err != nil && !errors.Is(err, screenrec.ErrInvalidCommand) {
		return err
	}
	if rec.State() == screenrec.StateStopped {
		fmt.Fprintln(out, "Stopping, writing buffered frames...")
	}
	<-rec.Done()
	return finish(out, rec)
}

func finish(out io.Writer, rec *screenrec.Recorder) error {
	if rec.WasFatal() {
		return fmt.Errorf("recording failed: %w", rec.Err())
	}
	st := rec.Status()
	if st.Started.IsZero() {
		fmt.Fprintln(out, "Nothing done.")
		return nil
	}
	color.New(color.FgGreen).Fprintf(out, "Recording saved to %s\n", st.OutputPath)
	printStatus(out, st)
	return nil
}

func printStatus(out io.Writer, st screenrec.Status) {
	fmt.Fprintf(out, "Session %s: %s\n", st.Session, st.State)
	fmt.Fprintf(out, "  output: %s\n", st.OutputPath)
	if !st.Started.IsZero() {
		fmt.Fprintf(out, "  elapsed: %s\n", time.Since(st.Started).Round(time.Second))
	}
	for _, s := range st.Streams {
		fmt.Fprintf(out, "  %s: captured %d, encoded %d, written %d (%d bytes), queue %d/%d (peak %d)",
			color.New(color.FgCyan).Sprint(s.Name), s.Captured, s.Encoded, s.Written, s.Bytes,
			s.QueueBytes, s.QueueCapacity, s.QueuePeak)
		if s.Discarded > 0 || s.ReadErrors > 0 || s.DecodeErrors > 0 {
			fmt.Fprintf(out, ", discarded %d, read errors %d, decode errors %d", s.Discarded, s.ReadErrors, s.DecodeErrors)
		}
		if s.Unflushed > 0 {
			fmt.Fprintf(out, ", %s", color.YellowString("%d lost at encoder flush", s.Unflushed))
		}
		fmt.Fprintln(out)
	}
	if st.Err != nil {
		color.New(color.FgRed).Fprintf(out, "  error: %v\n", st.Err)
	}
}
