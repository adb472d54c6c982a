package main

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thesyncim/screenrec"
)

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ok := true

			ffmpeg := a.v.GetString("ffmpeg")
			if ffmpeg == "" {
				ffmpeg = "ffmpeg"
			}
			if path, err := exec.LookPath(ffmpeg); err != nil {
				check(out, "ffmpeg", false, "not found; device capture needs ffmpeg on PATH")
				ok = false
			} else {
				check(out, "ffmpeg", true, path)
			}

			check(out, "Capture backend", screenrec.CaptureBackendName() != "unsupported", screenrec.CaptureBackendName())
			check(out, "Screen device", true, deviceOrDefault(a.v.GetString("video_device"), screenrec.DeviceKindScreen))
			check(out, "Microphone device", true, deviceOrDefault(a.v.GetString("audio_device"), screenrec.DeviceKindMicrophone))

			if err := screenrec.H264LibraryError(); err != nil {
				check(out, "Native H.264", false, fmt.Sprintf("%v; the built-in lossless encoder will be used", err))
			} else {
				check(out, "Native H.264", true, "loaded")
			}
			check(out, "Video encoders", true, fmt.Sprint(screenrec.VideoEncoderTypes()))

			if ok {
				color.New(color.FgGreen).Fprintln(out, "\nReady to record.")
			} else {
				color.New(color.FgYellow).Fprintln(out, "\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

func deviceOrDefault(device string, kind screenrec.DeviceKind) string {
	if device != "" {
		return device
	}
	if d := screenrec.DefaultDevice(kind); d != "" {
		return d + " (default)"
	}
	return "none"
}

func check(out io.Writer, name string, ok bool, detail string) {
	mark := color.GreenString("ok")
	if !ok {
		mark = color.RedString("missing")
	}
	fmt.Fprintf(out, "  [%s] %s: %s\n", mark, name, detail)
}
