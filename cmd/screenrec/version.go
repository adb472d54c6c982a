package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesyncim/screenrec"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func fullVersion() string {
	return fmt.Sprintf("screenrec %s, commit %s, built at %s", Version, Commit, Date)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, fullVersion())
			fmt.Fprintf(out, "capture backend: %s\n", screenrec.CaptureBackendName())
			fmt.Fprintf(out, "video encoders: %v\n", screenrec.VideoEncoderTypes())
		},
	}
}
