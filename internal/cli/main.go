// Package cli is the easecut command: retime one or more clips along an
// easing curve and stitch them into a single output file.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Main builds and executes the root command.
func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "easecut <clip> [clip...]",
		Short:        "Retime clips along an easing curve and stitch them into one video",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args)
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.Flags().StringP("out", "o", "out.mp4", "Output file")
	root.Flags().Float64P("duration", "d", 1.5, "Target duration per input clip, seconds")
	root.Flags().String("easing", "", "Easing preset (default: adaptive per clip)")
	root.Flags().String("bezier", "", "Custom cubic bezier easing as x1,y1,x2,y2 (overrides --easing)")
	root.Flags().Float64("fps", 0, "Output frame rate (default from config)")
	root.Flags().String("audio", "", "Background audio file")
	root.Flags().Float64("audio-offset", 0, "Audio head offset, seconds; negative skips source audio")
	root.Flags().Float64("fade-in", 0, "Audio fade-in, seconds")
	root.Flags().Float64("fade-out", 0, "Audio fade-out, seconds")
	root.Flags().String("config", "", "Config file path")
	root.Flags().BoolP("verbose", "v", false, "Debug logging to the console")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
