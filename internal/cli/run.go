package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shrimbly/easy-peasy-ease/internal/blobcache"
	"github.com/shrimbly/easy-peasy-ease/internal/config"
	"github.com/shrimbly/easy-peasy-ease/internal/finalize"
	"github.com/shrimbly/easy-peasy-ease/internal/logging"
	"github.com/shrimbly/easy-peasy-ease/internal/media/ffmpegengine"
	"github.com/shrimbly/easy-peasy-ease/pkg/models"
)

func run(cmd *cobra.Command, inputs []string) error {
	outPath, _ := cmd.Flags().GetString("out")
	duration, _ := cmd.Flags().GetFloat64("duration")
	easingName, _ := cmd.Flags().GetString("easing")
	bezierSpec, _ := cmd.Flags().GetString("bezier")
	fps, _ := cmd.Flags().GetFloat64("fps")
	audioPath, _ := cmd.Flags().GetString("audio")
	audioOffset, _ := cmd.Flags().GetFloat64("audio-offset")
	fadeIn, _ := cmd.Flags().GetFloat64("fade-in")
	fadeOut, _ := cmd.Flags().GetFloat64("fade-out")
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if fps > 0 {
		cfg.Pipeline.OutputFrameRate = fps
	}
	if verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "console"
	}

	log, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	selection, err := easingSelection(easingName, bezierSpec)
	if err != nil {
		return err
	}

	segments := make([]models.Segment, 0, len(inputs))
	for _, input := range inputs {
		data, err := os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("read %s: %w", input, err)
		}
		seg := models.NewSegment(data, duration)
		seg.Easing = selection
		segments = append(segments, seg)
	}

	fctx := models.FinalizeContext{Reason: models.ReasonSegmentChange}
	if fadeIn == 0 {
		fadeIn = cfg.Audio.FadeIn
	}
	if fadeOut == 0 {
		fadeOut = cfg.Audio.FadeOut
	}
	if audioPath != "" {
		audioData, err := os.ReadFile(audioPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", audioPath, err)
		}
		fctx.Audio = &models.AudioRequest{
			Source:  audioData,
			Offset:  audioOffset,
			FadeIn:  fadeIn,
			FadeOut: fadeOut,
		}
	}

	engine, err := ffmpegengine.New(
		getenvDefault("FFMPEG_PATH", "ffmpeg"),
		getenvDefault("FFPROBE_PATH", "ffprobe"),
		log,
	)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()
	engine.SetAudioFormat(cfg.Audio.SampleRate, cfg.Audio.Channels)

	cache, err := blobcache.New(cfg.Cache.MaxEntries)
	if err != nil {
		return err
	}

	orch := finalize.New(engine, cfg, cache, log)
	res, err := orch.AnalyzeAndFinalize(context.Background(), segments, fctx, progressPrinter(cmd))
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, res.Final.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %s path)\n", outPath, res.Final.Size, res.Path)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// easingSelection parses the easing flags. A bezier spec wins over a preset
// name; both empty leaves the choice to the adaptive selector.
func easingSelection(preset, bezierSpec string) (models.EasingSelection, error) {
	if bezierSpec != "" {
		parts := strings.Split(bezierSpec, ",")
		if len(parts) != 4 {
			return models.EasingSelection{}, fmt.Errorf("bezier needs four comma-separated values, got %q", bezierSpec)
		}
		vals := make([]float64, 4)
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return models.EasingSelection{}, fmt.Errorf("bezier value %q: %w", p, err)
			}
			vals[i] = v
		}
		return models.EasingSelection{
			Bezier: &models.BezierTuple{X1: vals[0], Y1: vals[1], X2: vals[2], Y2: vals[3]},
		}, nil
	}
	return models.EasingSelection{Preset: preset}, nil
}

// progressPrinter writes one line per stage transition and a counter while
// curves are applied.
func progressPrinter(cmd *cobra.Command) models.ProgressFunc {
	lastStage := ""
	return func(u models.ProgressUpdate) {
		if u.Stage == lastStage && u.Stage == finalize.StageApplyingCurves {
			return
		}
		lastStage = u.Stage
		if u.TotalSegments > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%3.0f%%] %s (segment %d/%d)\n",
				u.Percent, u.Message, u.SegmentIndex, u.TotalSegments)
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[%3.0f%%] %s\n", u.Percent, u.Message)
	}
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
