package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/logging"
	"github.com/kikiluvv/framesift/internal/pipeline"
	"github.com/kikiluvv/framesift/internal/provider"
	"github.com/kikiluvv/framesift/pkg/util"
)

// analyzeFlags are shared by every analysis command
type analyzeFlags struct {
	maxFrames       int
	targetWidth     int
	includeFilename bool
	expose          bool
	prompt          string
}

func (f *analyzeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxFrames, "max-frames", 0, "maximum keyframes to keep (default from config)")
	cmd.Flags().IntVar(&f.targetWidth, "target-width", 0, "shrink keyframes wider than this (default from config)")
	cmd.Flags().BoolVar(&f.includeFilename, "include-filename", false, "label keyframes with file or source names")
	cmd.Flags().BoolVar(&f.expose, "expose", false, "publish the key frame to the exposure sink")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "send the keyframes to the configured provider with this prompt")
}

func (f *analyzeFlags) options(cmd *cobra.Command, cfg *config.Config) pipeline.Options {
	include := cfg.Selection.IncludeFilename
	if cmd.Flags().Changed("include-filename") {
		include = f.includeFilename
	}
	return pipeline.Options{
		MaxFrames:       f.maxFrames,
		TargetWidth:     f.targetWidth,
		IncludeFilename: include,
		Expose:          f.expose || cfg.Expose.Enabled,
	}
}

// newPipeline builds the production pipeline, enabling the exposure sink
// when --expose asks for it
func (f *analyzeFlags) newPipeline(cmd *cobra.Command) (*pipeline.Pipeline, *config.Config, error) {
	cfg := config.FromContext(cmd.Context())
	if f.expose {
		cfg.Expose.Enabled = true
	}
	p, err := pipeline.NewFromConfig(cmd.Context(), logging.WithComponent(cmd.Name()), cfg)
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

type keyframeSummary struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// report prints the provider answer when a prompt was given, otherwise a
// JSON summary of the selection
func (f *analyzeFlags) report(cmd *cobra.Command, cfg *config.Config, result *pipeline.Result) error {
	if f.prompt != "" {
		p, err := provider.DefaultRegistry().Resolve(log.Logger, cfg.Provider)
		if err != nil {
			return err
		}
		answer, err := provider.Call(cmd.Context(), log.Logger, p, provider.Request{
			Message:     f.prompt,
			MaxTokens:   cfg.Provider.MaxTokens,
			Temperature: cfg.Provider.Temperature,
			Keyframes:   result.Keyframes,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	}

	summary := struct {
		Keyframes []keyframeSummary `json:"keyframes"`
		KeyFrame  string            `json:"key_frame,omitempty"`
	}{KeyFrame: result.KeyFrame}
	for _, kf := range result.Keyframes {
		summary.Keyframes = append(summary.Keyframes, keyframeSummary{Label: kf.Label, Score: kf.Score})
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

var (
	videoFlags analyzeFlags
	eventIDs   []string
)

var videoCmd = &cobra.Command{
	Use:   "video [paths...]",
	Short: "Select keyframes from video files or Frigate events",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cfg, err := videoFlags.newPipeline(cmd)
		if err != nil {
			return err
		}

		result, err := p.AnalyzeVideos(cmd.Context(), pipeline.VideoRequest{
			Paths:    args,
			EventIDs: eventIDs,
			Options:  videoFlags.options(cmd, cfg),
		})
		if err != nil {
			return err
		}
		return videoFlags.report(cmd, cfg, result)
	},
}

var (
	streamFlags    analyzeFlags
	streamDuration string
)

var streamCmd = &cobra.Command{
	Use:   "stream [source ids...]",
	Short: "Record live sources and select keyframes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, err := util.ParseTimestamp(streamDuration)
		if err != nil {
			return fmt.Errorf("invalid --duration: %w", err)
		}

		p, cfg, err := streamFlags.newPipeline(cmd)
		if err != nil {
			return err
		}

		result, err := p.AnalyzeStreams(cmd.Context(), pipeline.StreamRequest{
			SourceIDs: args,
			Duration:  duration,
			Options:   streamFlags.options(cmd, cfg),
		})
		if err != nil {
			return err
		}
		return streamFlags.report(cmd, cfg, result)
	},
}

var (
	snapshotFlags analyzeFlags
	imagePaths    []string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [source ids...]",
	Short: "Take one snapshot per source or image file",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cfg, err := snapshotFlags.newPipeline(cmd)
		if err != nil {
			return err
		}

		result, err := p.AnalyzeImages(cmd.Context(), pipeline.ImageRequest{
			SourceIDs: args,
			Paths:     imagePaths,
			Options:   snapshotFlags.options(cmd, cfg),
		})
		if err != nil {
			return err
		}
		return snapshotFlags.report(cmd, cfg, result)
	},
}

func init() {
	videoFlags.register(videoCmd)
	videoCmd.Flags().StringSliceVar(&eventIDs, "event", nil, "Frigate event id (repeatable)")

	streamFlags.register(streamCmd)
	streamCmd.Flags().StringVar(&streamDuration, "duration", "10s", "recording length (10s, 1:30, 90)")

	snapshotFlags.register(snapshotCmd)
	snapshotCmd.Flags().StringSliceVar(&imagePaths, "path", nil, "image file (repeatable)")
}
