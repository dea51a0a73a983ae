package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/expose"
	"github.com/kikiluvv/framesift/internal/ffmpeg"
	"github.com/kikiluvv/framesift/internal/frames"
	"github.com/kikiluvv/framesift/internal/imaging"
	"github.com/kikiluvv/framesift/internal/metrics"
	"github.com/kikiluvv/framesift/internal/recorder"
	"github.com/kikiluvv/framesift/internal/scoring"
	"github.com/kikiluvv/framesift/internal/selection"
	"github.com/kikiluvv/framesift/internal/source"
	"github.com/kikiluvv/framesift/pkg/util"
)

const tracerName = "github.com/kikiluvv/framesift/internal/pipeline"

// Deps are the collaborators a pipeline drives. Nil Scorer and Recorder fall
// back to SSIM on the wall clock; a nil Sink disables exposure.
type Deps struct {
	Decoder  Decoder
	Sources  *source.Factory
	Frigate  *source.Frigate
	Sink     expose.Sink
	Scorer   scoring.Scorer
	Recorder *recorder.Recorder
}

// Pipeline orchestrates frame acquisition, selection and normalization
type Pipeline struct {
	logger     zerolog.Logger
	config     *config.Config
	decoder    Decoder
	sources    *source.Factory
	frigate    *source.Frigate
	sink       expose.Sink
	scorer     scoring.Scorer
	recorder   *recorder.Recorder
	normalizer *imaging.Normalizer
	tracer     trace.Tracer
}

// New creates a pipeline from explicit collaborators
func New(logger zerolog.Logger, cfg *config.Config, deps Deps) *Pipeline {
	if deps.Scorer == nil {
		deps.Scorer = scoring.NewSSIMScorer(logger)
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.New(logger, deps.Scorer)
	}

	return &Pipeline{
		logger:     logger.With().Str("component", "pipeline").Logger(),
		config:     cfg,
		decoder:    deps.Decoder,
		sources:    deps.Sources,
		frigate:    deps.Frigate,
		sink:       deps.Sink,
		scorer:     deps.Scorer,
		recorder:   deps.Recorder,
		normalizer: imaging.NewNormalizer(logger),
		tracer:     otel.Tracer(tracerName),
	}
}

// NewFromConfig wires the production collaborators. A missing ffmpeg only
// disables video analysis and ffmpeg-backed sources.
func NewFromConfig(ctx context.Context, logger zerolog.Logger, cfg *config.Config) (*Pipeline, error) {
	deps := Deps{}

	var grabber source.Grabber
	exec, err := ffmpeg.New(logger, ffmpeg.Options{
		BinaryPath: cfg.FFmpeg.BinaryPath,
		ProbePath:  cfg.FFmpeg.ProbePath,
		Threads:    cfg.FFmpeg.Threads,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("ffmpeg unavailable, video analysis and ffmpeg sources disabled")
	} else {
		deps.Decoder = exec
		grabber = exec
	}

	client := source.NewClient(logger, cfg.Fetch)
	deps.Sources = source.NewFactory(client, grabber)
	deps.Frigate = source.NewFrigate(logger, client, cfg.Frigate)

	if cfg.Expose.Enabled {
		sink, err := expose.NewSink(ctx, logger, cfg.Expose)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize exposure sink: %w", err)
		}
		deps.Sink = sink
	}

	return New(logger, cfg, deps), nil
}

// Sink returns the exposure sink, nil when exposure is disabled
func (p *Pipeline) Sink() expose.Sink {
	return p.sink
}

// resolve fills zero options from configuration
func (p *Pipeline) resolve(opts Options) Options {
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = p.config.Selection.MaxFrames
	}
	if opts.TargetWidth <= 0 {
		opts.TargetWidth = p.config.Selection.TargetWidth
	}
	return opts
}

// AnalyzeVideos extracts and selects keyframes from every video in turn.
// Local paths are processed before Frigate clips.
func (p *Pipeline) AnalyzeVideos(ctx context.Context, req VideoRequest) (result *Result, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.AnalyzeVideos", trace.WithAttributes(
		attribute.Int("videos", len(req.Paths)),
		attribute.Int("events", len(req.EventIDs)),
	))
	defer func() { endSpan(span, err) }()
	defer observe("video", time.Now())

	opts := p.resolve(req.Options)
	paths := cleanList(req.Paths)
	events := cleanList(req.EventIDs)
	if len(paths) == 0 && len(events) == 0 {
		return nil, frames.BadInput("no video paths or event ids given")
	}
	for _, path := range paths {
		if !util.FileExists(path) {
			return nil, frames.BadInput("file %s does not exist", path)
		}
	}
	if p.decoder == nil {
		return nil, frames.BadInput("video analysis requires ffmpeg")
	}

	// Stage 1: fetch Frigate clips
	if len(events) > 0 {
		if p.frigate == nil {
			return nil, frames.BadInput("frigate is not configured")
		}
		clipsDir, err := p.tempDir("clips-")
		if err != nil {
			return nil, err
		}
		defer p.cleanup(clipsDir)

		for _, id := range events {
			clip, err := p.frigate.DownloadClip(ctx, id, clipsDir)
			if err != nil {
				return nil, err
			}
			paths = append(paths, clip)
		}
	}

	// Stage 2: per-video selection
	set := frames.NewSet()
	exp := p.newExposure(opts)
	for _, path := range paths {
		keyframes, err := p.analyzeVideo(ctx, path, opts, exp)
		if err != nil {
			return nil, err
		}
		for _, kf := range keyframes {
			set.Add(kf)
		}
	}
	result = &Result{Keyframes: set.All(), KeyFrame: exp.location}

	metrics.KeyframesSelectedTotal.WithLabelValues("video").Add(float64(len(result.Keyframes)))
	p.logger.Info().
		Int("videos", len(paths)).
		Int("keyframes", len(result.Keyframes)).
		Msg("video analysis complete")

	return result, nil
}

func (p *Pipeline) analyzeVideo(ctx context.Context, path string, opts Options, exp *exposure) ([]frames.Keyframe, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.analyzeVideo", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	logger := p.logger.With().Str("video", filepath.Base(path)).Logger()

	if prober, ok := p.decoder.(Prober); ok {
		if info, err := prober.ProbeVideo(ctx, path); err != nil {
			logger.Warn().Err(err).Msg("probe failed, extracting anyway")
		} else {
			logger.Info().
				Dur("duration", info.Duration).
				Int("width", info.Width).
				Int("height", info.Height).
				Float64("fps", info.FPS).
				Msg("video metadata extracted")
		}
	}

	framesDir, err := p.tempDir("frames-")
	if err != nil {
		return nil, err
	}
	defer p.cleanup(framesDir)

	start := time.Now()
	if err := p.decoder.ExtractKeyframes(ctx, path, framesDir); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, frames.Transient(err, "failed to extract frames from %s", path)
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())

	files, err := util.ListFiles(framesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted frames: %w", err)
	}

	online := selection.NewOnline(p.scorer, opts.MaxFrames)
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq, ok := util.TrailingNumber(filepath.Base(file))
		if !ok {
			seq = i
		}
		gray, err := imaging.GrayFromFile(file)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues("video").Inc()
			logger.Error().Err(err).Str("frame", filepath.Base(file)).Msg("cannot identify image file, skipping")
			continue
		}
		online.Push(frames.Record{
			Label:  filepath.Base(file),
			Source: path,
			Seq:    seq,
			Path:   file,
		}, gray)
	}

	selected := online.Result()
	logger.Info().
		Int("extracted", len(files)).
		Int("scored", online.Seen()).
		Int("selected", len(selected)).
		Msg("frames selected")

	if len(selected) == 0 {
		return nil, nil
	}

	if key, ok := lowestScore(selected); ok {
		p.expose(ctx, exp, frameNumber(key.Path), imaging.Input{Path: key.Path})
	}

	keyframes := make([]frames.Keyframe, 0, len(selected))
	for k, rec := range selected {
		encoded, err := p.normalizer.Normalize(imaging.Input{Path: rec.Path}, opts.TargetWidth)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize %s: %w", rec.Label, err)
		}
		keyframes = append(keyframes, frames.Keyframe{
			Image: encoded,
			Label: frames.VideoLabel(path, k+1, opts.IncludeFilename),
			Score: rec.Score,
		})
	}
	return keyframes, nil
}

// AnalyzeStreams records every source concurrently for req.Duration and keeps
// the globally least similar frames
func (p *Pipeline) AnalyzeStreams(ctx context.Context, req StreamRequest) (result *Result, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.AnalyzeStreams", trace.WithAttributes(
		attribute.Int("sources", len(req.SourceIDs)),
		attribute.String("duration", req.Duration.String()),
	))
	defer func() { endSpan(span, err) }()
	defer observe("stream", time.Now())

	opts := p.resolve(req.Options)
	ids := cleanList(req.SourceIDs)
	if len(ids) == 0 {
		return nil, frames.BadInput("no sources given")
	}
	if req.Duration <= 0 {
		return nil, frames.BadInput("duration must be positive")
	}
	sources, err := p.resolveSources(ids)
	if err != nil {
		return nil, err
	}

	perSource, err := p.recorder.Record(ctx, sources, recorder.Options{
		Duration: req.Duration,
		UseNames: opts.IncludeFilename,
	})
	if err != nil {
		return nil, err
	}
	if len(sources) == 1 && len(perSource[0]) == 0 {
		return nil, frames.Transient(source.ErrFetchFailed, "failed to fetch frames from %s", sources[0].ID())
	}

	selected := selection.Batch(perSource, opts.MaxFrames)

	result = &Result{}
	exp := p.newExposure(opts)
	if key, ok := lowestScore(selected); ok {
		p.expose(ctx, exp, key.Label, imaging.Input{Data: key.Data})
	}

	for _, rec := range selected {
		encoded, err := p.normalizer.Normalize(imaging.Input{Data: rec.Data}, opts.TargetWidth)
		if err != nil {
			p.logger.Error().Err(err).Str("frame", rec.Label).Msg("failed to normalize frame, skipping")
			continue
		}
		result.Keyframes = append(result.Keyframes, frames.Keyframe{
			Image: encoded,
			Label: rec.Label,
			Score: rec.Score,
		})
	}
	result.KeyFrame = exp.location

	metrics.KeyframesSelectedTotal.WithLabelValues("stream").Add(float64(len(result.Keyframes)))
	p.logger.Info().
		Int("sources", len(sources)).
		Int("keyframes", len(result.Keyframes)).
		Msg("stream analysis complete")

	return result, nil
}

// AnalyzeImages takes a single snapshot of each source and loads each file.
// Every image gets a neutral score.
func (p *Pipeline) AnalyzeImages(ctx context.Context, req ImageRequest) (result *Result, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.AnalyzeImages", trace.WithAttributes(
		attribute.Int("sources", len(req.SourceIDs)),
		attribute.Int("paths", len(req.Paths)),
	))
	defer func() { endSpan(span, err) }()
	defer observe("images", time.Now())

	opts := p.resolve(req.Options)
	ids := cleanList(req.SourceIDs)
	paths := cleanList(req.Paths)
	if len(ids) == 0 && len(paths) == 0 {
		return nil, frames.BadInput("no sources or image paths given")
	}
	for _, path := range paths {
		if !util.FileExists(path) {
			return nil, frames.BadInput("file %s does not exist", path)
		}
	}

	var sources []source.Source
	if len(ids) > 0 {
		if sources, err = p.resolveSources(ids); err != nil {
			return nil, err
		}
	}

	set := frames.NewSet()
	exp := p.newExposure(opts)

	add := func(in imaging.Input, label string) error {
		encoded, err := p.normalizer.Normalize(in, opts.TargetWidth)
		if err != nil {
			return err
		}
		set.Add(frames.Keyframe{Image: encoded, Label: label})
		p.expose(ctx, exp, "0", in)
		return nil
	}

	for _, src := range sources {
		data, err := src.Fetch(ctx)
		if err == nil && len(data) == 0 {
			err = source.ErrFetchFailed
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(sources) == 1 {
				return nil, frames.Transient(err, "failed to fetch image from %s", src.ID())
			}
			p.logger.Warn().Err(err).Str("source", src.ID()).Msg("skipping source")
			continue
		}

		label := ""
		if opts.IncludeFilename {
			label = src.Name()
		}
		if err := add(imaging.Input{Data: data}, label); err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues("snapshot").Inc()
			p.logger.Error().Err(err).Str("source", src.ID()).Msg("skipping undecodable snapshot")
		}
	}

	for _, path := range paths {
		label := ""
		if opts.IncludeFilename {
			label = util.BaseName(path)
		}
		if err := add(imaging.Input{Path: path}, label); err != nil {
			return nil, frames.BadInput("error processing %s: %v", path, err)
		}
	}
	result = &Result{Keyframes: set.All(), KeyFrame: exp.location}

	metrics.KeyframesSelectedTotal.WithLabelValues("images").Add(float64(len(result.Keyframes)))
	return result, nil
}

func (p *Pipeline) resolveSources(ids []string) ([]source.Source, error) {
	if p.sources == nil {
		return nil, frames.BadInput("no sources are configured")
	}
	return p.sources.Resolve(p.config, ids)
}

// tempDir creates a unique scratch directory under the work dir
func (p *Pipeline) tempDir(prefix string) (string, error) {
	if err := util.EnsureDir(p.config.WorkDir); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(p.config.WorkDir, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	p.logger.Debug().Str("dir", dir).Msg("created temp dir")
	return dir, nil
}

// cleanup removes a scratch directory. One that is already gone is only
// worth an info line.
func (p *Pipeline) cleanup(dir string) {
	existed, err := util.RemoveDir(dir)
	switch {
	case err != nil:
		p.logger.Warn().Err(err).Str("dir", dir).Msg("failed to delete temp dir")
	case !existed:
		p.logger.Info().Str("dir", dir).Msg("temp dir already removed")
	default:
		p.logger.Info().Str("dir", dir).Msg("deleted temp dir")
	}
}

// exposure tracks the single key frame published per run
type exposure struct {
	enabled  bool
	location string
}

func (p *Pipeline) newExposure(opts Options) *exposure {
	if opts.Expose && p.sink == nil {
		p.logger.Warn().Msg("exposure requested but no sink is configured")
	}
	return &exposure{enabled: opts.Expose && p.sink != nil}
}

// expose publishes in as the run's key frame unless one was already
// published. Failures are logged and swallowed.
func (p *Pipeline) expose(ctx context.Context, exp *exposure, name string, in imaging.Input) {
	if !exp.enabled || exp.location != "" {
		return
	}

	data, err := p.normalizer.NormalizeJPEG(in, p.config.Selection.TargetWidth)
	if err == nil {
		exp.location, err = p.sink.Expose(ctx, name, data)
	}
	if err != nil {
		metrics.ExposeFailuresTotal.Inc()
		p.logger.Error().Err(err).Str("frame", name).Msg("failed to expose key frame")
		exp.enabled = false
	}
}

// lowestScore returns the least similar record, the first one on ties
func lowestScore(records []frames.Record) (frames.Record, bool) {
	if len(records) == 0 {
		return frames.Record{}, false
	}
	best := records[0]
	for _, rec := range records[1:] {
		if rec.Score < best.Score {
			best = rec
		}
	}
	return best, true
}

// frameNumber turns ".../frame00042.jpg" into "00042"
func frameNumber(path string) string {
	return strings.TrimPrefix(util.BaseName(path), "frame")
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind, ok := frames.KindOf(err); ok {
			span.SetAttributes(attribute.String("error.kind", kind.String()))
		} else if errors.Is(err, context.Canceled) {
			span.SetAttributes(attribute.Bool("cancelled", true))
		}
	}
	span.End()
}
