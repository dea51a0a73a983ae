package pipeline

import (
	"context"
	"time"

	"github.com/kikiluvv/framesift/internal/ffmpeg"
	"github.com/kikiluvv/framesift/internal/frames"
)

// Decoder splits a video into numbered frame images inside outDir
type Decoder interface {
	ExtractKeyframes(ctx context.Context, input, outDir string) error
}

// Prober is implemented by decoders that can report video metadata
type Prober interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
}

// Options tunes a single analysis run. Zero values fall back to the
// selection section of the configuration.
type Options struct {
	MaxFrames       int
	TargetWidth     int
	IncludeFilename bool
	Expose          bool
}

// VideoRequest selects keyframes from local files and Frigate event clips
type VideoRequest struct {
	Paths    []string
	EventIDs []string
	Options
}

// StreamRequest records live sources for Duration
type StreamRequest struct {
	SourceIDs []string
	Duration  time.Duration
	Options
}

// ImageRequest takes one snapshot per source and per file
type ImageRequest struct {
	SourceIDs []string
	Paths     []string
	Options
}

// Result is the ordered keyframe list handed to a provider
type Result struct {
	Keyframes []frames.Keyframe `json:"keyframes"`

	// KeyFrame is where the exposed frame was written, if any
	KeyFrame string `json:"key_frame,omitempty"`
}
