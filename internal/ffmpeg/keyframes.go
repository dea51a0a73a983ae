package ffmpeg

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// KeyframePattern names extracted frames so that file order is temporal order
const KeyframePattern = "frame%05d.jpg"

// ExtractKeyframes decodes only the key frames of input and writes one JPEG
// per frame into outDir. Audio, subtitle and data streams are ignored.
func (e *Executor) ExtractKeyframes(ctx context.Context, input, outDir string) error {
	if input == "" || outDir == "" {
		return fmt.Errorf("input and output directory are required")
	}

	e.logger.Info().
		Str("input", input).
		Str("dir", outDir).
		Msg("extracting keyframes")

	opts := RunOptions{
		Args: []string{
			"-hwaccel", "auto",
			"-skip_frame", "nokey",
			"-an", "-sn", "-dn",
			"-i", input,
			"-fps_mode", "passthrough",
			filepath.Join(outDir, KeyframePattern),
		},
		ProgressHandler: func(p *Progress) {
			e.logger.Debug().Int("frame", p.Frame).Str("time", p.Time).Msg("extracting")
		},
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("extracting keyframes")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("keyframe extraction failed: %w", err)
	}
	return nil
}

// GrabFrame pulls a single JPEG frame from a live stream, capture device or
// file URL.
func (e *Executor) GrabFrame(ctx context.Context, url string) ([]byte, error) {
	var args []string
	if strings.HasPrefix(url, "rtsp://") || strings.HasPrefix(url, "rtsps://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", url,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"pipe:1",
	)

	data, err := e.Output(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("grab frame from %s: %w", url, err)
	}
	return data, nil
}
