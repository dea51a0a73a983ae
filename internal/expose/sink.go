package expose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/metrics"
	"github.com/kikiluvv/framesift/pkg/util"
)

// Sink publishes a key frame somewhere a dashboard can reach it
type Sink interface {
	// Expose stores jpeg under a unique name derived from name and returns
	// where it ended up
	Expose(ctx context.Context, name string, jpeg []byte) (string, error)
}

// Sweeper removes exposed frames older than a retention window
type Sweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName builds "<uid8>-<name>.jpg" with name reduced to safe characters
func ObjectName(name string) string {
	clean := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if clean == "" {
		clean = "frame"
	}
	return fmt.Sprintf("%s-%s.jpg", uuid.NewString()[:8], clean)
}

// NewSink picks the MinIO sink when an endpoint is configured, otherwise the
// local directory
func NewSink(ctx context.Context, logger zerolog.Logger, cfg config.ExposeConfig) (Sink, error) {
	if cfg.MinIO.Endpoint != "" {
		return NewMinIOSink(ctx, logger, cfg.MinIO)
	}
	return NewFileSink(logger, cfg.Dir), nil
}

// FileSink writes key frames into a directory, typically one served over HTTP
type FileSink struct {
	logger zerolog.Logger
	dir    string
	now    func() time.Time
}

// NewFileSink creates a sink rooted at dir. The directory is created lazily.
func NewFileSink(logger zerolog.Logger, dir string) *FileSink {
	return &FileSink{
		logger: logger.With().Str("component", "expose").Str("sink", "file").Logger(),
		dir:    dir,
		now:    time.Now,
	}
}

// Dir returns the directory frames are written to
func (s *FileSink) Dir() string {
	return s.dir
}

func (s *FileSink) Expose(ctx context.Context, name string, jpeg []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := util.EnsureDir(s.dir); err != nil {
		return "", fmt.Errorf("failed to create expose dir: %w", err)
	}

	path := filepath.Join(s.dir, ObjectName(name))
	if err := os.WriteFile(path, jpeg, 0644); err != nil {
		return "", fmt.Errorf("failed to write key frame: %w", err)
	}

	s.logger.Info().Str("path", path).Int("bytes", len(jpeg)).Msg("key frame exposed")
	return path, nil
}

// Sweep deletes .jpg files whose modification time is older than retention
func (s *FileSink) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read expose dir: %w", err)
	}

	cutoff := s.now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".jpg") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove expired frame")
			continue
		}
		removed++
	}

	metrics.ExposedFramesSweptTotal.WithLabelValues("file").Add(float64(removed))
	s.logger.Debug().Int("removed", removed).Dur("retention", retention).Msg("sweep complete")
	return removed, nil
}
