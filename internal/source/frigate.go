package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/frames"
	"github.com/kikiluvv/framesift/pkg/util"
)

// Frigate downloads event clips recorded by a Frigate NVR integration
type Frigate struct {
	logger     zerolog.Logger
	client     *Client
	baseURL    string
	attempts   int
	retryDelay time.Duration
}

// NewFrigate creates a clip downloader
func NewFrigate(logger zerolog.Logger, client *Client, cfg config.FrigateConfig) *Frigate {
	return &Frigate{
		logger:     logger.With().Str("component", "frigate").Logger(),
		client:     client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		attempts:   cfg.RetryAttempts,
		retryDelay: cfg.RetryDelay,
	}
}

// ClipURL returns the notification clip URL for an event
func (f *Frigate) ClipURL(eventID string) string {
	return f.baseURL + "/api/frigate/notifications/" + eventID + "/clip.mp4"
}

// DownloadClip saves the event clip as <dir>/<eventID>.mp4 and returns its
// path.
func (f *Frigate) DownloadClip(ctx context.Context, eventID, dir string) (string, error) {
	if eventID == "" || strings.ContainsAny(eventID, `/\`) || strings.Contains(eventID, "..") {
		return "", frames.BadInput("invalid frigate event id %q", eventID)
	}

	data, err := f.client.GetWithRetry(ctx, f.ClipURL(eventID), f.attempts, f.retryDelay)
	if err != nil {
		return "", frames.Transient(err, "failed to fetch frigate clip %s", eventID)
	}
	if len(data) == 0 {
		return "", frames.Transient(nil, "failed to fetch frigate clip %s: empty response", eventID)
	}

	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create clip dir: %w", err)
	}

	path := filepath.Join(dir, eventID+".mp4")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("save clip: %w", err)
	}

	f.logger.Info().Str("event", eventID).Str("path", path).Msg("saved frigate clip (temporarily)")
	return path, nil
}
