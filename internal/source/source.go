package source

import (
	"context"
	"fmt"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/frames"
)

// Source yields the current frame of a logical camera
type Source interface {
	ID() string
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

// Grabber pulls a single frame through an external decoder
type Grabber interface {
	GrabFrame(ctx context.Context, url string) ([]byte, error)
}

// HTTPSource polls a snapshot URL
type HTTPSource struct {
	id     string
	name   string
	url    string
	client *Client
}

func (s *HTTPSource) ID() string   { return s.id }
func (s *HTTPSource) Name() string { return s.name }

// Fetch downloads the current snapshot
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	return s.client.Get(ctx, s.url)
}

// StreamSource grabs a frame from an RTSP stream or capture device via ffmpeg
type StreamSource struct {
	id      string
	name    string
	url     string
	grabber Grabber
}

func (s *StreamSource) ID() string   { return s.id }
func (s *StreamSource) Name() string { return s.name }

// Fetch grabs one frame
func (s *StreamSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.grabber.GrabFrame(ctx, s.url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, nil
}

// Factory builds sources from configuration
type Factory struct {
	client  *Client
	grabber Grabber
}

// NewFactory creates a factory. grabber may be nil when no ffmpeg sources
// are configured.
func NewFactory(client *Client, grabber Grabber) *Factory {
	return &Factory{client: client, grabber: grabber}
}

// Build resolves one configured source into its concrete kind
func (f *Factory) Build(cfg config.SourceConfig) (Source, error) {
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}

	switch cfg.Kind {
	case config.SourceHTTP:
		return &HTTPSource{id: cfg.ID, name: name, url: cfg.URL, client: f.client}, nil
	case config.SourceFFmpeg:
		if f.grabber == nil {
			return nil, fmt.Errorf("source %q needs ffmpeg, which is not available", cfg.ID)
		}
		return &StreamSource{id: cfg.ID, name: name, url: cfg.URL, grabber: f.grabber}, nil
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", cfg.ID, cfg.Kind)
	}
}

// Resolve looks up ids in cfg and builds them. An unknown id is a bad-input
// validation error.
func (f *Factory) Resolve(cfg *config.Config, ids []string) ([]Source, error) {
	sources := make([]Source, 0, len(ids))
	for _, id := range ids {
		sc, ok := cfg.Source(id)
		if !ok {
			return nil, frames.BadInput("source %s does not exist", id)
		}
		src, err := f.Build(sc)
		if err != nil {
			return nil, frames.BadInput("%v", err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}
