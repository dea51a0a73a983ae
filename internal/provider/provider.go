package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/frames"
	"github.com/kikiluvv/framesift/internal/metrics"
)

// ErrUnknownProvider is returned when the configured kind has no registered
// factory
var ErrUnknownProvider = errors.New("unknown provider")

// Request is a vision prompt plus the keyframes it refers to
type Request struct {
	Message     string
	MaxTokens   int
	Temperature float64
	Keyframes   []frames.Keyframe
}

// Payload is a provider-specific request body
type Payload any

// Provider turns a Request into a model response
type Provider interface {
	Name() string
	PrepareRequest(req Request) (Payload, error)
	MakeRequest(ctx context.Context, payload Payload) (string, error)
	Validate(ctx context.Context) error
}

// Factory builds a provider from configuration
type Factory func(logger zerolog.Logger, cfg config.ProviderConfig) (Provider, error)

// Registry manages available providers
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with every built-in provider
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Ollama, NewOllama)
	r.Register(OpenAI, NewOpenAI)
	return r
}

// Register adds a provider factory under name
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Get retrieves a factory by name
func (r *Registry) Get(name string) (Factory, bool) {
	factory, ok := r.factories[name]
	return factory, ok
}

// List returns all registered provider names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the provider named by cfg.Kind
func (r *Registry) Resolve(logger zerolog.Logger, cfg config.ProviderConfig) (Provider, error) {
	factory, ok := r.Get(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, cfg.Kind, strings.Join(r.List(), ", "))
	}
	return factory(logger, cfg)
}

// Call prepares and sends req, logging a sanitized copy of the payload
func Call(ctx context.Context, logger zerolog.Logger, p Provider, req Request) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", frames.BadInput("a prompt is required")
	}

	payload, err := p.PrepareRequest(req)
	if err != nil {
		return "", fmt.Errorf("failed to prepare %s request: %w", p.Name(), err)
	}

	if e := logger.Debug(); e.Enabled() {
		e.Str("provider", p.Name()).
			Interface("payload", SanitizeForLog(payload)).
			Msg("sending request")
	}

	start := time.Now()
	response, err := p.MakeRequest(ctx, payload)
	metrics.StageDuration.WithLabelValues("provider").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", p.Name(), err)
	}

	logger.Info().
		Str("provider", p.Name()).
		Int("images", len(req.Keyframes)).
		Dur("took", time.Since(start)).
		Msg("response received")
	return response, nil
}

// imageTag names the i-th image in a prompt
func imageTag(kf frames.Keyframe, i int) string {
	if kf.Label == "" {
		return fmt.Sprintf("Image %d", i+1)
	}
	return kf.Label
}

const (
	longStringLimit = 400
	longStringWords = 50
)

// SanitizeForLog returns a JSON-shaped copy of payload with base64 blobs and
// other long unbroken strings replaced by "<long_string>"
func SanitizeForLog(payload any) any {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("<unloggable: %v>", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Sprintf("<unloggable: %v>", err)
	}
	return sanitize(generic)
}

func sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitize(val)
		}
		return out
	case string:
		if len(t) > longStringLimit && strings.Count(t, " ") < longStringWords {
			return "<long_string>"
		}
		return t
	default:
		return t
	}
}
