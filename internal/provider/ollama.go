package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/config"
)

// Provider names
const (
	Ollama = "ollama"
	OpenAI = "openai"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// OllamaProvider talks to a local or remote Ollama server
type OllamaProvider struct {
	logger zerolog.Logger
	client *api.Client
	model  string
}

// NewOllama creates an Ollama provider. An empty endpoint means the local
// default.
func NewOllama(logger zerolog.Logger, cfg config.ProviderConfig) (Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama endpoint %q: %w", endpoint, err)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama requires a model")
	}

	return &OllamaProvider{
		logger: logger.With().Str("component", "provider").Str("provider", Ollama).Logger(),
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		model:  cfg.Model,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return Ollama
}

// PrepareRequest sends each image as its own tagged message followed by the
// prompt
func (p *OllamaProvider) PrepareRequest(req Request) (Payload, error) {
	stream := false
	chat := &api.ChatRequest{
		Model:  p.model,
		Stream: &stream,
		Options: map[string]any{
			"num_predict": req.MaxTokens,
			"temperature": req.Temperature,
		},
	}

	for i, kf := range req.Keyframes {
		raw, err := base64.StdEncoding.DecodeString(kf.Image)
		if err != nil {
			return nil, fmt.Errorf("keyframe %d is not valid base64: %w", i+1, err)
		}
		chat.Messages = append(chat.Messages, api.Message{
			Role:    "user",
			Content: imageTag(kf, i) + ":",
			Images:  []api.ImageData{raw},
		})
	}
	chat.Messages = append(chat.Messages, api.Message{Role: "user", Content: req.Message})

	return chat, nil
}

func (p *OllamaProvider) MakeRequest(ctx context.Context, payload Payload) (string, error) {
	chat, ok := payload.(*api.ChatRequest)
	if !ok {
		return "", fmt.Errorf("unexpected payload type %T", payload)
	}

	var sb strings.Builder
	err := p.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Validate checks the server answers and reports whether the model is pulled
func (p *OllamaProvider) Validate(ctx context.Context) error {
	list, err := p.client.List(ctx)
	if err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}

	for _, m := range list.Models {
		if m.Name == p.model || strings.TrimSuffix(m.Name, ":latest") == p.model {
			return nil
		}
	}
	p.logger.Warn().Str("model", p.model).Int("available", len(list.Models)).Msg("model not pulled on server")
	return nil
}
