package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/config"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIProvider speaks the chat completions protocol, which also covers
// OpenAI-compatible gateways
type OpenAIProvider struct {
	logger   zerolog.Logger
	http     *http.Client
	endpoint string
	apiKey   string
	model    string
}

type chatContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAI creates a chat completions provider
func NewOpenAI(logger zerolog.Logger, cfg config.ProviderConfig) (Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai requires a model")
	}

	return &OpenAIProvider{
		logger:   logger.With().Str("component", "provider").Str("provider", OpenAI).Logger(),
		http:     &http.Client{Timeout: cfg.Timeout},
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return OpenAI
}

// PrepareRequest builds one user message alternating tags and data URIs,
// ending with the prompt
func (p *OpenAIProvider) PrepareRequest(req Request) (Payload, error) {
	msg := chatMessage{Role: "user"}
	for i, kf := range req.Keyframes {
		msg.Content = append(msg.Content,
			chatContent{Type: "text", Text: imageTag(kf, i) + ":"},
			chatContent{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + kf.Image}},
		)
	}
	msg.Content = append(msg.Content, chatContent{Type: "text", Text: req.Message})

	return &chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{msg},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}, nil
}

func (p *OpenAIProvider) MakeRequest(ctx context.Context, payload Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", p.resolveError(resp.StatusCode, data)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Validate requires an API key and spends a single token on a test prompt
func (p *OpenAIProvider) Validate(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("empty api key")
	}
	payload := &chatRequest{
		Model: p.model,
		Messages: []chatMessage{{
			Role:    "user",
			Content: []chatContent{{Type: "text", Text: "Hi"}},
		}},
		MaxTokens:   1,
		Temperature: 0.5,
	}
	if _, err := p.MakeRequest(ctx, payload); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	return nil
}

func (p *OpenAIProvider) resolveError(status int, body []byte) error {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Errorf("status %d: %s", status, parsed.Error.Message)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	p.logger.Debug().Int("status", status).Str("body", text).Msg("unparseable error response")
	return fmt.Errorf("status %d: %s", status, http.StatusText(status))
}
