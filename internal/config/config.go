package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// EnvPrefix namespaces every environment override
const EnvPrefix = "FRAMESIFT_"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir string `yaml:"work_dir" env:"WORK_DIR"`

	// Capture sources addressable by id
	Sources []SourceConfig `yaml:"sources"`

	Fetch     FetchConfig     `yaml:"fetch" envPrefix:"FETCH_"`
	Frigate   FrigateConfig   `yaml:"frigate" envPrefix:"FRIGATE_"`
	Selection SelectionConfig `yaml:"selection" envPrefix:"SELECTION_"`
	Expose    ExposeConfig    `yaml:"expose" envPrefix:"EXPOSE_"`
	Provider  ProviderConfig  `yaml:"provider" envPrefix:"PROVIDER_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg" envPrefix:"FFMPEG_"`
}

// Source kinds
const (
	SourceHTTP   = "http"
	SourceFFmpeg = "ffmpeg"
)

type SourceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
}

type FetchConfig struct {
	Retries    int           `yaml:"retries" env:"RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type FrigateConfig struct {
	BaseURL       string        `yaml:"base_url" env:"BASE_URL"`
	RetryAttempts int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

type SelectionConfig struct {
	MaxFrames       int  `yaml:"max_frames" env:"MAX_FRAMES"`
	TargetWidth     int  `yaml:"target_width" env:"TARGET_WIDTH"`
	IncludeFilename bool `yaml:"include_filename" env:"INCLUDE_FILENAME"`
}

type ExposeConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	Dir           string        `yaml:"dir" env:"DIR"`
	Retention     time.Duration `yaml:"retention" env:"RETENTION"`
	SweepSchedule string        `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`
	MinIO         MinIOConfig   `yaml:"minio" envPrefix:"MINIO_"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	UseSSL    bool   `yaml:"use_ssl" env:"USE_SSL"`
}

type ProviderConfig struct {
	Kind        string        `yaml:"kind" env:"KIND"`
	Model       string        `yaml:"model" env:"MODEL"`
	Endpoint    string        `yaml:"endpoint" env:"ENDPOINT"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	Insecure    bool   `yaml:"insecure" env:"INSECURE"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" env:"BINARY_PATH"`
	ProbePath  string `yaml:"probe_path" env:"PROBE_PATH"`
	Threads    int    `yaml:"threads" env:"THREADS"`
}

// Load reads configuration from file or returns defaults. Environment
// variables prefixed with FRAMESIFT_ override file values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants the pipeline relies on
func (c *Config) Validate() error {
	if c.Selection.MaxFrames < 1 {
		return fmt.Errorf("selection.max_frames must be at least 1")
	}
	if c.Selection.TargetWidth < 1 {
		return fmt.Errorf("selection.target_width must be positive")
	}
	if c.Fetch.Retries < 1 {
		return fmt.Errorf("fetch.retries must be at least 1")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		switch src.Kind {
		case SourceHTTP, SourceFFmpeg:
		default:
			return fmt.Errorf("source %q: unknown kind %q", src.ID, src.Kind)
		}
		if src.URL == "" {
			return fmt.Errorf("source %q: url is required", src.ID)
		}
	}

	return nil
}

// Source looks up a configured source by id
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return SourceConfig{}, false
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		WorkDir: filepath.Join(os.TempDir(), "framesift"),
		Sources: []SourceConfig{},
		Fetch: FetchConfig{
			Retries:    2,
			RetryDelay: time.Second,
			Timeout:    10 * time.Second,
		},
		Frigate: FrigateConfig{
			BaseURL:       "http://localhost:8123",
			RetryAttempts: 2,
			RetryDelay:    time.Second,
		},
		Selection: SelectionConfig{
			MaxFrames:   3,
			TargetWidth: 1280,
		},
		Expose: ExposeConfig{
			Dir:           "./www/framesift",
			Retention:     72 * time.Hour,
			SweepSchedule: "@hourly",
		},
		Provider: ProviderConfig{
			Kind:        "ollama",
			Model:       "llava",
			MaxTokens:   100,
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		},
		Server: ServerConfig{
			Addr: ":8090",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "framesift",
			Insecure:    true,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".framesift", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
