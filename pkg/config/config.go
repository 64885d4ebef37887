package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath      = "config.yaml"
	defaultUploadDir       = "./temp"
	defaultFrameDir        = "./static/frames"
	defaultIntervalSeconds = 1.0
	defaultMaxFrames       = 10
	defaultBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel           = "qwen/qwen2.5-vl-72b-instruct:free"
	defaultMaxTokens       = 4000
	defaultTimeoutSeconds  = 120
	defaultMaxRetries      = 3
	defaultInitialDelay    = 500 * time.Millisecond
	defaultMaxDelay        = 5 * time.Second
	defaultMultiplier      = 2.0
	defaultPort            = "8080"
	defaultMaxUploadMB     = 200
	defaultGCSPrefix       = "analyses"
)

type Config struct {
	APIKey    string
	GCSBucket string
	Port      string

	Sampling SamplingConfig `yaml:"sampling"`
	Vision   VisionConfig   `yaml:"vision"`
	Retry    RetryConfig    `yaml:"retry"`
	Server   ServerConfig   `yaml:"server"`
	GCS      GCSConfig      `yaml:"gcs"`
}

type SamplingConfig struct {
	IntervalSeconds float64 `yaml:"interval_seconds"`
	MaxFrames       int     `yaml:"max_frames"`
}

type VisionConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	MaxDelayMS     int     `yaml:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
}

type ServerConfig struct {
	UploadDir   string `yaml:"upload_dir"`
	FrameDir    string `yaml:"frame_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type GCSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		APIKey:    os.Getenv("OPENROUTER_API_KEY"),
		GCSBucket: os.Getenv("GCS_BUCKET"),
		Port:      getEnvOrDefault("PORT", defaultPort),
	}

	loadYAMLConfig(cfg)
	applyDefaults(cfg)

	return cfg
}

// Validate checks the invariants the pipeline depends on. The API key is not
// checked here: a missing credential surfaces as an auth failure on the first
// describe call, which is where it is reported as a configuration problem.
func (c *Config) Validate() error {
	if c.Sampling.IntervalSeconds <= 0 {
		return fmt.Errorf("sampling.interval_seconds must be positive, got %g", c.Sampling.IntervalSeconds)
	}
	if c.Sampling.MaxFrames <= 0 {
		return fmt.Errorf("sampling.max_frames must be positive, got %d", c.Sampling.MaxFrames)
	}
	if c.GCS.Enabled && c.GCSBucket == "" {
		return fmt.Errorf("gcs archival enabled but GCS_BUCKET is not set")
	}
	return nil
}

func (c *Config) InitialDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMS) * time.Millisecond
}

func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Vision.TimeoutSeconds) * time.Second
}

func loadYAMLConfig(cfg *Config) {
	data, err := os.ReadFile(defaultConfigPath)
	if err != nil {
		slog.Warn("No config.yaml found, using defaults")
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Error("Failed to parse config.yaml", "error", err)
	}
}

func applyDefaults(cfg *Config) {
	applySamplingDefaults(cfg)
	applyVisionDefaults(cfg)
	applyRetryDefaults(cfg)
	applyServerDefaults(cfg)
	applyGCSDefaults(cfg)
}

func applySamplingDefaults(cfg *Config) {
	if cfg.Sampling.IntervalSeconds == 0 {
		cfg.Sampling.IntervalSeconds = defaultIntervalSeconds
	}
	if cfg.Sampling.MaxFrames == 0 {
		cfg.Sampling.MaxFrames = defaultMaxFrames
	}
}

func applyVisionDefaults(cfg *Config) {
	if cfg.Vision.BaseURL == "" {
		cfg.Vision.BaseURL = defaultBaseURL
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = defaultModel
	}
	if cfg.Vision.MaxTokens == 0 {
		cfg.Vision.MaxTokens = defaultMaxTokens
	}
	if cfg.Vision.TimeoutSeconds == 0 {
		cfg.Vision.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func applyRetryDefaults(cfg *Config) {
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = defaultMaxRetries
	}
	if cfg.Retry.InitialDelayMS == 0 {
		cfg.Retry.InitialDelayMS = int(defaultInitialDelay / time.Millisecond)
	}
	if cfg.Retry.MaxDelayMS == 0 {
		cfg.Retry.MaxDelayMS = int(defaultMaxDelay / time.Millisecond)
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = defaultMultiplier
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = defaultUploadDir
	}
	if cfg.Server.FrameDir == "" {
		cfg.Server.FrameDir = defaultFrameDir
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = defaultMaxUploadMB
	}
}

func applyGCSDefaults(cfg *Config) {
	if cfg.GCS.Prefix == "" {
		cfg.GCS.Prefix = defaultGCSPrefix
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
