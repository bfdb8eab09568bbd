package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keagan/goalcut/internal/goals"
	"github.com/keagan/goalcut/internal/highlights"
	"github.com/keagan/goalcut/internal/publish"
	"github.com/keagan/goalcut/internal/upload"
	"github.com/keagan/goalcut/internal/vision"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	TempDir string `yaml:"temp_dir"`
	DBPath  string `yaml:"db_path"`

	// Goal detection tunables
	Detection goals.Config `yaml:"detection"`

	// Object detector settings
	Vision vision.Config `yaml:"vision"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	Highlights highlights.Config `yaml:"highlights"`
	Upload     upload.Config     `yaml:"upload"`
	Kafka      publish.Config    `yaml:"kafka"`
	API        APIConfig         `yaml:"api"`
}

type FFmpegConfig struct {
	Threads int `yaml:"threads"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads .env, then configuration from file or defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment. Setting a
// bucket or broker list also enables the matching stage.
func (c *Config) applyEnv() {
	if v := os.Getenv("GOALCUT_S3_BUCKET"); v != "" {
		c.Upload.Bucket = v
		c.Upload.Enabled = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.Upload.Region = v
	}
	if v := os.Getenv("KAFKA_BOOTSTRAP_SERVERS"); v != "" {
		c.Kafka.BootstrapServers = v
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("GOALCUT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("GOALCUT_MODEL_PATH"); v != "" {
		c.Vision.ModelPath = v
	}
}

// Validate checks every section that will be used.
func (c *Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	if c.Highlights.Enabled {
		if err := c.Highlights.Validate(); err != nil {
			return err
		}
	}
	if err := c.Upload.Validate(); err != nil {
		return err
	}
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	if c.Vision.InputSize <= 0 {
		return fmt.Errorf("vision input_size must be positive, got %d", c.Vision.InputSize)
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		DBPath:     "goalcut.db",
		Detection:  goals.DefaultConfig(),
		Vision:     vision.DefaultConfig(),
		Highlights: highlights.DefaultConfig(),
		Upload: upload.Config{
			Region: "us-east-1",
		},
		Kafka: publish.Config{
			Topic:          "goal-events",
			Acks:           "all",
			FlushTimeoutMS: 30000,
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./goalcut.yaml",
		"./goalcut.yml",
		filepath.Join(os.Getenv("HOME"), ".goalcut", "config.yaml"),
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
