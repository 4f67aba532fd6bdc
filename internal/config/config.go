package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/sheetask/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned by Validate when no oracle key is configured.
var ErrMissingAPIKey = errors.New("api_key is not set (use SHEETASK_API_KEY or 'sheetask config set api_key <key>')")

// Global configuration structure.
type Global struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec    int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RequestTimeoutSec int `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	RetryMaxAttempts  int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs  int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs   int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Server
	ServerAddr         string `mapstructure:"server_addr" yaml:"server_addr"`
	MaxUploadMB        int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	SessionTTLMin      int    `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`
	CleanupIntervalMin int    `mapstructure:"cleanup_interval_min" yaml:"cleanup_interval_min"`
	MaxSessions        int    `mapstructure:"max_sessions" yaml:"max_sessions"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// ModelsFile is a JSON model catalog merged over the built-in one at startup.
	ModelsFile string `mapstructure:"models_file" yaml:"models_file,omitempty"`
}

// Validate checks the settings needed before any oracle call is made.
func (c *Global) Validate() error {
	if c == nil {
		return errors.New("configuration not loaded")
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Model == "" {
		return errors.New("model is not set")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0,2], got %.2f", c.Temperature)
	}
	return nil
}

// RequestTimeout is the bound on one logical oracle request, retries included.
func (c *Global) RequestTimeout() time.Duration {
	if c.RequestTimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// DefaultDir returns ~/.sheetask.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".sheetask"), nil
}

// Save writes c to cfgFile, or to ~/.sheetask/config.yaml when cfgFile is empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env (SHEETASK_*) > config file > defaults; command flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("SHEETASK")
	v.AutomaticEnv()

	v.SetDefault("api_key", "")
	v.SetDefault("provider", "gemini")
	v.SetDefault("model", "gemini-1.5-flash")
	v.SetDefault("base_url", "")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("request_timeout_sec", 120)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("max_upload_mb", 20)
	v.SetDefault("session_ttl_min", 30)
	v.SetDefault("cleanup_interval_min", 5)
	v.SetDefault("max_sessions", 100)
	v.SetDefault("log_level", "info")
	v.SetDefault("models_file", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
