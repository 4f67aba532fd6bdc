package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/sheetask/internal/ai"
	cfgpkg "github.com/KaramelBytes/sheetask/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set sheetask configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "api_key: %s\n", mask(cfg.APIKey))
		fmt.Fprintf(out, "provider: %s\n", cfg.Provider)
		fmt.Fprintf(out, "model: %s\n", cfg.Model)
		if cfg.BaseURL != "" {
			fmt.Fprintf(out, "base_url: %s\n", cfg.BaseURL)
		}
		fmt.Fprintf(out, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(out, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "request_timeout_sec: %d\n", cfg.RequestTimeoutSec)
		fmt.Fprintf(out, "retry: max=%d base_ms=%d max_ms=%d\n", cfg.RetryMaxAttempts, cfg.RetryBaseDelayMs, cfg.RetryMaxDelayMs)
		fmt.Fprintf(out, "server_addr: %s\n", cfg.ServerAddr)
		fmt.Fprintf(out, "max_upload_mb: %d\n", cfg.MaxUploadMB)
		fmt.Fprintf(out, "sessions: ttl_min=%d cleanup_interval_min=%d max=%d\n", cfg.SessionTTLMin, cfg.CleanupIntervalMin, cfg.MaxSessions)
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		if cfg.ModelsFile != "" {
			fmt.Fprintf(out, "models_file: %s\n", cfg.ModelsFile)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	intVal := func(dst *int, min int) error {
		i, err := strconv.Atoi(val)
		if err != nil || i < min {
			return fmt.Errorf("invalid int for %s: %q", key, val)
		}
		*dst = i
		return nil
	}
	switch key {
	case "api_key":
		c.APIKey = val
	case "provider":
		p := ai.NormalizeProvider(strings.TrimSpace(val))
		if _, ok := ai.GetRuntime(p, ai.RuntimeConfig{}); !ok {
			return fmt.Errorf("invalid provider: %s (use %s)", val, strings.Join(ai.Providers(), " or "))
		}
		c.Provider = p
	case "model":
		c.Model = val
	case "base_url":
		c.BaseURL = val
	case "max_tokens":
		return intVal(&c.MaxTokens, 0)
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %q (0..2)", val)
		}
		c.Temperature = f
	case "http_timeout_sec":
		return intVal(&c.HTTPTimeoutSec, 1)
	case "request_timeout_sec":
		return intVal(&c.RequestTimeoutSec, 1)
	case "retry_max_attempts":
		return intVal(&c.RetryMaxAttempts, 1)
	case "retry_base_delay_ms":
		return intVal(&c.RetryBaseDelayMs, 0)
	case "retry_max_delay_ms":
		return intVal(&c.RetryMaxDelayMs, 0)
	case "server_addr":
		c.ServerAddr = val
	case "max_upload_mb":
		return intVal(&c.MaxUploadMB, 1)
	case "session_ttl_min":
		return intVal(&c.SessionTTLMin, 0)
	case "cleanup_interval_min":
		return intVal(&c.CleanupIntervalMin, 0)
	case "max_sessions":
		return intVal(&c.MaxSessions, 0)
	case "log_level":
		c.LogLevel = val
	case "models_file":
		c.ModelsFile = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
