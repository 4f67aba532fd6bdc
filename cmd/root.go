package cmd

import (
	"fmt"
	"os"

	"github.com/KaramelBytes/sheetask/internal/ai"
	cfgpkg "github.com/KaramelBytes/sheetask/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	cfgFile string
	debug   bool
	// Oracle flags (override config if set)
	flagProvider          string
	flagModel             string
	flagHTTPTimeoutSec    int
	flagRequestTimeoutSec int
	flagRetryMaxAttempts  int
	flagRetryBaseDelayMs  int
	flagRetryMaxDelayMs   int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "sheetask",
	Short: "sheetask: ask questions about a spreadsheet, modify it, and chart it",
	Long: `sheetask loads a spreadsheet, cleans it, and sends it with a natural-language query to a
language model. Answers can propose a modification, which is applied to a copy of the data
only after confirmation, or a chart, which is rendered to HTML.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ~/.sheetask/config.yaml)")
	f.BoolVar(&debug, "debug", false, "enable debug output")
	f.StringVar(&flagProvider, "provider", "", "oracle provider: gemini|openrouter (overrides config)")
	f.StringVar(&flagModel, "model", "", "model name (overrides config)")
	f.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	f.IntVar(&flagRequestTimeoutSec, "request-timeout", 0, "bound on one oracle request including retries, in seconds (overrides config)")
	f.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts on 429/5xx and network errors (overrides config)")
	f.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	f.IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands that need config report it themselves
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("provider") && flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if f.Changed("model") && flagModel != "" {
		cfg.Model = flagModel
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("request-timeout") && flagRequestTimeoutSec > 0 {
		cfg.RequestTimeoutSec = flagRequestTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}

	if cfg.ModelsFile != "" {
		m, err := ai.LoadCatalogFromJSON(cfg.ModelsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: model catalog %s not loaded: %v\n", cfg.ModelsFile, err)
			return
		}
		ai.MergeCatalog(m)
	}
}
