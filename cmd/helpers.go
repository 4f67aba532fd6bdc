package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/KaramelBytes/sheetask/internal/ai"
	"github.com/KaramelBytes/sheetask/internal/assistant"
	cfgpkg "github.com/KaramelBytes/sheetask/internal/config"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/interpret"
	"github.com/KaramelBytes/sheetask/internal/logging"
	"github.com/KaramelBytes/sheetask/internal/mediator"
	"github.com/KaramelBytes/sheetask/internal/utils"
)

// requireConfig returns the loaded config after checking what oracle calls need.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(c *cfgpkg.Global) *zap.Logger {
	level := "info"
	if c != nil {
		level = c.LogLevel
	}
	l, err := logging.New(level, debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: logger: %v\n", err)
		return zap.NewNop()
	}
	return l
}

// buildRuntime constructs the oracle runtime named by the config.
func buildRuntime(c *cfgpkg.Global) (ai.Runtime, error) {
	rc := ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		Retry: ai.RetryPolicy{
			MaxAttempts: c.RetryMaxAttempts,
			BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		},
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
	}
	rt, ok := ai.GetRuntime(strings.ToLower(strings.TrimSpace(c.Provider)), rc)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", c.Provider, strings.Join(ai.Providers(), ", "))
	}
	return rt, nil
}

// newAssistant wires config, runtime and mediator into an assistant.Service.
func newAssistant(c *cfgpkg.Global, logger *zap.Logger) (*assistant.Service, error) {
	rt, err := buildRuntime(c)
	if err != nil {
		return nil, err
	}
	med := mediator.New(rt, mediator.Options{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.RequestTimeout(),
		Logger:      logger,
	})
	return assistant.New(med, nil, logger), nil
}

// loadDataset reads and cleans a spreadsheet from disk.
func loadDataset(path, sheet string) (original, cleaned *dataset.Dataset, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	original, err = dataset.Load(filepath.Base(path), f, dataset.LoadOptions{Sheet: sheet})
	if err != nil {
		return nil, nil, err
	}
	return original, dataset.Clean(original), nil
}

// writeDataset writes ds as CSV for a .csv path and as xlsx otherwise.
func writeDataset(path string, ds *dataset.Dataset) error {
	var buf bytes.Buffer
	var err error
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		err = dataset.WriteCSV(&buf, ds)
	} else {
		err = dataset.WriteXLSX(&buf, ds)
	}
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes(), 0o644)
}

// oracleHint turns pipeline errors into actionable messages.
func oracleHint(err error, model string) error {
	var (
		authErr  *ai.AuthError
		rlErr    *ai.RateLimitError
		nfErr    *ai.ModelNotFoundError
		brErr    *ai.BadRequestError
		qErr     *ai.QuotaExceededError
		sErr     *ai.ServerError
		unreach  *ai.UnreachableError
		bigErr   *mediator.PromptTooLargeError
		parseErr *interpret.ParseError
		schErr   *interpret.SchemaError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &bigErr):
		return fmt.Errorf("the dataset is too large for %s. Try a model with a larger context window (--model): %w", model, err)
	case errors.As(err, &unreach):
		return fmt.Errorf("endpoint unreachable (%s). Check your network and provider settings: %w", unreach.Host, err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: set SHEETASK_API_KEY or run 'sheetask config set api_key <key>': %w", err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		return fmt.Errorf("model not found (%s). Verify the model name with 'sheetask models show': %w", model, err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request invalid. Try a smaller sheet or lower max_tokens: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("request timed out. Raise --request-timeout or retry: %w", err)
	case errors.As(err, &parseErr):
		return fmt.Errorf("the model did not return chart JSON. Rephrase the description and retry: %w", err)
	case errors.As(err, &schErr):
		return fmt.Errorf("invalid chart data: %w", err)
	}
	return err
}

// renderMarkdown formats text for w, falling back to the raw text. Colors are
// used only when w is a terminal.
func renderMarkdown(w io.Writer, text string, width int) string {
	style := glamour.WithStandardStyle("notty")
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return text
	}
	s, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(s, "\n")
}
