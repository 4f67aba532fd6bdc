// Package mediator turns a dataset and a user query into one oracle request.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/sheetask/internal/ai"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/logging"
	"github.com/KaramelBytes/sheetask/internal/utils"
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query is empty")

var errEmptyResponse = errors.New("oracle returned no text")

// OracleError wraps any failure of the oracle call.
type OracleError struct {
	Err error
}

func (e *OracleError) Error() string { return "oracle request failed: " + e.Err.Error() }

func (e *OracleError) Unwrap() error { return e.Err }

// PromptTooLargeError is returned before sending when the prompt and the
// response budget do not fit the model's context window.
type PromptTooLargeError struct {
	Model         string
	PromptTokens  int
	MaxTokens     int
	ContextTokens int
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf("prompt (~%d tokens) + max tokens (%d) exceeds %s context window (~%d tokens)",
		e.PromptTokens, e.MaxTokens, e.Model, e.ContextTokens)
}

// Options configures a Mediator.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Mediator sends prompts to one oracle runtime.
type Mediator struct {
	rt          ai.Runtime
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// New returns a Mediator over rt.
func New(rt ai.Runtime, o Options) *Mediator {
	return &Mediator{
		rt:          rt,
		model:       o.Model,
		maxTokens:   o.MaxTokens,
		temperature: o.Temperature,
		timeout:     o.Timeout,
		logger:      logging.OrNop(o.Logger),
	}
}

// Model is the model name requests are sent to.
func (m *Mediator) Model() string { return m.model }

// Query asks the oracle about ds and returns its text answer.
func (m *Mediator) Query(ctx context.Context, ds *dataset.Dataset, query string) (text string, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	prompt := BuildPrompt(ds, query)
	tokens := utils.CountTokens(prompt)
	if mi, ok := ai.LookupModel(m.model); ok && mi.ContextTokens > 0 && tokens+m.maxTokens > mi.ContextTokens {
		return "", &PromptTooLargeError{Model: m.model, PromptTokens: tokens, MaxTokens: m.maxTokens, ContextTokens: mi.ContextTokens}
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &OracleError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if ce := m.logger.Check(zap.DebugLevel, "oracle request"); ce != nil {
		ce.Write(
			zap.String("model", m.model),
			zap.Int("prompt_tokens", tokens),
			zap.Any("breakdown", utils.TokenBreakdown(map[string]string{"data": ds.String(), "query": query})),
		)
	}
	start := time.Now()
	resp, err := m.rt.Generate(ctx, ai.GenerateRequest{
		Model:       m.model,
		Messages:    []ai.Message{{Role: "user", Content: prompt}},
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
	})
	if err != nil {
		m.logger.Warn("oracle request failed", zap.String("model", m.model), zap.Error(err))
		return "", &OracleError{Err: err}
	}
	text = resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &OracleError{Err: errEmptyResponse}
	}
	fields := []zap.Field{
		zap.String("model", m.model),
		zap.String("request_id", resp.RequestID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	}
	promptTokens := resp.Usage.PromptTokens
	if promptTokens == 0 {
		promptTokens = tokens
	}
	if cost, ok := ai.EstimateCostUSD(m.model, promptTokens, resp.Usage.CompletionTokens); ok {
		fields = append(fields, zap.Float64("est_cost_usd", cost))
	}
	m.logger.Info("oracle response", fields...)
	m.logger.Debug("oracle response text", zap.String("preview", utils.TruncateToTokenLimit(text, 64)))
	return text, nil
}
