package ai

import (
	"encoding/json"
	"os"
)

// ModelInfo is catalog metadata used for the context-window guard and cost hints.
// Prices are indicative; verify them against the provider.
type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	"gemini-1.5-flash": {
		Name: "gemini-1.5-flash", Provider: ProviderGemini,
		ContextTokens: 1000000, InputPerK: 0.000075, OutputPerK: 0.0003,
	},
	"gemini-1.5-pro": {
		Name: "gemini-1.5-pro", Provider: ProviderGemini,
		ContextTokens: 2000000, InputPerK: 0.00125, OutputPerK: 0.005,
	},
	"gemini-2.0-flash": {
		Name: "gemini-2.0-flash", Provider: ProviderGemini,
		ContextTokens: 1000000, InputPerK: 0.0001, OutputPerK: 0.0004,
	},
	"gemini-pro": {
		Name: "gemini-pro", Provider: ProviderGemini,
		ContextTokens: 32760, InputPerK: 0.0005, OutputPerK: 0.0015,
	},
	"google/gemini-1.5-flash": {
		Name: "google/gemini-1.5-flash", Provider: ProviderOpenRouter,
		ContextTokens: 1000000, InputPerK: 0.0002, OutputPerK: 0.0008,
	},
	"openai/gpt-4o-mini": {
		Name: "openai/gpt-4o-mini", Provider: ProviderOpenRouter,
		ContextTokens: 128000, InputPerK: 0.0006, OutputPerK: 0.0024,
	},
	"openai/gpt-4o": {
		Name: "openai/gpt-4o", Provider: ProviderOpenRouter,
		ContextTokens: 128000, InputPerK: 0.005, OutputPerK: 0.015,
	},
	"anthropic/claude-3.5-sonnet": {
		Name: "anthropic/claude-3.5-sonnet", Provider: ProviderOpenRouter,
		ContextTokens: 200000, InputPerK: 0.003, OutputPerK: 0.015,
	},
	"anthropic/claude-3-haiku": {
		Name: "anthropic/claude-3-haiku", Provider: ProviderOpenRouter,
		ContextTokens: 200000, InputPerK: 0.00025, OutputPerK: 0.00125,
	},
	"meta-llama/llama-3.1-70b-instruct": {
		Name: "meta-llama/llama-3.1-70b-instruct", Provider: ProviderOpenRouter,
		ContextTokens: 131072,
	},
	"deepseek/deepseek-r1:free": {
		Name: "deepseek/deepseek-r1:free", Provider: ProviderOpenRouter,
		ContextTokens: 128000,
	},
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON reads a map[string]ModelInfo from a JSON file.
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns a shallow copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}
