package ai

import "context"

// Runtime is the single operation every oracle backend provides.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers accepted by the registry.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderGoogle     = "google"
)

// NormalizeProvider maps aliases onto registered provider names.
func NormalizeProvider(name string) string {
	switch name {
	case ProviderGoogle, "Gemini", "GEMINI", "Google":
		return ProviderGemini
	case "OpenRouter", "OPENROUTER", "openai":
		return ProviderOpenRouter
	}
	return name
}
