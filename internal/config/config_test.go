package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SHEETASK_API_KEY", "")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Provider != "gemini" || c.Model != "gemini-1.5-flash" {
		t.Fatalf("provider/model = %s/%s", c.Provider, c.Model)
	}
	if c.APIKey != "" {
		t.Fatalf("api key must have no default, got %q", c.APIKey)
	}
	if !errors.Is(c.Validate(), ErrMissingAPIKey) {
		t.Fatalf("Validate = %v, want ErrMissingAPIKey", c.Validate())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api_key: from-file\nmodel: gemini-1.5-pro\nmax_sessions: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHEETASK_API_KEY", "from-env")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.APIKey != "from-env" {
		t.Fatalf("api_key = %q, want env value", c.APIKey)
	}
	if c.Model != "gemini-1.5-pro" || c.MaxSessions != 7 {
		t.Fatalf("file values not applied: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv("SHEETASK_API_KEY", "")
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	in := &Global{APIKey: "abc", Provider: "openrouter", Model: "openai/gpt-4o-mini", MaxTokens: 100, Temperature: 0.5}
	if err := Save(in, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.APIKey != "abc" || out.Provider != "openrouter" || out.MaxTokens != 100 {
		t.Fatalf("round trip = %+v", out)
	}
}

func TestValidateRejectsBadTemperature(t *testing.T) {
	c := &Global{APIKey: "k", Model: "m", Temperature: 3}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error")
	}
}
