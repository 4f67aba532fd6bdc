package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestGeminiGenerate(t *testing.T) {
	var got geminiRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-1.5-flash:generateContent" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"role": "model", "parts": []any{
					map[string]any{"text": "hello "}, map[string]any{"text": "sheet"},
				}},
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 7, "candidatesTokenCount": 2, "totalTokenCount": 9},
		})
	}))
	defer srv.Close()

	c := NewGeminiClientWithBaseURL("secret", 2*time.Second, fastRetry, srv.URL)
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model:     "google/gemini-1.5-flash",
		Messages:  []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text() != "hello sheet" {
		t.Fatalf("text = %q", resp.Text())
	}
	if resp.Usage.TotalTokens != 9 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction not forwarded: %+v", got)
	}
	if len(got.Contents) != 1 || got.Contents[0].Role != "user" {
		t.Fatalf("contents = %+v", got.Contents)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.MaxOutputTokens != 64 {
		t.Fatalf("generation config = %+v", got.GenerationConfig)
	}
}

func TestGeminiRetriesResourceExhausted(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 429, "message": "slow down", "status": "RESOURCE_EXHAUSTED"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": "ok"}}}}},
		})
	}))
	defer srv.Close()

	c := NewGeminiClientWithBaseURL("k", 2*time.Second, fastRetry, srv.URL)
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "gemini-1.5-flash", Messages: []Message{{Role: "user", Content: "x"}}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text() != "ok" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("text=%q calls=%d", resp.Text(), calls)
	}
}

func TestGeminiInvalidKeyIsAuthError(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 400, "message": "API key not valid. Please pass a valid API key.", "status": "INVALID_ARGUMENT"}})
	}))
	defer srv.Close()

	c := NewGeminiClientWithBaseURL("bad", time.Second, RetryPolicy{MaxAttempts: 1}, srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "gemini-1.5-flash", Messages: []Message{{Role: "user", Content: "x"}}})
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if ae.Code != "INVALID_ARGUMENT" {
		t.Fatalf("code = %q", ae.Code)
	}
}

func TestRegistryBuildsBothProviders(t *testing.T) {
	for _, name := range []string{ProviderGemini, ProviderGoogle, ProviderOpenRouter} {
		rt, ok := GetRuntime(name, RuntimeConfig{APIKey: "k"})
		if !ok || rt == nil {
			t.Fatalf("provider %s not registered", name)
		}
	}
	if _, ok := GetRuntime("ollama", RuntimeConfig{}); ok {
		t.Fatal("unexpected ollama runtime")
	}
}
