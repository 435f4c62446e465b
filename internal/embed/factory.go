package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderAuto selects a provider from available credentials:
	// Gemini, then OpenAI, then a local Ollama daemon, then static.
	ProviderAuto ProviderType = ""

	// ProviderGemini uses the Gemini API (the production default)
	ProviderGemini ProviderType = "gemini"

	// ProviderOpenAI uses the OpenAI API
	ProviderOpenAI ProviderType = "openai"

	// ProviderOllama uses a local Ollama daemon (no API key required)
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline fallback)
	ProviderStatic ProviderType = "static"
)

// Options configures embedder construction. Provider, model, and sizing come
// from the config file; API keys are read only from the environment
// (GEMINI_API_KEY, OPENAI_API_KEY) so they never end up in YAML.
type Options struct {
	// Provider selects the backend ("" = auto-detect)
	Provider string

	// Model overrides the provider's default model
	Model string

	// Dimensions overrides the provider's default dimensions (0 = default)
	Dimensions int

	// BatchSize for batch embedding requests (0 = default)
	BatchSize int

	// CacheSize is the LRU embedding cache capacity (0 = cache disabled)
	CacheSize int

	// OllamaHost overrides the Ollama endpoint. Falls back to the
	// conventional OLLAMA_HOST variable, then localhost.
	OllamaHost string
}

// NewEmbedder creates an embedder from the given options.
//
// An explicitly selected provider that cannot start is an error, never a
// silent downgrade: an operator who configured Gemini should not discover at
// query time that answers were served from hash embeddings. Only auto-detect
// may fall back, and it logs when it does.
//
// Remote providers are wrapped with retry; every provider is wrapped with an
// LRU cache unless CacheSize is zero or CROSSDOCK_EMBED_CACHE disables it.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var embedder Embedder
	var err error

	switch ProviderType(strings.ToLower(opts.Provider)) {
	case ProviderGemini:
		embedder, err = newGeminiFromOptions(ctx, opts)

	case ProviderOpenAI:
		embedder, err = newOpenAIFromOptions(opts)

	case ProviderOllama:
		embedder, err = newOllamaFromOptions(ctx, opts)

	case ProviderStatic:
		embedder = NewStaticEmbedder()

	case ProviderAuto:
		embedder, err = detectEmbedder(ctx, opts)

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			opts.Provider, strings.Join(ValidProviders(), ", "))
	}

	if err != nil {
		return nil, err
	}

	// Remote providers get retry; static failures are never transient.
	if _, isStatic := embedder.(*StaticEmbedder); !isStatic {
		embedder = NewRetryingEmbedder(embedder)
	}

	if opts.CacheSize > 0 && !isCacheDisabled() {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}

	return embedder, nil
}

// detectEmbedder picks a provider from available credentials.
func detectEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	if os.Getenv("GEMINI_API_KEY") != "" {
		return newGeminiFromOptions(ctx, opts)
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return newOpenAIFromOptions(opts)
	}

	embedder, err := newOllamaFromOptions(ctx, opts)
	if err == nil {
		return embedder, nil
	}

	slog.Warn("no embedding provider available, using hash embeddings",
		slog.String("ollama_error", err.Error()))
	return NewStaticEmbedder(), nil
}

func newGeminiFromOptions(ctx context.Context, opts Options) (Embedder, error) {
	return NewGeminiEmbedder(ctx, GeminiConfig{
		APIKey:     os.Getenv("GEMINI_API_KEY"),
		Model:      opts.Model,
		Dimensions: opts.Dimensions,
		BatchSize:  opts.BatchSize,
	})
}

func newOpenAIFromOptions(opts Options) (Embedder, error) {
	return NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		Model:      opts.Model,
		Dimensions: opts.Dimensions,
		BatchSize:  opts.BatchSize,
	})
}

func newOllamaFromOptions(ctx context.Context, opts Options) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.Dimensions > 0 {
		cfg.Dimensions = opts.Dimensions
	}
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}

	switch {
	case opts.OllamaHost != "":
		cfg.Host = opts.OllamaHost
	case os.Getenv("OLLAMA_HOST") != "":
		cfg.Host = os.Getenv("OLLAMA_HOST")
	}

	// Escape hatch for slow hardware
	if timeoutStr := os.Getenv("CROSSDOCK_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or set GEMINI_API_KEY / OPENAI_API_KEY\n  3. Or set embeddings.provider: static for keyword-quality retrieval", err)
	}
	return embedder, nil
}

// isCacheDisabled checks if the embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("CROSSDOCK_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// ParseProvider converts a string to ProviderType
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "gemini":
		return ProviderGemini
	case "openai":
		return ProviderOpenAI
	case "ollama":
		return ProviderOllama
	case "static":
		return ProviderStatic
	default:
		return ProviderAuto
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderGemini),
		string(ProviderOpenAI),
		string(ProviderOllama),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo contains information about an embedder
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	// Unwrap cache and retry layers to reach the provider
	inner := embedder
	for {
		switch e := inner.(type) {
		case *CachedEmbedder:
			inner = e.inner
		case *RetryingEmbedder:
			inner = e.inner
		default:
			info.Provider = providerOf(inner)
			return info
		}
	}
}

func providerOf(embedder Embedder) ProviderType {
	switch embedder.(type) {
	case *GeminiEmbedder:
		return ProviderGemini
	case *OpenAIEmbedder:
		return ProviderOpenAI
	case *OllamaEmbedder:
		return ProviderOllama
	default:
		return ProviderStatic
	}
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, opts Options) Embedder {
	embedder, err := NewEmbedder(ctx, opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
