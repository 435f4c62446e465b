package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearProviderEnv neutralizes credential and override variables so factory
// tests see only what they set themselves.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("CROSSDOCK_EMBED_CACHE", "")
	t.Setenv("CROSSDOCK_OLLAMA_TIMEOUT", "")
}

// ============================================================================
// TF01: Provider Parsing
// ============================================================================

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input string
		want  ProviderType
	}{
		{"gemini", ProviderGemini},
		{"GEMINI", ProviderGemini},
		{"openai", ProviderOpenAI},
		{"ollama", ProviderOllama},
		{"static", ProviderStatic},
		{"", ProviderAuto},
		{"mystery", ProviderAuto},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseProvider(tt.input), "input %q", tt.input)
	}
}

func TestIsValidProvider(t *testing.T) {
	assert.True(t, IsValidProvider("gemini"))
	assert.True(t, IsValidProvider("OpenAI"))
	assert.True(t, IsValidProvider("ollama"))
	assert.True(t, IsValidProvider("static"))
	assert.False(t, IsValidProvider(""))
	assert.False(t, IsValidProvider("mlx"))
}

// ============================================================================
// TF02: Explicit Provider Selection
// ============================================================================

func TestNewEmbedder_ExplicitStatic_NoWrapping(t *testing.T) {
	clearProviderEnv(t)

	// When: static is selected with the cache disabled
	embedder, err := NewEmbedder(context.Background(), Options{Provider: "static"})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	// Then: the bare static embedder comes back, no retry or cache layer
	assert.IsType(t, &StaticEmbedder{}, embedder)
}

func TestNewEmbedder_ExplicitStatic_WithCache(t *testing.T) {
	clearProviderEnv(t)

	embedder, err := NewEmbedder(context.Background(), Options{Provider: "static", CacheSize: 50})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	cached, ok := embedder.(*CachedEmbedder)
	require.True(t, ok, "expected cache wrapper")
	assert.IsType(t, &StaticEmbedder{}, cached.Inner(), "static must not get a retry layer")
}

func TestNewEmbedder_CacheDisabledByEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("CROSSDOCK_EMBED_CACHE", "false")

	embedder, err := NewEmbedder(context.Background(), Options{Provider: "static", CacheSize: 50})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	assert.IsType(t, &StaticEmbedder{}, embedder)
}

func TestNewEmbedder_ExplicitGemini_MissingKey_ReturnsError(t *testing.T) {
	clearProviderEnv(t)

	// When: gemini is selected without a key
	_, err := NewEmbedder(context.Background(), Options{Provider: "gemini"})

	// Then: construction fails loudly instead of downgrading
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestNewEmbedder_ExplicitGemini_WrapsRetryAndCache(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	embedder, err := NewEmbedder(context.Background(), Options{Provider: "gemini", CacheSize: 50})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	cached, ok := embedder.(*CachedEmbedder)
	require.True(t, ok, "expected cache wrapper")
	retrying, ok := cached.Inner().(*RetryingEmbedder)
	require.True(t, ok, "expected retry wrapper under the cache")
	assert.IsType(t, &GeminiEmbedder{}, retrying.Inner())
}

func TestNewEmbedder_ExplicitOpenAI_MissingKey_ReturnsError(t *testing.T) {
	clearProviderEnv(t)

	_, err := NewEmbedder(context.Background(), Options{Provider: "openai"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestNewEmbedder_ExplicitOllama_DaemonDown_ReturnsError(t *testing.T) {
	clearProviderEnv(t)

	// When: ollama is selected but nothing listens on the host
	_, err := NewEmbedder(context.Background(), Options{
		Provider:   "ollama",
		OllamaHost: "http://127.0.0.1:1",
	})

	// Then: the error explains the fix instead of silently degrading
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama unavailable")
	assert.Contains(t, err.Error(), "ollama serve")
}

func TestNewEmbedder_ExplicitOllama_UsesFakeDaemon(t *testing.T) {
	clearProviderEnv(t)
	fake := newFakeOllama(t, []string{"bge-m3:latest"}, 4)

	embedder, err := NewEmbedder(context.Background(), Options{
		Provider:   "ollama",
		OllamaHost: fake.server.URL,
	})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderOllama, info.Provider)
	assert.Equal(t, "bge-m3:latest", info.Model)
	assert.Equal(t, 4, info.Dimensions)
}

func TestNewEmbedder_OllamaTimeoutEnvVar(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("CROSSDOCK_OLLAMA_TIMEOUT", "90s")
	fake := newFakeOllama(t, []string{"bge-m3:latest"}, 4)

	embedder, err := NewEmbedder(context.Background(), Options{
		Provider:   "ollama",
		OllamaHost: fake.server.URL,
	})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	retrying, ok := embedder.(*RetryingEmbedder)
	require.True(t, ok)
	ollama, ok := retrying.Inner().(*OllamaEmbedder)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, ollama.config.Timeout)
}

func TestNewEmbedder_UnknownProvider_ReturnsError(t *testing.T) {
	clearProviderEnv(t)

	_, err := NewEmbedder(context.Background(), Options{Provider: "mlx"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embedding provider")
	assert.Contains(t, err.Error(), "static")
}

// ============================================================================
// TF03: Auto-Detection
// ============================================================================

func TestNewEmbedder_AutoDetect_PrefersGeminiKey(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "also-set")

	embedder, err := NewEmbedder(context.Background(), Options{})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderGemini, info.Provider)
}

func TestNewEmbedder_AutoDetect_FallsBackToOpenAIKey(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "test-key")

	embedder, err := NewEmbedder(context.Background(), Options{})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderOpenAI, info.Provider)
}

func TestNewEmbedder_AutoDetect_UsesLocalOllama(t *testing.T) {
	clearProviderEnv(t)
	fake := newFakeOllama(t, []string{"bge-m3:latest"}, 4)

	embedder, err := NewEmbedder(context.Background(), Options{OllamaHost: fake.server.URL})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderOllama, info.Provider)
}

func TestNewEmbedder_AutoDetect_NothingAvailable_FallsBackToStatic(t *testing.T) {
	clearProviderEnv(t)

	// When: no keys and no daemon
	embedder, err := NewEmbedder(context.Background(), Options{OllamaHost: "http://127.0.0.1:1"})

	// Then: auto-detect degrades to hash embeddings rather than failing
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)
	assert.Equal(t, ProviderStatic, info.Provider)
}

// ============================================================================
// TF04: Introspection
// ============================================================================

func TestGetInfo_UnwrapsCacheAndRetryLayers(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	embedder, err := NewEmbedder(context.Background(), Options{Provider: "gemini", CacheSize: 10})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	info := GetInfo(context.Background(), embedder)

	assert.Equal(t, ProviderGemini, info.Provider)
	assert.Equal(t, DefaultGeminiModel, info.Model)
	assert.Equal(t, DefaultGeminiDimensions, info.Dimensions)
	assert.True(t, info.Available)
}

func TestMustNewEmbedder_PanicsOnFailure(t *testing.T) {
	clearProviderEnv(t)

	assert.Panics(t, func() {
		MustNewEmbedder(context.Background(), Options{Provider: "gemini"})
	})
}

func TestMustNewEmbedder_ReturnsEmbedderOnSuccess(t *testing.T) {
	clearProviderEnv(t)

	embedder := MustNewEmbedder(context.Background(), Options{Provider: "static"})
	defer func() { _ = embedder.Close() }()

	assert.NotNil(t, embedder)
}
