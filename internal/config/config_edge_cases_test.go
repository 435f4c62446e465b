package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Merge Edge Cases
// =============================================================================

// TestLoad_ZeroValuesNotMerged tests that explicit zero values in config
// don't override defaults (potential silent failure).
func TestLoad_ZeroValuesNotMerged(t *testing.T) {
	// Given: config with explicit zero values
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
retrieval:
  top_k: 0
  dedup_prefix: 0
embeddings:
  batch_size: 0
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are kept (zero values don't override)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.TopK, "Zero should not override default top_k")
	assert.Equal(t, 200, cfg.Retrieval.DedupPrefix, "Zero should not override default dedup_prefix")
	assert.Equal(t, 32, cfg.Embeddings.BatchSize, "Zero should not override default batch_size")
	// Note: This documents the "can't set to zero" limitation
}

// TestLoad_NegativeValues_Validated tests that negative values are
// rejected by validation.
func TestLoad_NegativeValues_Validated(t *testing.T) {
	// Given: config with negative top_k
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
retrieval:
  top_k: -10
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: validation error is returned
	require.Error(t, err)
	require.Nil(t, cfg)
	assert.Contains(t, err.Error(), "top_k must be positive")
}

// TestLoad_WeightsSumValidated tests that fusion weights must sum to 1.0.
func TestLoad_WeightsSumValidated(t *testing.T) {
	// Given: a config with weights that don't sum to 1.0
	cfg := NewConfig()
	cfg.Retrieval.BM25Weight = 0.9
	cfg.Retrieval.SemanticWeight = 0.9

	// When: validating the configuration
	err := cfg.Validate()

	// Then: validation error is returned
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bm25_weight + semantic_weight must equal 1.0")
}

func TestLoad_NegativeDebounce_Rejected(t *testing.T) {
	// Given: a negative debounce interval
	cfg := NewConfig()
	cfg.Knowledge.WatchDebounce = "-2s"

	// When: validating the configuration
	err := cfg.Validate()

	// Then: validation error is returned
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
}

// =============================================================================
// Config File Permission Edge Cases
// =============================================================================

// TestLoad_UnreadableConfigFile_ReturnsError tests that unreadable config
// files return an error.
func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	// Skip on CI or if running as root
	if os.Getuid() == 0 {
		t.Skip("Test requires non-root user")
	}

	// Given: a config file with no read permissions
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".crossdock.yaml")
	err := os.WriteFile(configPath, []byte("retrieval:\n  top_k: 4\n"), 0o000)
	require.NoError(t, err)
	defer func() { _ = os.Chmod(configPath, 0o644) }()

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error should be returned
	require.Error(t, err, "Load should fail for unreadable config file")
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read", "Error should mention read failure")
}

// =============================================================================
// Serialization Edge Cases
// =============================================================================

func TestConfig_JSON_RoundTrip(t *testing.T) {
	// Given: a default configuration
	cfg := NewConfig()
	cfg.Retrieval.TopK = 6

	// When: marshaling and unmarshaling through JSON
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Then: values survive the round trip
	assert.Equal(t, 6, decoded.Retrieval.TopK)
	assert.Equal(t, cfg.Knowledge.BaseDir, decoded.Knowledge.BaseDir)
	assert.Equal(t, len(cfg.Departments), len(decoded.Departments))
}

func TestLoad_UnknownKeys_Ignored(t *testing.T) {
	// Given: a config with keys from a newer release
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
retrieval:
  top_k: 4
experimental:
  reranker: cross-encoder
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: known keys are applied and unknown keys are skipped
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
}
