package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uqsoft/crossdock/internal/department"
)

// =============================================================================
// Default Configuration Tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	// Knowledge defaults
	assert.Equal(t, "knowledge", cfg.Knowledge.BaseDir)
	assert.False(t, cfg.Knowledge.Watch)
	assert.Equal(t, "2s", cfg.Knowledge.WatchDebounce)
	assert.Equal(t, runtime.NumCPU(), cfg.Knowledge.Workers)

	// Department defaults mirror the built-in set
	slugs := make([]string, 0, len(cfg.Departments))
	for _, d := range cfg.Departments {
		slugs = append(slugs, d.Slug)
	}
	assert.Contains(t, slugs, department.CommonSlug)
	assert.Contains(t, slugs, "sorting")
	assert.Contains(t, slugs, "delivery/courier")

	// Embeddings defaults
	assert.Equal(t, "", cfg.Embeddings.Provider) // Empty triggers auto-detection
	assert.Equal(t, "", cfg.Embeddings.Model)    // Provider default
	assert.Equal(t, 0, cfg.Embeddings.Dimensions)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 1000, cfg.Embeddings.CacheSize)
	assert.Equal(t, "", cfg.Embeddings.OllamaHost)

	// Retrieval defaults
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Retrieval.AdminTopK)
	assert.Equal(t, 200, cfg.Retrieval.DedupPrefix)
	assert.False(t, cfg.Retrieval.Hybrid)
	assert.Equal(t, 0.35, cfg.Retrieval.BM25Weight)
	assert.Equal(t, 0.65, cfg.Retrieval.SemanticWeight)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant) // Industry standard k=60

	// Ingestion defaults
	assert.Equal(t, RebuildScopeFull, cfg.Ingestion.RebuildScope)

	// Users defaults
	assert.NotEmpty(t, cfg.Users.DBPath)
	assert.Contains(t, cfg.Users.DBPath, "users.db")

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "", cfg.Logging.File)
}

func TestConfig_FusionWeightsSumToOne(t *testing.T) {
	cfg := NewConfig()
	sum := cfg.Retrieval.BM25Weight + cfg.Retrieval.SemanticWeight
	assert.InDelta(t, 1.0, sum, 0.01)
}

func TestNewConfig_ValidatesCleanly(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// Configuration File Loading Tests
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	// Given: a directory with no .crossdock.yaml and no user config
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are returned without error
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	// Given: a directory with .crossdock.yaml
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
knowledge:
  base_dir: /srv/knowledge
retrieval:
  top_k: 7
  admin_top_k: 9
  rrf_constant: 100
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: all overrides are applied
	require.NoError(t, err)
	assert.Equal(t, "/srv/knowledge", cfg.Knowledge.BaseDir)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, 9, cfg.Retrieval.AdminTopK)
	assert.Equal(t, 100, cfg.Retrieval.RRFConstant)
	// And: untouched sections keep their defaults
	assert.Equal(t, 200, cfg.Retrieval.DedupPrefix)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	// Given: a directory with .crossdock.yml (alternative extension)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
embeddings:
  provider: static
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: .yml file is recognized
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	// Given: both .yaml and .yml exist
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	yamlContent := `
embeddings:
  provider: ollama
`
	ymlContent := `
embeddings:
  provider: static
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(yamlContent), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tmpDir, ".crossdock.yml"), []byte(ymlContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: .yaml takes precedence
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	// Given: invalid YAML syntax
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	invalidContent := `
retrieval:
  top_k: [invalid yaml syntax
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error is returned with clear message
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	// Given: wrong type for a YAML-accessible field
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	invalidContent := `
retrieval:
  top_k: "not-a-number"
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error is returned
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_DepartmentsReplaceWholesale(t *testing.T) {
	// Given: a project config declaring its own department list
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
departments:
  - slug: common
    name: Common
  - slug: warehouse
    name: Warehouse
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: the default departments are replaced, not merged
	require.NoError(t, err)
	require.Len(t, cfg.Departments, 2)
	set, err := cfg.DepartmentSet()
	require.NoError(t, err)
	assert.True(t, set.Contains("warehouse"))
	assert.False(t, set.Contains("sorting"))
}

func TestLoad_DepartmentsWithoutCommon_ReturnsError(t *testing.T) {
	// Given: a department list missing the shared folder
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
departments:
  - slug: warehouse
    name: Warehouse
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: validation rejects it
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "common")
}

// =============================================================================
// Environment Variable Override Tests
// =============================================================================

func TestLoad_EnvVarOverridesProvider(t *testing.T) {
	// Given: YAML config and env var for provider
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
embeddings:
  provider: ollama
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("CROSSDOCK_EMBED_PROVIDER", "static")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var takes precedence
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_EnvVarOverridesKnowledgeDir(t *testing.T) {
	// Given: env var for the knowledge tree
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("CROSSDOCK_KNOWLEDGE_DIR", "/var/lib/crossdock/knowledge")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/crossdock/knowledge", cfg.Knowledge.BaseDir)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	// Given: env var for log level
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("CROSSDOCK_LOG_LEVEL", "debug")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvVarOverridesRebuildScope(t *testing.T) {
	// Given: env var for rebuild scope
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("CROSSDOCK_REBUILD_SCOPE", "department")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env var is applied
	require.NoError(t, err)
	assert.Equal(t, RebuildScopeDepartment, cfg.Ingestion.RebuildScope)
}

func TestLoad_EnvVarOverridesFusionWeights(t *testing.T) {
	// Given: YAML config with weights and env var override
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	configContent := `
retrieval:
  bm25_weight: 0.4
  semantic_weight: 0.6
`
	err := os.WriteFile(filepath.Join(tmpDir, ".crossdock.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("CROSSDOCK_BM25_WEIGHT", "0.5")
	t.Setenv("CROSSDOCK_SEMANTIC_WEIGHT", "0.5")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: env vars take precedence over YAML
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Retrieval.BM25Weight)
	assert.Equal(t, 0.5, cfg.Retrieval.SemanticWeight)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	// Given: empty env var
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Setenv("CROSSDOCK_EMBED_PROVIDER", "")

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: default is kept (empty string = auto-detect)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Embeddings.Provider)
}

// =============================================================================
// User/Global Configuration Tests
// =============================================================================

func TestGetUserConfigPath_DefaultsToXDGLocation(t *testing.T) {
	// Given: no XDG_CONFIG_HOME set
	t.Setenv("XDG_CONFIG_HOME", "")

	// When: getting user config path
	path := GetUserConfigPath()

	// Then: defaults to ~/.config/crossdock/config.yaml
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	expected := filepath.Join(home, ".config", "crossdock", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	// Given: XDG_CONFIG_HOME is set
	customConfig := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", customConfig)

	// When: getting user config path
	path := GetUserConfigPath()

	// Then: uses XDG_CONFIG_HOME
	expected := filepath.Join(customConfig, "crossdock", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigDir_ReturnsParentOfConfigPath(t *testing.T) {
	// When: getting user config directory
	dir := GetUserConfigDir()
	path := GetUserConfigPath()

	// Then: directory is parent of config file
	assert.Equal(t, filepath.Dir(path), dir)
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	// Given: XDG_CONFIG_HOME points to empty directory
	emptyDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", emptyDir)

	// When: checking if user config exists
	exists := UserConfigExists()

	// Then: returns false
	assert.False(t, exists)
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	// Given: user config with custom Ollama host
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	crossdockDir := filepath.Join(configDir, "crossdock")
	require.NoError(t, os.MkdirAll(crossdockDir, 0o755))
	userConfig := `
embeddings:
  ollama_host: http://custom-host:11434
`
	require.NoError(t, os.WriteFile(filepath.Join(crossdockDir, "config.yaml"), []byte(userConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: user config values are applied
	require.NoError(t, err)
	assert.Equal(t, "http://custom-host:11434", cfg.Embeddings.OllamaHost)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	// Given: both user and project configs exist
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	// User config
	crossdockDir := filepath.Join(configDir, "crossdock")
	require.NoError(t, os.MkdirAll(crossdockDir, 0o755))
	userConfig := `
embeddings:
  provider: ollama
  model: user-model
`
	require.NoError(t, os.WriteFile(filepath.Join(crossdockDir, "config.yaml"), []byte(userConfig), 0o644))

	// Project config (overrides user)
	projectConfig := `
embeddings:
  model: project-model
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".crossdock.yaml"), []byte(projectConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: project config takes precedence
	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Embeddings.Model)
	// And: user config's provider is still used (not overridden by project)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	// Given: all three config sources exist
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("CROSSDOCK_EMBED_MODEL", "env-model")

	// User config
	crossdockDir := filepath.Join(configDir, "crossdock")
	require.NoError(t, os.MkdirAll(crossdockDir, 0o755))
	userConfig := `
embeddings:
  model: user-model
`
	require.NoError(t, os.WriteFile(filepath.Join(crossdockDir, "config.yaml"), []byte(userConfig), 0o644))

	// Project config
	projectConfig := `
embeddings:
  model: project-model
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".crossdock.yaml"), []byte(projectConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: env var has highest precedence
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Embeddings.Model)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	// Given: invalid user config
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	crossdockDir := filepath.Join(configDir, "crossdock")
	require.NoError(t, os.MkdirAll(crossdockDir, 0o755))
	invalidConfig := `
embeddings:
  model: [invalid yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(crossdockDir, "config.yaml"), []byte(invalidConfig), 0o644))

	// When: loading configuration
	cfg, err := Load(projectDir)

	// Then: error is returned
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "user config")
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestValidate_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty base dir",
			mutate:  func(c *Config) { c.Knowledge.BaseDir = "" },
			wantErr: "base_dir",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Knowledge.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "unparseable debounce",
			mutate:  func(c *Config) { c.Knowledge.WatchDebounce = "soon" },
			wantErr: "watch_debounce",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "bedrock" },
			wantErr: "provider",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Embeddings.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "negative cache size",
			mutate:  func(c *Config) { c.Embeddings.CacheSize = -1 },
			wantErr: "cache_size",
		},
		{
			name:    "zero top k",
			mutate:  func(c *Config) { c.Retrieval.TopK = 0 },
			wantErr: "top_k",
		},
		{
			name:    "zero admin top k",
			mutate:  func(c *Config) { c.Retrieval.AdminTopK = 0 },
			wantErr: "admin_top_k",
		},
		{
			name:    "zero dedup prefix",
			mutate:  func(c *Config) { c.Retrieval.DedupPrefix = 0 },
			wantErr: "dedup_prefix",
		},
		{
			name: "weights not summing to one",
			mutate: func(c *Config) {
				c.Retrieval.BM25Weight = 0.8
				c.Retrieval.SemanticWeight = 0.8
			},
			wantErr: "must equal 1.0",
		},
		{
			name:    "zero rrf constant",
			mutate:  func(c *Config) { c.Retrieval.RRFConstant = 0 },
			wantErr: "rrf_constant",
		},
		{
			name:    "unknown rebuild scope",
			mutate:  func(c *Config) { c.Ingestion.RebuildScope = "incremental" },
			wantErr: "rebuild_scope",
		},
		{
			name:    "empty users db path",
			mutate:  func(c *Config) { c.Users.DBPath = "" },
			wantErr: "db_path",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "department slug with uppercase",
			mutate:  func(c *Config) { c.Departments = append(c.Departments, department.Department{Slug: "Sorting"}) },
			wantErr: "departments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatchDebounce_ParsesDuration(t *testing.T) {
	cfg := NewConfig()
	cfg.Knowledge.WatchDebounce = "1500ms"

	d, err := cfg.WatchDebounce()

	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestWatchDebounce_EmptyUsesDefault(t *testing.T) {
	cfg := NewConfig()
	cfg.Knowledge.WatchDebounce = ""

	d, err := cfg.WatchDebounce()

	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

// =============================================================================
// Round-Trip Tests
// =============================================================================

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	// Given: a customised configuration written to disk
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	cfg := NewConfig()
	cfg.Retrieval.TopK = 8
	cfg.Embeddings.Provider = "static"

	err := cfg.WriteYAML(filepath.Join(tmpDir, ".crossdock.yaml"))
	require.NoError(t, err)

	// When: loading it back
	loaded, err := Load(tmpDir)

	// Then: the custom values survive the round trip
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Retrieval.TopK)
	assert.Equal(t, "static", loaded.Embeddings.Provider)
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	// Given: a config file at an arbitrary path
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "crossdock.yaml")
	content := `
retrieval:
  top_k: 12
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When: loading by explicit path
	cfg, err := LoadFile(path)

	// Then: the file is applied over defaults
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
}

func TestLoadFile_MissingPath_ReturnsError(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestDepartmentSet_BuildsValidatedSet(t *testing.T) {
	cfg := NewConfig()

	set, err := cfg.DepartmentSet()

	require.NoError(t, err)
	assert.True(t, set.Contains(department.CommonSlug))
	assert.Equal(t, len(cfg.Departments), set.Len())
}
