// Package config loads and validates crossdock configuration.
//
// Configuration is applied in order of increasing precedence: hardcoded
// defaults, user config (~/.config/crossdock/config.yaml), project config
// (.crossdock.yaml in the working directory), then CROSSDOCK_* environment
// variables. Secrets (provider API keys) are never read from YAML.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uqsoft/crossdock/internal/department"
)

// Config represents the complete crossdock configuration.
type Config struct {
	Knowledge   KnowledgeConfig         `yaml:"knowledge" json:"knowledge"`
	Departments []department.Department `yaml:"departments" json:"departments"`
	Embeddings  EmbeddingsConfig        `yaml:"embeddings" json:"embeddings"`
	Retrieval   RetrievalConfig         `yaml:"retrieval" json:"retrieval"`
	Ingestion   IngestionConfig         `yaml:"ingestion" json:"ingestion"`
	Users       UsersConfig             `yaml:"users" json:"users"`
	Logging     LoggingConfig           `yaml:"logging" json:"logging"`
}

// KnowledgeConfig configures the artifact tree and index building.
type KnowledgeConfig struct {
	// BaseDir is the root of the knowledge tree, one folder per department.
	BaseDir string `yaml:"base_dir" json:"base_dir"`
	// Watch enables filesystem-watch driven rebuilds.
	Watch bool `yaml:"watch" json:"watch"`
	// WatchDebounce is how long to coalesce file events before rebuilding.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	// Workers bounds concurrent department builds during a rebuild.
	Workers int `yaml:"workers" json:"workers"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: gemini, openai, ollama, static.
	// Empty triggers auto-detection from available credentials.
	Provider string `yaml:"provider" json:"provider"`
	// Model overrides the provider's default embedding model.
	Model string `yaml:"model" json:"model"`
	// Dimensions overrides the provider's default vector width (0 = default).
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the LRU entry count for the embedding cache (0 disables).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// RetrievalConfig configures scope-merged search.
type RetrievalConfig struct {
	// TopK is the result count for department-scoped queries.
	TopK int `yaml:"top_k" json:"top_k"`
	// AdminTopK is the result count for full-visibility queries.
	AdminTopK int `yaml:"admin_top_k" json:"admin_top_k"`
	// DedupPrefix is how many leading characters of trimmed chunk text
	// identify a near-duplicate during merge.
	DedupPrefix int `yaml:"dedup_prefix" json:"dedup_prefix"`

	// Hybrid enables keyword+vector fusion per department.
	Hybrid bool `yaml:"hybrid" json:"hybrid"`
	// BM25Weight is the keyword weight in hybrid fusion (0.0-1.0).
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`
	// SemanticWeight is the vector weight in hybrid fusion (0.0-1.0).
	// Must sum to 1.0 with BM25Weight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	// RRFConstant is the RRF fusion smoothing parameter (k).
	// Default: 60 (industry standard).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
}

// IngestionConfig configures post-ingest rebuild behavior.
type IngestionConfig struct {
	// RebuildScope is "full" (rebuild every department, baseline) or
	// "department" (rebuild only the affected department; ingest into the
	// common department still rebuilds everything).
	RebuildScope string `yaml:"rebuild_scope" json:"rebuild_scope"`
}

// UsersConfig configures the user directory store.
type UsersConfig struct {
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path" json:"db_path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`
	// File is the log file path. Empty uses the default under ~/.crossdock/logs.
	File string `yaml:"file" json:"file"`
}

// Rebuild scope values.
const (
	RebuildScopeFull       = "full"
	RebuildScopeDepartment = "department"
)

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Knowledge: KnowledgeConfig{
			BaseDir:       "knowledge",
			Watch:         false,
			WatchDebounce: "2s",
			Workers:       runtime.NumCPU(),
		},
		Departments: department.DefaultSet().All(),
		Embeddings: EmbeddingsConfig{
			Provider:   "", // Empty triggers auto-detection: gemini -> openai -> ollama -> static
			Model:      "", // Empty uses the provider default
			Dimensions: 0,  // Provider default
			BatchSize:  32,
			CacheSize:  1000,
			OllamaHost: "", // Empty uses default http://localhost:11434
		},
		Retrieval: RetrievalConfig{
			TopK:        3,
			AdminTopK:   5,
			DedupPrefix: 200,
			Hybrid:      false,
			// Prose Q&A favors the semantic side; keyword matching backs up
			// exact terminology (error codes, product names).
			BM25Weight:     0.35,
			SemanticWeight: 0.65,
			RRFConstant:    60,
		},
		Ingestion: IngestionConfig{
			RebuildScope: RebuildScopeFull,
		},
		Users: UsersConfig{
			DBPath: defaultUsersDBPath(),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// defaultUsersDBPath returns the default user directory database path.
func defaultUsersDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".crossdock", "users.db")
	}
	return filepath.Join(home, ".crossdock", "users.db")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/crossdock/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/crossdock/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "crossdock", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "crossdock", "config.yaml")
	}
	return filepath.Join(home, ".config", "crossdock", "config.yaml")
}

// GetUserConfigDir returns the directory holding the user configuration file.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/crossdock/config.yaml)
//  3. Project config (.crossdock.yaml in dir)
//  4. Environment variables (CROSSDOCK_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from an explicit YAML path (plus defaults,
// env overrides, and validation). Used by the --config flag.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .crossdock.yaml or .crossdock.yml.
func (c *Config) loadFromFile(dir string) error {
	// Try .yaml first (takes precedence)
	yamlPath := filepath.Join(dir, ".crossdock.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".crossdock.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	// Knowledge
	if other.Knowledge.BaseDir != "" {
		c.Knowledge.BaseDir = other.Knowledge.BaseDir
	}
	if other.Knowledge.Watch {
		c.Knowledge.Watch = true
	}
	if other.Knowledge.WatchDebounce != "" {
		c.Knowledge.WatchDebounce = other.Knowledge.WatchDebounce
	}
	if other.Knowledge.Workers != 0 {
		c.Knowledge.Workers = other.Knowledge.Workers
	}

	// Departments replace wholesale: a partial list would silently drop
	// departments from the tenancy boundary.
	if len(other.Departments) > 0 {
		c.Departments = other.Departments
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	// Retrieval
	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.AdminTopK != 0 {
		c.Retrieval.AdminTopK = other.Retrieval.AdminTopK
	}
	if other.Retrieval.DedupPrefix != 0 {
		c.Retrieval.DedupPrefix = other.Retrieval.DedupPrefix
	}
	if other.Retrieval.Hybrid {
		c.Retrieval.Hybrid = true
	}
	if other.Retrieval.BM25Weight != 0 {
		c.Retrieval.BM25Weight = other.Retrieval.BM25Weight
	}
	if other.Retrieval.SemanticWeight != 0 {
		c.Retrieval.SemanticWeight = other.Retrieval.SemanticWeight
	}
	if other.Retrieval.RRFConstant != 0 {
		c.Retrieval.RRFConstant = other.Retrieval.RRFConstant
	}

	// Ingestion
	if other.Ingestion.RebuildScope != "" {
		c.Ingestion.RebuildScope = other.Ingestion.RebuildScope
	}

	// Users
	if other.Users.DBPath != "" {
		c.Users.DBPath = other.Users.DBPath
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies CROSSDOCK_* environment variable overrides.
// Provider API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read by the
// embedder factory, not here.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CROSSDOCK_KNOWLEDGE_DIR"); v != "" {
		c.Knowledge.BaseDir = v
	}
	if v := os.Getenv("CROSSDOCK_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CROSSDOCK_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CROSSDOCK_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CROSSDOCK_USERS_DB"); v != "" {
		c.Users.DBPath = v
	}
	if v := os.Getenv("CROSSDOCK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CROSSDOCK_REBUILD_SCOPE"); v != "" {
		c.Ingestion.RebuildScope = v
	}

	// Fusion weights support explicit zero values via env vars
	if v := os.Getenv("CROSSDOCK_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Retrieval.BM25Weight = w
		}
	}
	if v := os.Getenv("CROSSDOCK_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Retrieval.SemanticWeight = w
		}
	}
	if v := os.Getenv("CROSSDOCK_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.RRFConstant = k
		}
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Knowledge.BaseDir == "" {
		return fmt.Errorf("knowledge.base_dir must not be empty")
	}
	if _, err := c.WatchDebounce(); err != nil {
		return fmt.Errorf("knowledge.watch_debounce: %w", err)
	}
	if c.Knowledge.Workers < 1 {
		return fmt.Errorf("knowledge.workers must be positive, got %d", c.Knowledge.Workers)
	}

	// Department set validation (shape, uniqueness, common present)
	if _, err := c.DepartmentSet(); err != nil {
		return err
	}

	if c.Embeddings.Provider != "" { // Empty string triggers auto-detection
		validProviders := map[string]bool{"gemini": true, "openai": true, "ollama": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'gemini', 'openai', 'ollama', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.AdminTopK < 1 {
		return fmt.Errorf("retrieval.admin_top_k must be positive, got %d", c.Retrieval.AdminTopK)
	}
	if c.Retrieval.DedupPrefix < 1 {
		return fmt.Errorf("retrieval.dedup_prefix must be positive, got %d", c.Retrieval.DedupPrefix)
	}

	if c.Retrieval.BM25Weight < 0 || c.Retrieval.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Retrieval.BM25Weight)
	}
	if c.Retrieval.SemanticWeight < 0 || c.Retrieval.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Retrieval.SemanticWeight)
	}
	sum := c.Retrieval.BM25Weight + c.Retrieval.SemanticWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Retrieval.RRFConstant < 1 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}

	switch c.Ingestion.RebuildScope {
	case RebuildScopeFull, RebuildScopeDepartment:
	default:
		return fmt.Errorf("ingestion.rebuild_scope must be %q or %q, got %q",
			RebuildScopeFull, RebuildScopeDepartment, c.Ingestion.RebuildScope)
	}

	if c.Users.DBPath == "" {
		return fmt.Errorf("users.db_path must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// DepartmentSet builds the validated department set from the configuration.
func (c *Config) DepartmentSet() (*department.Set, error) {
	set, err := department.NewSet(c.Departments)
	if err != nil {
		return nil, fmt.Errorf("departments: %w", err)
	}
	return set, nil
}

// WatchDebounce parses the watch debounce interval.
func (c *Config) WatchDebounce() (time.Duration, error) {
	if c.Knowledge.WatchDebounce == "" {
		return 2 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Knowledge.WatchDebounce)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", c.Knowledge.WatchDebounce)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be non-negative, got %s", d)
	}
	return d, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
