package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCmd_PathHonorsXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	out, err := runCommand(t, "config", "path")

	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(xdg, "crossdock", "config.yaml"))
}

func TestConfigCmd_InitCreatesUserConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	out, err := runCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote user config")

	path := filepath.Join(xdg, "crossdock", "config.yaml")
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "embeddings")
	// Secrets stay in the environment, the template only documents that.
	assert.Contains(t, string(data), "GEMINI_API_KEY")
	assert.NotContains(t, string(data), "api_key:")

	// Second run refuses to clobber without --force.
	out, err = runCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = runCommand(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote user config")
}

func TestConfigCmd_ShowDefaults(t *testing.T) {
	out, err := runCommand(t, "config", "show", "--source", "defaults")

	require.NoError(t, err)
	assert.Contains(t, out, "defaults (hardcoded)")
	assert.Contains(t, out, "knowledge")
	assert.Contains(t, out, "sorting")
	assert.Contains(t, out, "top_k")
}

func TestConfigCmd_ShowDefaultsJSON(t *testing.T) {
	out, err := runCommand(t, "config", "show", "--json", "--source", "defaults")

	require.NoError(t, err)

	var cfg struct {
		Knowledge struct {
			BaseDir string `json:"base_dir"`
		} `json:"knowledge"`
		Departments []struct {
			Slug string `json:"slug"`
		} `json:"departments"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "knowledge", cfg.Knowledge.BaseDir)
	assert.Len(t, cfg.Departments, 6)
}

func TestConfigCmd_ShowMissingUserConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	out, err := runCommand(t, "config", "show", "--source", "user")

	require.NoError(t, err)
	assert.Contains(t, out, "No user config file")
	assert.Contains(t, out, "config init")
}

func TestConfigCmd_ShowInvalidSource(t *testing.T) {
	_, err := runCommand(t, "config", "show", "--source", "registry")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source")
}
