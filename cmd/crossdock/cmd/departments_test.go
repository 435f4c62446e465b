package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepartmentsCmd_ShowsDefaultRoster(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	seedArtifact(t, dir, "sorting", "приёмка.txt", "Сканируйте штрихкод при приёмке.")

	out, err := runCommand(t, "--config", cfg, "departments")

	require.NoError(t, err)
	for _, slug := range []string{"common", "delivery/courier", "delivery/franchise", "sorting", "customer_service", "manager"} {
		assert.Contains(t, out, slug)
	}
	assert.Contains(t, out, "Sorting Center")
	assert.Contains(t, out, "DEPARTMENT")
}

func TestDepartmentsCmd_WarnsAboutStrayFolders(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	seedArtifact(t, dir, "sorting", "приёмка.txt", "Сканируйте штрихкод при приёмке.")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "knowledge", "warehouse"), 0o755))

	out, err := runCommand(t, "--config", cfg, "departments")

	require.NoError(t, err)
	assert.Contains(t, out, "warehouse")
	assert.Contains(t, out, "unindexed")
}

func TestDepartmentsCmd_DeptsAlias(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	out, err := runCommand(t, "--config", cfg, "depts")

	require.NoError(t, err)
	assert.Contains(t, out, "sorting")
}
