package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestCmd_StoresAndIndexes(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	src := filepath.Join(dir, "регламент.txt")
	require.NoError(t, os.WriteFile(src, []byte("Передача смены оформляется актом за подписью старшего смены."), 0o644))

	// When: ingesting the file into sorting
	out, err := runCommand(t, "--config", cfg, "ingest", "--department", "sorting", src)

	// Then: the artifact lands in the canonical folder and gets indexed
	require.NoError(t, err)
	assert.Contains(t, out, "stored")
	assert.Contains(t, out, filepath.Join("sorting", "регламент.txt"))
	assert.Contains(t, out, "1 chunks indexed")

	// And: the file exists on disk where the message says
	_, statErr := os.Stat(filepath.Join(dir, "knowledge", "sorting", "регламент.txt"))
	assert.NoError(t, statErr)
}

func TestIngestCmd_RejectsUnknownDepartment(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	src := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("text"), 0o644))

	_, err := runCommand(t, "--config", cfg, "ingest", "--department", "warehouse", src)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse")

	// Validation runs before any write: no stray folder appears.
	_, statErr := os.Stat(filepath.Join(dir, "knowledge", "warehouse"))
	assert.True(t, os.IsNotExist(statErr), "Invalid department must not leave a folder behind")
}

func TestIngestCmd_RejectsUnknownKind(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	src := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("text"), 0o644))

	_, err := runCommand(t, "--config", cfg, "ingest", "--department", "sorting", "--kind", "selfie", src)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "selfie")
}

func TestIngestCmd_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	_, err := runCommand(t, "--config", cfg, "ingest", "--department", "sorting", filepath.Join(dir, "missing.txt"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.txt")
}

func TestIngestCmd_RequiresDepartmentFlag(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	src := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("text"), 0o644))

	_, err := runCommand(t, "--config", cfg, "ingest", src)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "department")
}
