package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uqsoft/crossdock/internal/config"
)

// The static embedder scores identical texts at the top, so querying
// with an artifact's exact content must surface that artifact first.
const (
	sortingText = "Регламент приёмки посылок: каждая посылка сканируется на входе в сортировочный центр."
	commonText  = "График работы депо: смены начинаются в восемь утра и двадцать ноль-ноль."
	returnText  = "Возврат оформляется через кассу при предъявлении накладной и паспорта."
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Knowledge.BaseDir = filepath.Join(t.TempDir(), "knowledge")
	cfg.Users.DBPath = filepath.Join(t.TempDir(), "users.db")
	cfg.Embeddings.Provider = "static"
	return cfg
}

func seed(t *testing.T, cfg *config.Config, rel, text string) {
	t.Helper()
	path := filepath.Join(cfg.Knowledge.BaseDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func openClient(t *testing.T, cfg *config.Config, opts Options) *Client {
	t.Helper()
	opts.Config = cfg
	client, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestOpen_BuildsAndAnswers(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, "sorting/приёмка.txt", sortingText)
	seed(t, cfg, "common/график.txt", commonText)

	client := openClient(t, cfg, Options{})
	ctx := context.Background()

	// Unknown user: full visibility.
	answer, err := client.Answer(ctx, 999, sortingText)
	require.NoError(t, err)
	assert.True(t, answer.Admin)
	assert.ElementsMatch(t, client.set.Slugs(), answer.Scope)
	require.NotEmpty(t, answer.Passages)
	assert.Equal(t, "sorting", answer.Passages[0].Department)
	assert.Equal(t, filepath.Join("sorting", "приёмка.txt"), answer.Passages[0].Artifact)
}

func TestAnswer_AssignedUserScope(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, "sorting/приёмка.txt", sortingText)
	seed(t, cfg, "common/график.txt", commonText)

	client := openClient(t, cfg, Options{})
	ctx := context.Background()

	// Legacy directory value: the namespace prefix must normalize away.
	require.NoError(t, client.AssignUser(ctx, 7, "Department.SORTING"))

	answer, err := client.Answer(ctx, 7, sortingText)
	require.NoError(t, err)
	assert.False(t, answer.Admin)
	assert.Equal(t, []string{"sorting", "common"}, answer.Scope)

	require.NoError(t, client.UnassignUser(ctx, 7))
	answer, err = client.Answer(ctx, 7, sortingText)
	require.NoError(t, err)
	assert.True(t, answer.Admin)
}

func TestAssignUser_RejectsUnknownDepartment(t *testing.T) {
	client := openClient(t, testConfig(t), Options{})

	err := client.AssignUser(context.Background(), 7, "warehouse")
	require.Error(t, err)
	assert.True(t, IsInvalidDepartment(err))
}

func TestOpen_SkipInitialBuild(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, "sorting/приёмка.txt", sortingText)

	client := openClient(t, cfg, Options{SkipInitialBuild: true})
	ctx := context.Background()

	_, err := client.Answer(ctx, 999, sortingText)
	require.Error(t, err)
	assert.True(t, IsNotReady(err))

	report, err := client.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), report.Version)
	assert.Equal(t, 6, report.Departments)
	assert.Empty(t, report.Failed)

	answer, err := client.Answer(ctx, 999, sortingText)
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Passages)
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	client := openClient(t, testConfig(t), Options{})

	_, err := client.Answer(context.Background(), 999, "   ")
	require.Error(t, err)
	assert.True(t, IsEmptyQuery(err))
}

func TestIngest_MakesTextSearchable(t *testing.T) {
	client := openClient(t, testConfig(t), Options{})
	ctx := context.Background()

	stored, err := client.Ingest(ctx, "customer_service", Document{
		Name: "возвраты",
		Data: []byte(returnText),
	})
	require.NoError(t, err)
	assert.Equal(t, "customer_service", stored.Department)
	assert.Equal(t, filepath.Join("customer_service", "возвраты.txt"), stored.Path)
	assert.Greater(t, stored.Chunks, 0)

	answer, err := client.Answer(ctx, 999, returnText)
	require.NoError(t, err)
	require.NotEmpty(t, answer.Passages)
	assert.Equal(t, "customer_service", answer.Passages[0].Department)
}

func TestIngest_RejectsUnknownDepartment(t *testing.T) {
	client := openClient(t, testConfig(t), Options{})

	_, err := client.Ingest(context.Background(), "warehouse", Document{Data: []byte("текст")})
	require.Error(t, err)
	assert.True(t, IsInvalidDepartment(err))
}

func TestIngest_RejectsUnknownKind(t *testing.T) {
	client := openClient(t, testConfig(t), Options{})

	_, err := client.Ingest(context.Background(), "sorting", Document{
		Kind: "selfie",
		Data: []byte("текст"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selfie")
}

func TestArtifacts_ListAndDelete(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, "sorting/приёмка.txt", sortingText)

	client := openClient(t, cfg, Options{})

	artifacts, err := client.Artifacts("sorting")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "приёмка.txt", artifacts[0].Name)
	assert.Equal(t, filepath.Join("sorting", "приёмка.txt"), artifacts[0].Path)
	assert.Greater(t, artifacts[0].Size, int64(0))

	require.NoError(t, client.DeleteArtifact(artifacts[0].Path))

	artifacts, err = client.Artifacts("sorting")
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	_, err = client.Artifacts("warehouse")
	require.Error(t, err)
	assert.True(t, IsInvalidDepartment(err))
}

func TestDepartments_Roster(t *testing.T) {
	client := openClient(t, testConfig(t), Options{})

	roster := client.Departments()
	require.Len(t, roster, 6)
	assert.Equal(t, Department{Slug: "common", Name: "Common"}, roster[0])

	slugs := make([]string, len(roster))
	for i, d := range roster {
		slugs[i] = d.Slug
	}
	assert.Contains(t, slugs, "delivery/courier")
	assert.Contains(t, slugs, "sorting")
}

func TestRebuild_PicksUpDeletions(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, "sorting/приёмка.txt", sortingText)

	client := openClient(t, cfg, Options{})
	ctx := context.Background()

	require.NoError(t, client.DeleteArtifact(filepath.Join("sorting", "приёмка.txt")))

	report, err := client.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), report.Version)

	answer, err := client.Answer(ctx, 999, sortingText)
	require.NoError(t, err)
	for _, p := range answer.Passages {
		assert.NotEqual(t, "sorting", p.Department, "deleted artifact must drop out of the index")
	}
}
