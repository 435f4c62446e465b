package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/embed"
	cderrors "github.com/uqsoft/crossdock/internal/errors"
	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/knowledge"
)

// stubDirectory maps user IDs to raw department values. Missing users
// resolve to "", which is the unassigned (administrator) case.
type stubDirectory map[int64]string

func (d stubDirectory) GetDepartment(_ context.Context, userID int64) (string, error) {
	return d[userID], nil
}

// failingDirectory stands in for an unreachable user store.
type failingDirectory struct{}

func (failingDirectory) GetDepartment(context.Context, int64) (string, error) {
	return "", fmt.Errorf("user store unavailable")
}

func testDepartments(t *testing.T) *department.Set {
	t.Helper()
	set, err := department.NewSet([]department.Department{
		{Slug: "common", Name: "Общая база"},
		{Slug: "sorting", Name: "Сортировочный центр"},
		{Slug: "delivery/courier", Name: "Курьерская доставка"},
	})
	require.NoError(t, err)
	return set
}

// publishedRegistry rebuilds over an empty knowledge tree, publishing
// an empty but valid index for every configured department.
func publishedRegistry(t *testing.T, set *department.Set) *index.Registry {
	t.Helper()
	ks, err := knowledge.NewStore(t.TempDir())
	require.NoError(t, err)

	builder := index.NewBuilder(ks, embed.NewStaticEmbedder(), set, index.BuilderConfig{})
	reg := index.NewRegistry()
	_, err = reg.Rebuild(context.Background(), builder)
	require.NoError(t, err)
	return reg
}

// ============================================================================
// TV01: Scope Resolution
// ============================================================================

func TestRouter_UnassignedUserSeesEverything(t *testing.T) {
	reg := publishedRegistry(t, testDepartments(t))
	r := NewRouter(stubDirectory{}, reg)

	scope, err := r.ResolveScope(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, []string{"common", "delivery/courier", "sorting"}, scope)
}

func TestRouter_MemberScopesToDepartmentPlusCommon(t *testing.T) {
	reg := publishedRegistry(t, testDepartments(t))
	r := NewRouter(stubDirectory{42: "sorting"}, reg)

	scope, err := r.ResolveScope(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, []string{"sorting", "common"}, scope)
}

func TestRouter_NormalizesDirectoryValue(t *testing.T) {
	// Directory values may arrive as enum-style "Department.Sorting".
	reg := publishedRegistry(t, testDepartments(t))
	r := NewRouter(stubDirectory{42: " Department.Sorting "}, reg)

	scope, err := r.ResolveScope(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, []string{"sorting", "common"}, scope)
}

func TestRouter_CommonMemberGetsCommonOnly(t *testing.T) {
	reg := publishedRegistry(t, testDepartments(t))
	r := NewRouter(stubDirectory{42: "common"}, reg)

	scope, err := r.ResolveScope(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, []string{"common"}, scope)
}

func TestRouter_UnknownDepartmentFallsBackToCommon(t *testing.T) {
	// A user assigned to a department without an index still gets an
	// answer from the shared knowledge, never an error or silence.
	reg := publishedRegistry(t, testDepartments(t))
	r := NewRouter(stubDirectory{42: "marketing"}, reg)

	scope, err := r.ResolveScope(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, []string{"common"}, scope)
}

// ============================================================================
// TV02: Failure Modes
// ============================================================================

func TestRouter_UninitializedRegistryFailsFast(t *testing.T) {
	r := NewRouter(stubDirectory{}, index.NewRegistry())

	_, err := r.ResolveScope(context.Background(), 42)

	require.ErrorIs(t, err, cderrors.ErrRegistryUninitialized)
}

func TestRouter_DirectoryErrorPropagates(t *testing.T) {
	reg := publishedRegistry(t, testDepartments(t))
	r := NewRouter(failingDirectory{}, reg)

	_, err := r.ResolveScope(context.Background(), 42)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "user store unavailable")
}

// ============================================================================
// TV03: Admin Flag
// ============================================================================

func TestRouter_ResolveOnReportsAdminVisibility(t *testing.T) {
	reg := publishedRegistry(t, testDepartments(t))
	snap, err := reg.Current()
	require.NoError(t, err)

	r := NewRouter(stubDirectory{2: "sorting"}, reg)

	_, admin, err := r.resolveOn(context.Background(), snap, 1)
	require.NoError(t, err)
	assert.True(t, admin, "unassigned user has full visibility")

	_, admin, err = r.resolveOn(context.Background(), snap, 2)
	require.NoError(t, err)
	assert.False(t, admin, "assigned user is scoped")
}
