package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uqsoft/crossdock/internal/embed"
	cderrors "github.com/uqsoft/crossdock/internal/errors"
	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/telemetry"
)

type engineFixture struct {
	engine  *Engine
	ks      *knowledge.Store
	metrics *telemetry.QueryMetrics
}

// newEngineFixture wires a full engine over a temporary knowledge tree
// with the deterministic hash embedder.
func newEngineFixture(t *testing.T, users stubDirectory, cfg EngineConfig) *engineFixture {
	t.Helper()
	ks, err := knowledge.NewStore(t.TempDir())
	require.NoError(t, err)

	emb := embed.NewStaticEmbedder()
	builder := index.NewBuilder(ks, emb, testDepartments(t), index.BuilderConfig{})
	metrics := telemetry.NewQueryMetrics()
	eng := NewEngine(index.NewRegistry(), builder, users, emb, cfg, WithMetrics(metrics))
	return &engineFixture{engine: eng, ks: ks, metrics: metrics}
}

func (f *engineFixture) seed(t *testing.T, slug, name, text string) {
	t.Helper()
	_, err := f.ks.WriteArtifact(slug, name, []byte(text))
	require.NoError(t, err)
}

func (f *engineFixture) rebuild(t *testing.T) {
	t.Helper()
	report, err := f.engine.Rebuild(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Failed())
}

// ============================================================================
// TE01: Validation and Readiness
// ============================================================================

func TestEngine_RejectsEmptyQuery(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{}, EngineConfig{})

	_, err := f.engine.Query(context.Background(), 1, "   \n\t")

	requireCode(t, err, cderrors.ErrCodeEmptyQuery)
}

func TestEngine_FailsFastBeforeFirstRebuild(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{}, EngineConfig{})

	_, err := f.engine.Query(context.Background(), 1, "где моя посылка")
	require.ErrorIs(t, err, cderrors.ErrRegistryUninitialized)

	_, err = f.engine.ListDepartments()
	require.ErrorIs(t, err, cderrors.ErrRegistryUninitialized)
}

// ============================================================================
// TE02: Scoped Retrieval
// ============================================================================

func TestEngine_MemberQueryScopedToDepartmentPlusCommon(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{10: "sorting"}, EngineConfig{})
	f.seed(t, "sorting", "damage.md", "Повреждённую посылку оформляют актом при приёмке.")
	f.seed(t, "common", "passes.md", "Пропуск на склад оформляется на проходной.")
	f.seed(t, "delivery/courier", "routes.md", "Курьер сдаёт маршрутный лист старшему смены.")
	f.rebuild(t)

	// The question repeats an indexed sentence, so the hash embedder
	// scores that chunk at the top.
	res, err := f.engine.Query(context.Background(), 10, "  Повреждённую посылку оформляют актом при приёмке.  ")

	require.NoError(t, err)
	assert.Equal(t, []string{"sorting", "common"}, res.Scope)
	assert.False(t, res.Admin)
	assert.Equal(t, "Повреждённую посылку оформляют актом при приёмке.", res.Query)
	assert.Greater(t, res.Duration, time.Duration(0))

	require.NotEmpty(t, res.Passages)
	top := res.Passages[0]
	assert.Equal(t, "sorting", top.Department)
	assert.Equal(t, "damage.md", top.Artifact)
	assert.InDelta(t, 1.0, top.Score, 0.01)
	for _, p := range res.Passages {
		assert.NotEqual(t, "delivery/courier", p.Department,
			"courier knowledge must not leak into a sorting user's answer")
	}
}

func TestEngine_AdminQuerySeesAllDepartments(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{}, EngineConfig{})
	f.seed(t, "common", "a.md", "Общие правила пропускного режима на складе.")
	f.seed(t, "common", "b.md", "Спецодежда выдаётся на втором этаже.")
	f.seed(t, "sorting", "c.md", "Конвейер останавливают кнопкой аварийной остановки.")
	f.seed(t, "sorting", "d.md", "Негабаритные грузы складируют отдельно.")
	f.seed(t, "delivery/courier", "e.md", "Маршрутный лист закрывается до полуночи.")
	f.seed(t, "delivery/courier", "f.md", "Недоставленные посылки возвращаются на склад.")
	f.rebuild(t)

	res, err := f.engine.Query(context.Background(), 99, "посылки склад маршрут")

	require.NoError(t, err)
	assert.True(t, res.Admin)
	assert.Equal(t, []string{"common", "delivery/courier", "sorting"}, res.Scope)
	assert.Len(t, res.Passages, 5)
}

func TestEngine_MemberGetsThreePassagesByDefault(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{10: "sorting"}, EngineConfig{})
	f.seed(t, "sorting", "a.md", "Первая инструкция по сортировке входящих отправлений.")
	f.seed(t, "sorting", "b.md", "Вторая инструкция про взвешивание коробок.")
	f.seed(t, "sorting", "c.md", "Третья инструкция про маркировку ячеек.")
	f.seed(t, "common", "d.md", "Общий регламент рабочего дня склада.")
	f.rebuild(t)

	res, err := f.engine.Query(context.Background(), 10, "инструкция по складу")

	require.NoError(t, err)
	assert.Len(t, res.Passages, 3)
}

func TestEngine_UnknownDepartmentUserFallsBackToCommon(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{10: "marketing"}, EngineConfig{})
	f.seed(t, "common", "faq.md", "Отпуск согласуется с руководителем за две недели.")
	f.seed(t, "sorting", "belt.md", "Конвейер обслуживается по графику.")
	f.rebuild(t)

	res, err := f.engine.Query(context.Background(), 10, "как согласовать отпуск")

	require.NoError(t, err)
	assert.Equal(t, []string{"common"}, res.Scope)
	for _, p := range res.Passages {
		assert.Equal(t, "common", p.Department)
	}
}

// ============================================================================
// TE03: Result Count Configuration
// ============================================================================

func TestEngine_CustomTopK(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{10: "sorting"}, EngineConfig{TopK: 1, AdminTopK: 2})
	f.seed(t, "sorting", "a.md", "Ячейки нумеруются по рядам.")
	f.seed(t, "sorting", "b.md", "Крупногабарит ставится на нижний ярус.")
	f.seed(t, "common", "c.md", "Столовая работает с восьми утра.")
	f.rebuild(t)

	member, err := f.engine.Query(context.Background(), 10, "ячейки и ярусы")
	require.NoError(t, err)
	assert.Len(t, member.Passages, 1)

	admin, err := f.engine.Query(context.Background(), 99, "ячейки и ярусы")
	require.NoError(t, err)
	assert.Len(t, admin.Passages, 2)
}

// ============================================================================
// TE04: Rebuild Delegation
// ============================================================================

func TestEngine_ScopedRebuildPicksUpNewArtifacts(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{10: "sorting"}, EngineConfig{})
	f.seed(t, "sorting", "old.md", "Старый регламент сортировки посылок.")
	f.rebuild(t)

	f.seed(t, "sorting", "new.md", "Новый регламент обработки негабаритных грузов.")
	report, err := f.engine.RebuildDepartments(context.Background(), "sorting")
	require.NoError(t, err)
	require.Len(t, report.Statuses, 1)
	st, ok := report.Status("sorting")
	require.True(t, ok)
	assert.Equal(t, 2, st.ChunkCount)

	snap, err := f.engine.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version())

	res, err := f.engine.Query(context.Background(), 10, "Новый регламент обработки негабаритных грузов.")
	require.NoError(t, err)
	require.NotEmpty(t, res.Passages)
	assert.Equal(t, "new.md", res.Passages[0].Artifact)
}

func TestEngine_ListDepartments(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{}, EngineConfig{})
	f.seed(t, "common", "faq.md", "Ответы на частые вопросы сотрудников.")
	f.rebuild(t)

	infos, err := f.engine.ListDepartments()

	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "common", infos[0].Slug)
	assert.Equal(t, "Общая база", infos[0].Name)
	assert.Equal(t, 1, infos[0].ChunkCount)
	assert.False(t, infos[0].BuiltAt.IsZero())

	assert.Equal(t, "delivery/courier", infos[1].Slug)
	assert.Equal(t, 0, infos[1].ChunkCount)
	assert.Equal(t, "sorting", infos[2].Slug)
}

// ============================================================================
// TE05: Telemetry
// ============================================================================

func TestEngine_RecordsQueryMetrics(t *testing.T) {
	f := newEngineFixture(t, stubDirectory{10: "sorting"}, EngineConfig{})
	f.rebuild(t)

	// Empty indexes mean a served query with zero results.
	_, err := f.engine.Query(context.Background(), 10, "ночная смена")
	require.NoError(t, err)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.DepartmentCounts["sorting"])
	assert.Equal(t, int64(1), snap.DepartmentCounts["common"])
	assert.Equal(t, int64(0), snap.AdminQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"ночная смена"}, snap.ZeroResultQueries)

	assert.Same(t, f.metrics, f.engine.Metrics())
}
