package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/embed"
	cderrors "github.com/uqsoft/crossdock/internal/errors"
	"github.com/uqsoft/crossdock/internal/knowledge"
)

// testSet is a three-department set small enough to reason about.
func testSet(t *testing.T) *department.Set {
	t.Helper()
	set, err := department.NewSet([]department.Department{
		{Slug: "common", Name: "Общие материалы"},
		{Slug: "sorting", Name: "Сортировка"},
		{Slug: "manager", Name: "Менеджеры"},
	})
	require.NoError(t, err)
	return set
}

// newFixture wires a builder over a fresh knowledge tree with the
// deterministic hash embedder.
func newFixture(t *testing.T, cfg BuilderConfig) (*Builder, *knowledge.Store) {
	t.Helper()
	ks, err := knowledge.NewStore(t.TempDir())
	require.NoError(t, err)
	return NewBuilder(ks, embed.NewStaticEmbedder(), testSet(t), cfg), ks
}

func seedArtifact(t *testing.T, ks *knowledge.Store, slug, name, text string) {
	t.Helper()
	_, err := ks.WriteArtifact(slug, name, []byte(text))
	require.NoError(t, err)
}

// requireCode asserts err is a CrossdockError with the given code.
func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var cdErr *cderrors.CrossdockError
	require.ErrorAs(t, err, &cdErr)
	assert.Equal(t, code, cdErr.Code)
}

// failEmbedder rejects every embedding request.
type failEmbedder struct{}

func (failEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, cderrors.ProviderError("embedding provider offline", nil)
}

func (failEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, cderrors.ProviderError("embedding provider offline", nil)
}

func (failEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, cderrors.ProviderError("embedding provider offline", nil)
}

func (failEmbedder) Dimensions() int                  { return 4 }
func (failEmbedder) ModelName() string                { return "fail" }
func (failEmbedder) Available(_ context.Context) bool { return false }
func (failEmbedder) Close() error                     { return nil }

// ============================================================================
// TB01: Single Department Build
// ============================================================================

func TestBuilder_Build_IndexesArtifacts(t *testing.T) {
	builder, ks := newFixture(t, BuilderConfig{})
	seedArtifact(t, ks, "sorting", "faq.txt", "Возврат посылки оформляется через накладную.")
	seedArtifact(t, ks, "sorting", "shifts.txt", "Смена сортировщика начинается в восемь утра.")

	idx, err := builder.Build(context.Background(), "sorting")
	require.NoError(t, err)

	assert.Equal(t, "sorting", idx.Slug())
	assert.Equal(t, embed.StaticDimensions, idx.Dimensions())
	assert.Equal(t, 2, idx.ChunkCount())
}

func TestBuilder_Build_EmptyFolderYieldsValidEmptyIndex(t *testing.T) {
	builder, ks := newFixture(t, BuilderConfig{})
	require.NoError(t, ks.EnsureTree(builder.Departments()))

	idx, err := builder.Build(context.Background(), "manager")
	require.NoError(t, err)
	assert.Equal(t, 0, idx.ChunkCount())

	// An empty index is searchable, it just finds nothing
	vec := make([]float32, embed.StaticDimensions)
	vec[0] = 1
	results, err := idx.SearchVector(context.Background(), vec, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBuilder_Build_MissingFolderYieldsValidEmptyIndex(t *testing.T) {
	builder, _ := newFixture(t, BuilderConfig{})

	idx, err := builder.Build(context.Background(), "manager")
	require.NoError(t, err)
	assert.Equal(t, 0, idx.ChunkCount())
}

func TestBuilder_Build_SkipsUnsupportedAndOversized(t *testing.T) {
	builder, ks := newFixture(t, BuilderConfig{MaxArtifactSize: 64})
	seedArtifact(t, ks, "sorting", "scheme.png", "not really an image")
	seedArtifact(t, ks, "sorting", "huge.txt", strings.Repeat("длинный текст ", 100))
	seedArtifact(t, ks, "sorting", "note.txt", "короткая заметка")

	idx, err := builder.Build(context.Background(), "sorting")
	require.NoError(t, err)

	// Only the small .txt made it in
	assert.Equal(t, 1, idx.ChunkCount())
}

func TestBuilder_Build_CorruptArtifactAbandonsDepartment(t *testing.T) {
	builder, ks := newFixture(t, BuilderConfig{})
	seedArtifact(t, ks, "sorting", "broken.txt", "PK\x03\x04\x00\x00binary payload")

	_, err := builder.Build(context.Background(), "sorting")
	requireCode(t, err, cderrors.ErrCodeArtifactReadFailed)
}

func TestBuilder_Build_ProviderFailureAbandonsDepartment(t *testing.T) {
	ks, err := knowledge.NewStore(t.TempDir())
	require.NoError(t, err)
	builder := NewBuilder(ks, failEmbedder{}, testSet(t), BuilderConfig{})
	seedArtifact(t, ks, "sorting", "faq.txt", "Возврат посылки оформляется через накладную.")

	_, err = builder.Build(context.Background(), "sorting")
	requireCode(t, err, cderrors.ErrCodeEmbedFailed)
}

func TestBuilder_Build_MultiBatchEmbeddingKeepsPairing(t *testing.T) {
	builder, ks := newFixture(t, BuilderConfig{BatchSize: 2})
	long := strings.Repeat("Возврат посылки оформляется через накладную склада. ", 60)
	seedArtifact(t, ks, "sorting", "manual.txt", long)

	idx, err := builder.Build(context.Background(), "sorting")
	require.NoError(t, err)
	require.Greater(t, idx.ChunkCount(), 2, "fixture must span several embed batches")

	// The deterministic embedder maps identical text to identical
	// vectors, so any stored chunk must retrieve itself first.
	embedder := embed.NewStaticEmbedder()
	results, err := idx.SearchVector(context.Background(), mustEmbedQuery(t, embedder, long[:120]), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sorting", results[0].Chunk.Department)
	assert.Equal(t, "manual.txt", results[0].Chunk.Artifact)
}

func mustEmbedQuery(t *testing.T, embedder embed.Embedder, text string) []float32 {
	t.Helper()
	vec, err := embedder.EmbedQuery(context.Background(), text)
	require.NoError(t, err)
	return vec
}

// ============================================================================
// TB02: Batch Build
// ============================================================================

func TestBuilder_BuildAll_IsolatesFailures(t *testing.T) {
	builder, ks := newFixture(t, BuilderConfig{Workers: 2})
	seedArtifact(t, ks, "common", "rules.txt", "Общие правила для всех отделов.")
	seedArtifact(t, ks, "manager", "broken.txt", "PK\x03\x04\x00\x00binary payload")
	seedArtifact(t, ks, "sorting", "faq.txt", "Возврат посылки оформляется через накладную.")

	outcomes := builder.BuildAll(context.Background(), []string{"common", "manager", "sorting"})
	require.Len(t, outcomes, 3)

	// Outcomes come back in argument order
	assert.Equal(t, []string{"common", "manager", "sorting"},
		[]string{outcomes[0].Slug, outcomes[1].Slug, outcomes[2].Slug})

	// The broken department fails alone
	require.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	require.NoError(t, outcomes[2].Err)
	assert.Nil(t, outcomes[1].Index)
	assert.Equal(t, 1, outcomes[0].Index.ChunkCount())
	assert.Equal(t, 1, outcomes[2].Index.ChunkCount())
}

func TestBuilder_BuildAll_StrayFoldersAreIgnored(t *testing.T) {
	builder, ks := newFixture(t, BuilderConfig{})
	seedArtifact(t, ks, "sorting", "faq.txt", "Возврат посылки оформляется через накладную.")

	// A folder matching no configured department
	require.NoError(t, os.MkdirAll(filepath.Join(ks.BaseDir(), "random_notes"), 0o755))

	outcomes := builder.BuildAll(context.Background(), []string{"common", "sorting"})
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.NoError(t, out.Err)
	}
}

func TestBuilder_BuildAll_CancelledContext(t *testing.T) {
	builder, ks := newFixture(t, BuilderConfig{})
	seedArtifact(t, ks, "sorting", "faq.txt", "Возврат посылки оформляется через накладную.")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := builder.BuildAll(ctx, []string{"common", "sorting", "manager"})
	require.Len(t, outcomes, 3)
	for i, out := range outcomes {
		assert.Error(t, out.Err, fmt.Sprintf("outcome %d", i))
	}
}
