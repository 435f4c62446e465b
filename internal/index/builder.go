// Package index builds per-department retrieval indexes from the
// knowledge tree and publishes them through a registry snapshot that is
// swapped atomically, so queries never observe a half-rebuilt state.
package index

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uqsoft/crossdock/internal/chunk"
	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/embed"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/store"
)

// BuilderConfig tunes how department indexes are built.
type BuilderConfig struct {
	// BatchSize is texts per embedding request. Zero means default.
	BatchSize int

	// Hybrid enables the keyword side on every built index.
	Hybrid bool

	// Workers bounds concurrent department builds. Zero means NumCPU.
	Workers int

	// MaxArtifactSize skips larger artifacts. Zero means default.
	MaxArtifactSize int64
}

func (c BuilderConfig) withDefaults() BuilderConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = embed.DefaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxArtifactSize <= 0 {
		c.MaxArtifactSize = knowledge.MaxArtifactSize
	}
	return c
}

// Builder turns one department's artifact folder into a sealed index:
// extract text per artifact, split into chunks, embed in batches.
type Builder struct {
	knowledge  *knowledge.Store
	embedder   embed.Embedder
	set        *department.Set
	extractors []knowledge.Extractor
	cfg        BuilderConfig
}

// NewBuilder wires a builder over the knowledge tree and an embedding
// provider for the configured department set.
func NewBuilder(ks *knowledge.Store, embedder embed.Embedder, set *department.Set, cfg BuilderConfig) *Builder {
	return &Builder{
		knowledge:  ks,
		embedder:   embedder,
		set:        set,
		extractors: knowledge.DefaultExtractors(),
		cfg:        cfg.withDefaults(),
	}
}

// Departments returns the configured department set.
func (b *Builder) Departments() *department.Set { return b.set }

// Build constructs a fresh index for one department. A missing or empty
// folder yields a valid empty index. Any unreadable artifact or provider
// failure abandons the build and returns the error.
func (b *Builder) Build(ctx context.Context, slug string) (*store.Index, error) {
	idx, _, err := b.buildOne(ctx, slug)
	return idx, err
}

func (b *Builder) buildOne(ctx context.Context, slug string) (*store.Index, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	start := time.Now()

	artifacts, err := b.knowledge.ListArtifacts(slug)
	if err != nil {
		return nil, 0, err
	}

	sb, err := store.NewIndexBuilder(store.IndexConfig{
		Slug:       slug,
		Dimensions: b.embedder.Dimensions(),
		Keyword:    b.cfg.Hybrid,
	})
	if err != nil {
		return nil, 0, err
	}

	var chunks []chunk.Chunk
	indexed := 0
	for _, art := range artifacts {
		extractor, ok := knowledge.ExtractorFor(b.extractors, art.Name)
		if !ok {
			slog.Debug("skipping artifact with unsupported extension",
				slog.String("department", slug),
				slog.String("artifact", art.Name))
			continue
		}
		if art.Size > b.cfg.MaxArtifactSize {
			slog.Warn("skipping oversized artifact",
				slog.String("department", slug),
				slog.String("artifact", art.Name),
				slog.Int64("size_bytes", art.Size))
			continue
		}

		text, err := extractor.Extract(ctx, art.AbsPath)
		if err != nil {
			return nil, 0, err
		}

		pieces := chunk.FromArtifact(slug, art.Name, text)
		if len(pieces) == 0 {
			slog.Debug("artifact yielded no chunks",
				slog.String("department", slug),
				slog.String("artifact", art.Name))
			continue
		}
		chunks = append(chunks, pieces...)
		indexed++
	}

	if err := b.embedInto(ctx, sb, chunks); err != nil {
		return nil, 0, err
	}

	idx, err := sb.Seal()
	if err != nil {
		return nil, 0, err
	}

	slog.Info("department index built",
		slog.String("department", slug),
		slog.Int("artifacts", indexed),
		slog.Int("chunks", idx.ChunkCount()),
		slog.Duration("duration", time.Since(start)))
	return idx, indexed, nil
}

func (b *Builder) embedInto(ctx context.Context, sb *store.IndexBuilder, chunks []chunk.Chunk) error {
	for begin := 0; begin < len(chunks); begin += b.cfg.BatchSize {
		end := min(begin+b.cfg.BatchSize, len(chunks))
		batch := chunks[begin:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if err := sb.Add(ctx, batch, vectors); err != nil {
			return err
		}
	}
	return nil
}

// BuildOutcome is one department's result within a batch build.
// Index is nil exactly when Err is set.
type BuildOutcome struct {
	Slug      string
	Index     *store.Index
	Artifacts int
	Err       error
}

// BuildAll builds the listed departments concurrently, bounded by the
// configured worker count. Failures are isolated per department: one
// broken folder or provider hiccup never aborts the others. Outcomes
// come back in slug argument order.
func (b *Builder) BuildAll(ctx context.Context, slugs []string) []BuildOutcome {
	b.auditStrayFolders()

	outcomes := make([]BuildOutcome, len(slugs))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, b.cfg.Workers)

	for i, slug := range slugs {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				outcomes[i] = BuildOutcome{Slug: slug, Err: gctx.Err()}
				return nil
			}

			idx, artifacts, err := b.buildOne(gctx, slug)
			if err != nil {
				slog.Warn("department build failed",
					slog.String("department", slug),
					slog.String("error", err.Error()))
				outcomes[i] = BuildOutcome{Slug: slug, Err: err}
				return nil
			}
			outcomes[i] = BuildOutcome{Slug: slug, Index: idx, Artifacts: artifacts}
			return nil
		})
	}

	// Goroutines report failures through their outcome slot, so Wait
	// only synchronizes.
	_ = g.Wait()
	return outcomes
}

// auditStrayFolders logs knowledge folders that match no configured
// department. They are never merged into another department's index.
func (b *Builder) auditStrayFolders() {
	stray, err := b.knowledge.UnknownDirs(b.set)
	if err != nil {
		slog.Warn("knowledge tree audit failed", slog.String("error", err.Error()))
		return
	}
	if len(stray) > 0 {
		slog.Warn("ignoring knowledge folders that match no configured department",
			slog.Any("folders", stray))
	}
}
