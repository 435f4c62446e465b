package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/uqsoft/crossdock/internal/embed"
	cderrors "github.com/uqsoft/crossdock/internal/errors"
	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/telemetry"
)

// Default result counts, mirroring the retrieval config defaults.
const (
	DefaultTopK      = 3
	DefaultAdminTopK = 5
)

// EngineConfig tunes the query path.
type EngineConfig struct {
	// TopK is the result count for department-scoped queries.
	TopK int

	// AdminTopK is the result count for full-visibility queries.
	AdminTopK int

	// DedupPrefix, Hybrid, Weights and RRFConstant feed the merger.
	DedupPrefix int
	Hybrid      bool
	Weights     Weights
	RRFConstant int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.AdminTopK <= 0 {
		c.AdminTopK = DefaultAdminTopK
	}
	return c
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithMetrics attaches a query telemetry collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine is the retrieval facade: it resolves a user's scope, embeds
// the question, fans the search out across in-scope departments, and
// merges the candidates into ranked passages.
type Engine struct {
	registry *index.Registry
	builder  *index.Builder
	embedder embed.Embedder
	router   *Router
	merger   *Merger
	metrics  *telemetry.QueryMetrics
	cfg      EngineConfig
}

// NewEngine wires the facade. The registry may be uninitialized;
// queries fail fast until the first rebuild publishes.
func NewEngine(registry *index.Registry, builder *index.Builder, users UserDirectory, embedder embed.Embedder, cfg EngineConfig, opts ...EngineOption) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		registry: registry,
		builder:  builder,
		embedder: embedder,
		router:   NewRouter(users, registry),
		merger: NewMerger(MergerConfig{
			DedupPrefix: cfg.DedupPrefix,
			Hybrid:      cfg.Hybrid,
			Weights:     cfg.Weights,
			RRFConstant: cfg.RRFConstant,
		}),
		cfg: cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query answers a user's question from their visible departments.
// Empty questions are rejected; an uninitialized registry fails fast
// so the caller can show "still warming up" instead of no results.
func (e *Engine) Query(ctx context.Context, userID int64, question string) (*QueryResult, error) {
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, cderrors.ValidationError(cderrors.ErrCodeEmptyQuery, "query text is empty")
	}

	snap, err := e.registry.Current()
	if err != nil {
		return nil, err
	}

	// Routing and retrieval share one snapshot, so a rebuild landing
	// mid-query cannot produce a scope the search side disagrees with.
	scope, admin, err := e.router.resolveOn(ctx, snap, userID)
	if err != nil {
		return nil, err
	}

	topK := e.cfg.TopK
	if admin {
		topK = e.cfg.AdminTopK
	}

	queryVec, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	merged, err := e.merger.Search(ctx, snap, scope, question, queryVec, topK)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, len(merged))
	for i, sc := range merged {
		passages[i] = Passage{
			Department: sc.Chunk.Department,
			Artifact:   sc.Chunk.Artifact,
			Seq:        sc.Chunk.Seq,
			Text:       sc.Chunk.Text,
			Score:      sc.Score,
		}
	}

	result := &QueryResult{
		Query:    question,
		Scope:    scope,
		Admin:    admin,
		Passages: passages,
		Duration: time.Since(start),
	}

	if e.metrics != nil {
		e.metrics.Record(telemetry.QueryEvent{
			Query:       question,
			Departments: scope,
			Admin:       admin,
			ResultCount: len(passages),
			Latency:     result.Duration,
			Timestamp:   start,
		})
	}

	slog.Debug("query served",
		slog.Int64("user_id", userID),
		slog.Any("scope", scope),
		slog.Int("results", len(passages)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// Rebuild rebuilds every department and publishes a new snapshot.
func (e *Engine) Rebuild(ctx context.Context) (*index.Report, error) {
	return e.registry.Rebuild(ctx, e.builder)
}

// RebuildDepartments rebuilds only the named departments.
func (e *Engine) RebuildDepartments(ctx context.Context, slugs ...string) (*index.Report, error) {
	return e.registry.RebuildDepartments(ctx, e.builder, slugs...)
}

// ListDepartments returns the departments backed by a built index,
// with display names and chunk counts.
func (e *Engine) ListDepartments() ([]DepartmentInfo, error) {
	snap, err := e.registry.Current()
	if err != nil {
		return nil, err
	}

	set := e.builder.Departments()
	infos := make([]DepartmentInfo, 0, snap.Len())
	for _, slug := range snap.Slugs() {
		idx, ok := snap.Index(slug)
		if !ok {
			continue
		}
		infos = append(infos, DepartmentInfo{
			Slug:       slug,
			Name:       set.DisplayName(slug),
			ChunkCount: idx.ChunkCount(),
			BuiltAt:    idx.BuiltAt(),
		})
	}
	return infos, nil
}

// Snapshot exposes the current published snapshot for status surfaces.
func (e *Engine) Snapshot() (*index.Snapshot, error) {
	return e.registry.Current()
}

// Metrics returns the attached telemetry collector, if any.
func (e *Engine) Metrics() *telemetry.QueryMetrics {
	return e.metrics
}
