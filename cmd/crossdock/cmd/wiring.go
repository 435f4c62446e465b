package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/uqsoft/crossdock/internal/config"
	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/embed"
	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/ingest"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/search"
	"github.com/uqsoft/crossdock/internal/telemetry"
	"github.com/uqsoft/crossdock/internal/userstore"
)

// loadConfig resolves configuration for a command invocation. The
// --config flag wins; otherwise discovery runs (defaults, user config,
// project .crossdock.yaml, CROSSDOCK_* environment).
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load(".")
}

// app bundles the retrieval pipeline the commands share. Indexes live
// in process memory, so every invocation starts with an uninitialized
// registry; commands that answer queries rebuild first.
type app struct {
	cfg         *config.Config
	set         *department.Set
	know        *knowledge.Store
	embedder    embed.Embedder
	builder     *index.Builder
	registry    *index.Registry
	metrics     *telemetry.QueryMetrics
	engine      *search.Engine
	coordinator *ingest.Coordinator
	users       *userstore.Store
}

// newApp wires the pipeline from config: department roster, knowledge
// store, embedder, builder, registry, search engine, ingestion
// coordinator, user directory.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	set, err := cfg.DepartmentSet()
	if err != nil {
		return nil, err
	}

	know, err := knowledge.NewStore(cfg.Knowledge.BaseDir)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
		OllamaHost: cfg.Embeddings.OllamaHost,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	users, err := userstore.Open(cfg.Users.DBPath)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	builder := index.NewBuilder(know, embedder, set, index.BuilderConfig{
		BatchSize: cfg.Embeddings.BatchSize,
		Hybrid:    cfg.Retrieval.Hybrid,
		Workers:   cfg.Knowledge.Workers,
	})
	registry := index.NewRegistry()
	metrics := telemetry.NewQueryMetrics()

	engine := search.NewEngine(registry, builder, users, embedder, search.EngineConfig{
		TopK:        cfg.Retrieval.TopK,
		AdminTopK:   cfg.Retrieval.AdminTopK,
		DedupPrefix: cfg.Retrieval.DedupPrefix,
		Hybrid:      cfg.Retrieval.Hybrid,
		Weights: search.Weights{
			BM25:     cfg.Retrieval.BM25Weight,
			Semantic: cfg.Retrieval.SemanticWeight,
		},
		RRFConstant: cfg.Retrieval.RRFConstant,
	}, search.WithMetrics(metrics))

	coordinator := ingest.NewCoordinator(know, set, engine, ingest.Config{
		ScopedRebuild: cfg.Ingestion.RebuildScope == config.RebuildScopeDepartment,
	})

	return &app{
		cfg:         cfg,
		set:         set,
		know:        know,
		embedder:    embedder,
		builder:     builder,
		registry:    registry,
		metrics:     metrics,
		engine:      engine,
		coordinator: coordinator,
		users:       users,
	}, nil
}

func (a *app) Close() error {
	var errs []error
	if a.users != nil {
		if err := a.users.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
