package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uqsoft/crossdock/internal/config"
	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/embed"
	cderrors "github.com/uqsoft/crossdock/internal/errors"
	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/ingest"
	"github.com/uqsoft/crossdock/internal/knowledge"
	"github.com/uqsoft/crossdock/internal/search"
	"github.com/uqsoft/crossdock/internal/userstore"
)

// Options configures Open.
type Options struct {
	// Dir is the root for config discovery and relative paths. Empty
	// means the current directory.
	Dir string

	// ConfigPath loads exactly one config file instead of discovery.
	ConfigPath string

	// Config bypasses loading entirely when the host built its own.
	Config *config.Config

	// SkipInitialBuild leaves the index unpublished. Answer fails with
	// a not-ready condition until the host calls Rebuild.
	SkipInitialBuild bool
}

// Passage is one retrieved chunk.
type Passage struct {
	Department string
	Artifact   string
	Seq        int
	Text       string
	Score      float64
}

// Answer is a served question with its resolution trace.
type Answer struct {
	Query    string
	Scope    []string
	Admin    bool
	Passages []Passage
	Duration time.Duration
}

// Document is one item to ingest.
type Document struct {
	// Name is the requested file name. Text and voice kinds may leave
	// it empty; a name is derived from the content.
	Name string

	// Kind is "text", "voice", or "document". Empty means text.
	Kind string

	Data []byte
}

// Stored describes an accepted document.
type Stored struct {
	// Path is relative to the knowledge base dir.
	Path       string
	Department string
	Chunks     int
}

// Artifact is one stored file in a department folder.
type Artifact struct {
	Name    string
	Path    string // relative to the knowledge base dir
	Size    int64
	ModTime time.Time
}

// Department is one roster entry.
type Department struct {
	Slug string
	Name string
}

// BuildReport summarizes a rebuild.
type BuildReport struct {
	Version     uint64
	Departments int
	Failed      []string // slugs whose build failed
	Duration    time.Duration
}

// Client is an in-process retrieval pipeline over one knowledge tree.
// Safe for concurrent use.
type Client struct {
	cfg         *config.Config
	set         *department.Set
	know        *knowledge.Store
	embedder    embed.Embedder
	users       *userstore.Store
	engine      *search.Engine
	coordinator *ingest.Coordinator
}

// Open wires a client from configuration and, unless skipped, builds
// the first index snapshot before returning. Partial department
// failures do not fail Open; they surface in the next Rebuild report.
func Open(ctx context.Context, opts Options) (*Client, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	set, err := cfg.DepartmentSet()
	if err != nil {
		return nil, err
	}

	know, err := knowledge.NewStore(cfg.Knowledge.BaseDir)
	if err != nil {
		return nil, err
	}
	if err := know.EnsureTree(set); err != nil {
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
	})

	coordinator := ingest.NewCoordinator(know, set, engine, ingest.Config{
		ScopedRebuild: cfg.Ingestion.RebuildScope == config.RebuildScopeDepartment,
	})

	c := &Client{
		cfg:         cfg,
		set:         set,
		know:        know,
		embedder:    embedder,
		users:       users,
		engine:      engine,
		coordinator: coordinator,
	}

	if !opts.SkipInitialBuild {
		if _, err := c.engine.Rebuild(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("initial index build failed: %w", err)
		}
	}

	return c, nil
}

func resolveConfig(opts Options) (*config.Config, error) {
	if opts.Config != nil {
		return opts.Config, nil
	}
	if opts.ConfigPath != "" {
		return config.LoadFile(opts.ConfigPath)
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	return config.Load(dir)
}

// Answer resolves the user's visibility scope and answers the question
// from it. Unknown users get full visibility; assigned users see their
// department plus common.
func (c *Client) Answer(ctx context.Context, userID int64, question string) (*Answer, error) {
	res, err := c.engine.Query(ctx, userID, question)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, len(res.Passages))
	for i, p := range res.Passages {
		passages[i] = Passage{
			Department: p.Department,
			Artifact:   p.Artifact,
			Seq:        p.Seq,
			Text:       p.Text,
			Score:      p.Score,
		}
	}
	return &Answer{
		Query:    res.Query,
		Scope:    res.Scope,
		Admin:    res.Admin,
		Passages: passages,
		Duration: res.Duration,
	}, nil
}

// Ingest stores a document in a department folder and reindexes it.
// On an indexing failure the document stays stored and the returned
// Stored carries its path alongside the error.
func (c *Client) Ingest(ctx context.Context, dept string, doc Document) (*Stored, error) {
	kind := knowledge.KindText
	if doc.Kind != "" {
		var err error
		if kind, err = knowledge.ParseKind(doc.Kind); err != nil {
			return nil, err
		}
	}

	res, err := c.coordinator.Ingest(ctx, ingest.Artifact{
		Name: doc.Name,
		Kind: kind,
		Data: doc.Data,
	}, dept)

	var stored *Stored
	if res != nil {
		stored = &Stored{
			Path:       res.StoredPath,
			Department: res.Slug,
			Chunks:     res.ChunkCount,
		}
	}
	return stored, err
}

// Artifacts lists the stored files of one department.
func (c *Client) Artifacts(dept string) ([]Artifact, error) {
	slug := department.Normalize(dept)
	if !c.set.Contains(slug) {
		return nil, cderrors.InvalidDepartment(dept)
	}

	list, err := c.know.ListArtifacts(slug)
	if err != nil {
		return nil, err
	}

	out := make([]Artifact, len(list))
	for i, a := range list {
		out[i] = Artifact{
			Name:    a.Name,
			Path:    a.RelPath,
			Size:    a.Size,
			ModTime: a.ModTime,
		}
	}
	return out, nil
}

// DeleteArtifact removes a stored file by its tree-relative path. The
// index serves the stale passage until the next Rebuild.
func (c *Client) DeleteArtifact(relPath string) error {
	return c.know.DeleteArtifact(relPath)
}

// Rebuild builds and publishes a fresh index snapshot.
func (c *Client) Rebuild(ctx context.Context) (*BuildReport, error) {
	report, err := c.engine.Rebuild(ctx)
	if err != nil {
		return nil, err
	}

	out := &BuildReport{
		Version:     report.Version,
		Departments: len(report.Statuses),
		Duration:    report.Duration,
	}
	for _, st := range report.Failed() {
		out.Failed = append(out.Failed, st.Slug)
	}
	return out, nil
}

// AssignUser puts the user in a department. The value is normalized
// and validated against the roster.
func (c *Client) AssignUser(ctx context.Context, userID int64, dept string) error {
	slug := department.Normalize(dept)
	if !c.set.Contains(slug) {
		return cderrors.InvalidDepartment(dept)
	}
	return c.users.SetDepartment(ctx, userID, slug)
}

// UnassignUser clears the user's department, restoring full visibility.
func (c *Client) UnassignUser(ctx context.Context, userID int64) error {
	return c.users.ClearDepartment(ctx, userID)
}

// Departments returns the configured roster.
func (c *Client) Departments() []Department {
	all := c.set.All()
	out := make([]Department, len(all))
	for i, d := range all {
		out[i] = Department{Slug: d.Slug, Name: d.Name}
	}
	return out
}

// Close releases the user directory and the embedding provider.
func (c *Client) Close() error {
	var errs []error
	if c.users != nil {
		if err := c.users.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func errCode(err error) string {
	var ce *cderrors.CrossdockError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsInvalidDepartment reports whether err rejects an unknown department.
func IsInvalidDepartment(err error) bool {
	return errCode(err) == cderrors.ErrCodeInvalidDepartment
}

// IsNotReady reports whether err means no index snapshot has been
// published yet.
func IsNotReady(err error) bool {
	return errCode(err) == cderrors.ErrCodeRegistryUninitialized
}

// IsEmptyQuery reports whether err rejects a blank question.
func IsEmptyQuery(err error) bool {
	return errCode(err) == cderrors.ErrCodeEmptyQuery
}
