// Package ingest accepts new knowledge artifacts from the serving
// surfaces, stores them in the department tree, and republishes the
// index so the content becomes searchable.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/uqsoft/crossdock/internal/department"
	cderrors "github.com/uqsoft/crossdock/internal/errors"
	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/knowledge"
)

// Artifact is one incoming knowledge item, before sanitizing.
type Artifact struct {
	// Name is the requested file name. Text and voice kinds may leave it
	// empty; a name is then derived from the content.
	Name string

	// Kind classifies the ingestion surface. Empty defaults to text.
	Kind knowledge.Kind

	Data []byte
}

// Result describes a stored artifact and its index effect.
type Result struct {
	// StoredPath is the artifact path relative to the knowledge base dir,
	// after sanitizing and duplicate suffixing.
	StoredPath string

	// Slug is the canonical department the artifact landed in.
	Slug string

	// ChunkCount is the department's chunk count after the rebuild.
	ChunkCount int
}

// Rebuilder republishes the index snapshot after new content lands.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*index.Report, error)
	RebuildDepartments(ctx context.Context, slugs ...string) (*index.Report, error)
}

// Config tunes post-ingest rebuild behavior.
type Config struct {
	// ScopedRebuild rebuilds only the affected department instead of the
	// whole snapshot. Ingests into common always rebuild everything,
	// since common content is visible in every user's scope.
	ScopedRebuild bool
}

// Coordinator runs the ingestion pipeline: validate the target
// department, store the artifact, rebuild.
type Coordinator struct {
	store     *knowledge.Store
	set       *department.Set
	rebuilder Rebuilder
	cfg       Config
}

// NewCoordinator wires an ingestion coordinator.
func NewCoordinator(store *knowledge.Store, set *department.Set, rebuilder Rebuilder, cfg Config) *Coordinator {
	return &Coordinator{store: store, set: set, rebuilder: rebuilder, cfg: cfg}
}

// Ingest validates, stores, and indexes one artifact. The department is
// checked before anything touches disk, so an invalid slug never leaves
// a stray file. When the rebuild fails the artifact stays stored; the
// returned Result then carries the path alongside the error, so callers
// can report "saved, not yet searchable" instead of losing the upload.
func (c *Coordinator) Ingest(ctx context.Context, artifact Artifact, slug string) (*Result, error) {
	slug = department.Normalize(slug)
	if !c.set.Contains(slug) {
		return nil, cderrors.InvalidDepartment(slug)
	}

	kind := artifact.Kind
	if kind == "" {
		kind = knowledge.KindText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown artifact kind %q", artifact.Kind)
	}
	if len(artifact.Data) == 0 {
		return nil, fmt.Errorf("artifact data is empty")
	}
	if int64(len(artifact.Data)) > knowledge.MaxArtifactSize {
		return nil, fmt.Errorf("artifact exceeds %d bytes and would never be indexed (got %d)",
			knowledge.MaxArtifactSize, len(artifact.Data))
	}

	name := artifact.Name
	if kind != knowledge.KindDocument {
		name = textName(name, artifact.Data)
	}

	rel, err := c.store.WriteArtifact(slug, name, artifact.Data)
	if err != nil {
		return nil, err
	}

	res := &Result{StoredPath: rel, Slug: slug}

	var report *index.Report
	if c.cfg.ScopedRebuild && slug != department.CommonSlug {
		report, err = c.rebuilder.RebuildDepartments(ctx, slug)
	} else {
		report, err = c.rebuilder.Rebuild(ctx)
	}
	if err != nil {
		return res, err
	}

	if st, ok := report.Status(slug); ok {
		res.ChunkCount = st.ChunkCount
		if st.Err != nil {
			return res, st.Err
		}
	}

	slog.Info("artifact ingested",
		slog.String("department", slug),
		slog.String("path", rel),
		slog.String("kind", string(kind)),
		slog.Int("chunks", res.ChunkCount))
	return res, nil
}

// textName forces the .txt extension for text and voice kinds. A missing
// name is derived from the leading words of the content, the way chat
// notes arrive without file names.
func textName(name string, data []byte) string {
	stem := strings.TrimSpace(name)
	if stem != "" {
		return strings.TrimSuffix(stem, path.Ext(stem)) + ".txt"
	}

	words := strings.Fields(string(data))
	if len(words) > 4 {
		words = words[:4]
	}
	if len(words) == 0 {
		return "note.txt"
	}
	return strings.Join(words, "_") + ".txt"
}
