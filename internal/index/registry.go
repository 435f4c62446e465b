package index

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	cderrors "github.com/uqsoft/crossdock/internal/errors"
	"github.com/uqsoft/crossdock/internal/store"
)

// Snapshot is an immutable view of every published department index.
// Readers hold it without locking; a rebuild never mutates a snapshot,
// it publishes a new one.
type Snapshot struct {
	indexes     map[string]*store.Index
	version     uint64
	publishedAt time.Time
}

// NewSnapshot builds a snapshot over the given department indexes. The
// map is taken as-is and must not be mutated afterwards.
func NewSnapshot(indexes map[string]*store.Index, version uint64) *Snapshot {
	return &Snapshot{
		indexes:     indexes,
		version:     version,
		publishedAt: time.Now().UTC(),
	}
}

// Index returns the department's index, if the snapshot carries one.
func (s *Snapshot) Index(slug string) (*store.Index, bool) {
	idx, ok := s.indexes[slug]
	return idx, ok
}

// Slugs returns the indexed department slugs, sorted.
func (s *Snapshot) Slugs() []string {
	slugs := make([]string, 0, len(s.indexes))
	for slug := range s.indexes {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Len returns the number of indexed departments.
func (s *Snapshot) Len() int { return len(s.indexes) }

// Version returns the monotonically increasing snapshot version.
func (s *Snapshot) Version() uint64 { return s.version }

// PublishedAt returns when the snapshot was swapped in.
func (s *Snapshot) PublishedAt() time.Time { return s.publishedAt }

// DepartmentStatus is one department's outcome within a rebuild.
type DepartmentStatus struct {
	Slug          string
	ChunkCount    int
	ArtifactCount int

	// RetainedPrior marks a failed build whose previously published
	// index was carried into the new snapshot.
	RetainedPrior bool

	Err error
}

// Report summarizes a rebuild: which departments built, which failed,
// and what got published.
type Report struct {
	Version   uint64
	StartedAt time.Time
	Duration  time.Duration
	Statuses  []DepartmentStatus
}

// Failed returns the statuses of departments whose build failed.
func (r *Report) Failed() []DepartmentStatus {
	var failed []DepartmentStatus
	for _, st := range r.Statuses {
		if st.Err != nil {
			failed = append(failed, st)
		}
	}
	return failed
}

// Status returns the rebuild status for one department.
func (r *Report) Status(slug string) (DepartmentStatus, bool) {
	for _, st := range r.Statuses {
		if st.Slug == slug {
			return st, true
		}
	}
	return DepartmentStatus{}, false
}

// Registry holds the published snapshot reference. Reads are a single
// atomic load; rebuilds are serialized by a mutex and publish with one
// atomic swap, so readers never block and never observe a mix of old
// and new department indexes.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewRegistry returns an uninitialized registry. Current fails until
// the first successful rebuild publishes a snapshot.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the published snapshot without blocking. Before the
// first successful rebuild it returns the registry-uninitialized
// condition, never an empty snapshot, so callers can tell "not yet
// loaded" from "no departments".
func (r *Registry) Current() (*Snapshot, error) {
	snap := r.current.Load()
	if snap == nil {
		return nil, cderrors.ErrRegistryUninitialized
	}
	return snap, nil
}

// Initialized reports whether a snapshot has been published.
func (r *Registry) Initialized() bool {
	return r.current.Load() != nil
}

// Rebuild builds a complete new snapshot off to the side and publishes
// it atomically. A department whose build fails keeps its index from
// the prior snapshot; such failures are reported in the statuses, not
// as an overall error. Concurrent rebuilds serialize: the second waits,
// then runs against the first one's published snapshot.
func (r *Registry) Rebuild(ctx context.Context, builder *Builder) (*Report, error) {
	return r.rebuild(ctx, builder, nil)
}

// RebuildDepartments rebuilds only the named departments, carrying
// every other department over from the current snapshot unchanged.
// Falls back to a full rebuild when the registry is uninitialized.
func (r *Registry) RebuildDepartments(ctx context.Context, builder *Builder, slugs ...string) (*Report, error) {
	if len(slugs) == 0 {
		return r.rebuild(ctx, builder, nil)
	}
	seen := make(map[string]struct{}, len(slugs))
	only := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		if !builder.Departments().Contains(slug) {
			return nil, cderrors.InvalidDepartment(slug)
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		only = append(only, slug)
	}
	return r.rebuild(ctx, builder, only)
}

func (r *Registry) rebuild(ctx context.Context, builder *Builder, only []string) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	prior := r.current.Load()

	targets := only
	if targets == nil || prior == nil {
		targets = builder.Departments().Slugs()
		only = nil
	}

	outcomes := builder.BuildAll(ctx, targets)
	if err := ctx.Err(); err != nil {
		// The attempt is discarded whole; the last good snapshot stands.
		return nil, err
	}

	indexes := make(map[string]*store.Index, len(targets))
	if only != nil {
		for slug, idx := range prior.indexes {
			indexes[slug] = idx
		}
	}

	statuses := make([]DepartmentStatus, 0, len(outcomes))
	built := 0
	for _, out := range outcomes {
		st := DepartmentStatus{Slug: out.Slug, ArtifactCount: out.Artifacts}
		if out.Err == nil {
			indexes[out.Slug] = out.Index
			st.ChunkCount = out.Index.ChunkCount()
			built++
		} else {
			st.Err = cderrors.Wrap(cderrors.ErrCodePartialBuildFailure, out.Err).
				WithDetail("department", out.Slug)
			if prior != nil {
				if old, ok := prior.indexes[out.Slug]; ok {
					indexes[out.Slug] = old
					st.RetainedPrior = true
					st.ChunkCount = old.ChunkCount()
				}
			}
		}
		statuses = append(statuses, st)
	}

	report := &Report{StartedAt: start, Statuses: statuses}

	if built == 0 && prior == nil {
		// Nothing usable on the very first rebuild: stay uninitialized
		// rather than publish an empty snapshot.
		report.Duration = time.Since(start)
		return report, cderrors.New(cderrors.ErrCodePartialBuildFailure,
			"initial rebuild produced no usable index", nil)
	}

	version := uint64(1)
	if prior != nil {
		version = prior.version + 1
	}
	r.current.Store(NewSnapshot(indexes, version))

	report.Version = version
	report.Duration = time.Since(start)
	slog.Info("index snapshot published",
		slog.Uint64("version", version),
		slog.Int("departments", len(indexes)),
		slog.Int("failed", len(report.Failed())),
		slog.Duration("duration", report.Duration))
	return report, nil
}
