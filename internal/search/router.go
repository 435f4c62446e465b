package search

import (
	"context"
	"log/slog"

	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/index"
)

// Router turns a user into a search scope: the list of department
// slugs the query runs against. It caches nothing; every call reads
// the user directory and the live snapshot, so a rebuild or
// reassignment takes effect on the next query without restart.
type Router struct {
	users    UserDirectory
	registry *index.Registry
}

// NewRouter wires a router over the user directory and the registry.
func NewRouter(users UserDirectory, registry *index.Registry) *Router {
	return &Router{users: users, registry: registry}
}

// ResolveScope resolves the slugs a user's query searches:
//
//   - unassigned user (admin): every slug in the current snapshot;
//   - assigned to an indexed department: that slug plus common;
//   - assigned to a slug absent from the snapshot: common only, with a
//     warning. Never an error, never silently empty.
//
// Before the first rebuild it fails with the registry-uninitialized
// condition.
func (r *Router) ResolveScope(ctx context.Context, userID int64) ([]string, error) {
	snap, err := r.registry.Current()
	if err != nil {
		return nil, err
	}
	scope, _, err := r.resolveOn(ctx, snap, userID)
	return scope, err
}

// resolveOn resolves against a caller-held snapshot, so one query uses
// a single consistent view for both routing and retrieval. The second
// return reports administrator (full) visibility.
func (r *Router) resolveOn(ctx context.Context, snap *index.Snapshot, userID int64) ([]string, bool, error) {
	raw, err := r.users.GetDepartment(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	slug := department.Normalize(raw)
	if slug == "" {
		return snap.Slugs(), true, nil
	}

	if _, ok := snap.Index(slug); ok {
		if slug == department.CommonSlug {
			return []string{department.CommonSlug}, false, nil
		}
		return []string{slug, department.CommonSlug}, false, nil
	}

	slog.Warn("user department has no index, falling back to common",
		slog.Int64("user_id", userID),
		slog.String("department", slug))
	return []string{department.CommonSlug}, false, nil
}
