// Package department defines the canonical department slugs and the
// normalization of raw assignment values into them.
//
// Department slugs are the tenancy boundary for the whole engine: index
// folders, search scopes, and ingestion targets are all keyed by slug.
// Raw assignment values arrive from external directories in several legacy
// shapes ("Department.SORTING", ".SORTING", mixed case, stray whitespace)
// and must collapse to one canonical form at this boundary so no other
// package ever compares raw strings.
package department

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// CommonSlug is the shared department every non-admin scope includes.
const CommonSlug = "common"

// slugShape validates canonical slugs: lowercase segments separated by "/".
var slugShape = regexp.MustCompile(`^[a-z0-9_]+(/[a-z0-9_]+)*$`)

// Normalize collapses a raw department assignment to its canonical slug.
// The empty result means no assignment (administrator visibility).
//
// Rules:
//   - surrounding whitespace is trimmed and the value lower-cased;
//   - a namespace-style prefix is stripped, keeping the final dot-separated
//     segment ("Department.SORTING" and ".SORTING" both become "sorting");
//   - hierarchical "/" separators are preserved ("delivery/courier");
//   - empty or whitespace-only input yields "".
//
// A non-empty value whose final dot segment is empty ("Department.") keeps
// the whole value instead of collapsing to "": a malformed assignment must
// fail membership later, not silently widen into administrator scope.
//
// Normalize is idempotent and performs no membership validation or I/O.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if i := strings.LastIndex(s, "."); i >= 0 {
		if tail := strings.TrimSpace(s[i+1:]); tail != "" {
			s = tail
		}
	}

	return strings.ToLower(strings.TrimSpace(s))
}

// Department is one configured department.
type Department struct {
	// Slug is the canonical identifier ("sorting", "delivery/courier").
	Slug string `yaml:"slug"`
	// Name is the human-readable display name.
	Name string `yaml:"name"`
}

// Set is the configured department list. Immutable after construction.
type Set struct {
	bySlug map[string]Department
	slugs  []string // sorted
}

// NewSet builds a validated department set. Slugs must be canonical
// (already normalized), unique, and include the common department.
func NewSet(departments []Department) (*Set, error) {
	if len(departments) == 0 {
		return nil, fmt.Errorf("department set is empty")
	}

	bySlug := make(map[string]Department, len(departments))
	slugs := make([]string, 0, len(departments))

	for _, d := range departments {
		if !slugShape.MatchString(d.Slug) {
			return nil, fmt.Errorf("invalid department slug %q (want lowercase segments like %q)", d.Slug, "delivery/courier")
		}
		if d.Slug != Normalize(d.Slug) {
			return nil, fmt.Errorf("department slug %q is not in canonical form", d.Slug)
		}
		if _, dup := bySlug[d.Slug]; dup {
			return nil, fmt.Errorf("duplicate department slug %q", d.Slug)
		}
		bySlug[d.Slug] = d
		slugs = append(slugs, d.Slug)
	}

	if _, ok := bySlug[CommonSlug]; !ok {
		return nil, fmt.Errorf("department set must include %q", CommonSlug)
	}

	sort.Strings(slugs)

	return &Set{bySlug: bySlug, slugs: slugs}, nil
}

// DefaultSet returns the production department layout.
func DefaultSet() *Set {
	set, err := NewSet([]Department{
		{Slug: CommonSlug, Name: "Common"},
		{Slug: "delivery/courier", Name: "Courier"},
		{Slug: "delivery/franchise", Name: "Franchise"},
		{Slug: "sorting", Name: "Sorting Center"},
		{Slug: "customer_service", Name: "Customer Service"},
		{Slug: "manager", Name: "Manager"},
	})
	if err != nil {
		panic(err) // static data
	}
	return set
}

// Contains reports whether slug is a configured department.
func (s *Set) Contains(slug string) bool {
	_, ok := s.bySlug[slug]
	return ok
}

// Slugs returns all configured slugs, sorted.
func (s *Set) Slugs() []string {
	out := make([]string, len(s.slugs))
	copy(out, s.slugs)
	return out
}

// Len returns the number of configured departments.
func (s *Set) Len() int {
	return len(s.slugs)
}

// DisplayName returns the human-readable name for slug,
// or the slug itself when unknown.
func (s *Set) DisplayName(slug string) string {
	if d, ok := s.bySlug[slug]; ok && d.Name != "" {
		return d.Name
	}
	return slug
}

// Dir maps a slug to its folder path relative to the knowledge base dir.
// Hierarchical slugs become nested folders.
func (s *Set) Dir(slug string) string {
	return filepath.FromSlash(slug)
}

// All returns the departments sorted by slug.
func (s *Set) All() []Department {
	out := make([]Department, 0, len(s.slugs))
	for _, slug := range s.slugs {
		out = append(out, s.bySlug[slug])
	}
	return out
}
