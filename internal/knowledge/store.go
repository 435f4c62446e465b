package knowledge

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/uqsoft/crossdock/internal/department"
	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

const (
	// maxStemRunes caps sanitized artifact stems. Long enough for generated
	// names like "vacation_schedule_sorting_center", short enough for any
	// filesystem.
	maxStemRunes = 50

	// fallbackName replaces names that sanitize down to nothing.
	fallbackName = "knowledge_doc"
)

var (
	// unsafeRunes matches everything a stored name may not contain.
	// Letters and digits of any script survive, so Cyrillic artifact
	// names stay readable.
	unsafeRunes = regexp.MustCompile(`[^\p{L}\p{N}_-]`)

	// underscoreRuns collapses the replacement noise sanitizing leaves.
	underscoreRuns = regexp.MustCompile(`_+`)

	// extShape is what a trusted extension looks like after lower-casing.
	extShape = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

// SanitizeName collapses an arbitrary artifact name into a safe base name.
// Directory components are stripped, the stem keeps only letters, digits,
// underscores and hyphens, underscore runs collapse, and the result is
// lower-cased and capped at 50 runes. A name with nothing left becomes
// "knowledge_doc". The extension survives when it still looks like one.
func SanitizeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))

	ext := strings.ToLower(path.Ext(base))
	stem := strings.TrimSuffix(base, path.Ext(base))

	stem = unsafeRunes.ReplaceAllString(stem, "_")
	stem = underscoreRuns.ReplaceAllString(stem, "_")
	stem = strings.ToLower(strings.Trim(stem, "_"))
	if runes := []rune(stem); len(runes) > maxStemRunes {
		stem = strings.Trim(string(runes[:maxStemRunes]), "_")
	}
	if stem == "" {
		stem = fallbackName
	}

	if !extShape.MatchString(ext) {
		ext = ""
	}
	return stem + ext
}

// Store is the filesystem accessor for the knowledge tree.
// Safe for concurrent use; writes additionally hold a cross-process lock.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir. The directory is not created
// until the first write; a missing tree is a valid empty one.
func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, cderrors.ConfigError("knowledge base dir is empty", nil)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, cderrors.ConfigError(fmt.Sprintf("failed to resolve knowledge base dir %q", baseDir), err)
	}
	return &Store{baseDir: abs}, nil
}

// BaseDir returns the absolute root of the knowledge tree.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// DepartmentDir returns the absolute folder for a department slug.
// Hierarchical slugs map to nested folders.
func (s *Store) DepartmentDir(slug string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(slug))
}

// EnsureTree creates the base dir and one folder per configured department.
// Used by project scaffolding; rebuilds tolerate missing folders without it.
func (s *Store) EnsureTree(set *department.Set) error {
	for _, slug := range set.Slugs() {
		if err := os.MkdirAll(s.DepartmentDir(slug), 0o755); err != nil {
			return cderrors.StorageError(cderrors.ErrCodeArtifactWriteFailed,
				"failed to create department folder", err).
				WithDetail("department", slug)
		}
	}
	return nil
}

// WriteArtifact stores data under the department's folder and returns the
// path relative to the base dir. The name is sanitized first; when it
// collides with an existing artifact the stem gains a "_1", "_2", ... suffix
// so uploads never overwrite each other. The duplicate probe and the write
// run under a cross-process file lock.
func (s *Store) WriteArtifact(slug, name string, data []byte) (string, error) {
	dir, err := s.resolve(slug)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", cderrors.StorageError(cderrors.ErrCodeArtifactWriteFailed,
			"failed to create department folder", err).
			WithDetail("department", slug)
	}

	lock := NewFileLock(s.baseDir)
	if err := lock.Lock(); err != nil {
		return "", cderrors.StorageError(cderrors.ErrCodeArtifactWriteFailed,
			"failed to lock knowledge tree", err).
			WithDetail("department", slug)
	}
	defer func() { _ = lock.Unlock() }()

	wantName := SanitizeName(name)
	ext := path.Ext(wantName)
	stem := strings.TrimSuffix(wantName, ext)

	finalName := wantName
	target := filepath.Join(dir, finalName)
	for n := 1; ; n++ {
		_, statErr := os.Stat(target)
		if errors.Is(statErr, fs.ErrNotExist) {
			break
		}
		if statErr != nil {
			return "", cderrors.StorageError(cderrors.ErrCodeArtifactWriteFailed,
				"failed to probe artifact name", statErr).
				WithDetail("department", slug)
		}
		finalName = fmt.Sprintf("%s_%d%s", stem, n, ext)
		target = filepath.Join(dir, finalName)
	}

	if finalName != wantName {
		slog.Info("artifact renamed to avoid duplicate",
			slog.String("department", slug),
			slog.String("requested", wantName),
			slog.String("stored", finalName))
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", cderrors.StorageError(cderrors.ErrCodeArtifactWriteFailed,
			"failed to write artifact", err).
			WithDetail("department", slug).
			WithDetail("artifact", finalName)
	}

	rel, err := filepath.Rel(s.baseDir, target)
	if err != nil {
		return "", cderrors.StorageError(cderrors.ErrCodeArtifactWriteFailed,
			"failed to relativize artifact path", err).
			WithDetail("artifact", finalName)
	}

	slog.Debug("artifact written",
		slog.String("department", slug),
		slog.String("path", rel),
		slog.Int("bytes", len(data)))

	return rel, nil
}

// ListArtifacts returns the files directly inside the department's folder,
// sorted by name. Subfolders are skipped (children of "delivery" are their
// own departments), as are dotfiles. A missing folder is an empty list,
// not an error.
func (s *Store) ListArtifacts(slug string) ([]Artifact, error) {
	dir, err := s.resolve(slug)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, cderrors.StorageError(cderrors.ErrCodeArtifactReadFailed,
			"failed to read department folder", err).
			WithDetail("department", slug)
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			continue // a link can point outside the tree
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:    entry.Name(),
			RelPath: filepath.Join(filepath.FromSlash(slug), entry.Name()),
			AbsPath: filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return artifacts, nil
}

// DeleteArtifact removes one artifact by its base-dir-relative path.
// Directories are refused; removing a department folder goes through
// filesystem tooling, not the artifact surface.
func (s *Store) DeleteArtifact(relPath string) error {
	target, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	info, err := os.Lstat(target)
	if err != nil {
		return cderrors.StorageError(cderrors.ErrCodeArtifactWriteFailed,
			"failed to delete artifact", err).
			WithDetail("path", relPath)
	}
	if info.IsDir() {
		return cderrors.ValidationError(cderrors.ErrCodeUnsafePath,
			"refusing to delete a directory").
			WithDetail("path", relPath)
	}

	if err := os.Remove(target); err != nil {
		return cderrors.StorageError(cderrors.ErrCodeArtifactWriteFailed,
			"failed to delete artifact", err).
			WithDetail("path", relPath)
	}

	slog.Debug("artifact deleted", slog.String("path", relPath))
	return nil
}

// UnknownDirs returns folders under the base dir that match no configured
// department, sorted, in slash form. Parents of hierarchical slugs (like
// "delivery") are not unknown; an unknown folder's subtree is reported once.
// The rebuild logs and ignores these: content in a mistyped folder must
// never leak into another department's index.
func (s *Store) UnknownDirs(set *department.Set) ([]string, error) {
	var unknown []string

	walkErr := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, like unreadable artifacts
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.baseDir, p)
		if relErr != nil || rel == "." {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		slug := filepath.ToSlash(rel)
		if set.Contains(slug) || isSlugParent(set, slug) {
			return nil
		}
		unknown = append(unknown, slug)
		return filepath.SkipDir
	})
	if walkErr != nil {
		return nil, cderrors.StorageError(cderrors.ErrCodeArtifactReadFailed,
			"failed to walk knowledge tree", walkErr)
	}

	sort.Strings(unknown)
	return unknown, nil
}

// isSlugParent reports whether dir is an ancestor folder of a configured
// hierarchical slug.
func isSlugParent(set *department.Set, dir string) bool {
	prefix := dir + "/"
	for _, slug := range set.Slugs() {
		if strings.HasPrefix(slug, prefix) {
			return true
		}
	}
	return false
}

// resolve maps a base-dir-relative path (or slug) to an absolute path,
// rejecting anything that would escape the knowledge tree.
func (s *Store) resolve(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", cderrors.ValidationError(cderrors.ErrCodeUnsafePath,
			"empty knowledge path")
	}

	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || !filepath.IsLocal(clean) {
		return "", cderrors.ValidationError(cderrors.ErrCodeUnsafePath,
			"path escapes the knowledge tree").
			WithDetail("path", relPath)
	}

	abs := filepath.Join(s.baseDir, clean)
	if abs != s.baseDir && !strings.HasPrefix(abs, s.baseDir+string(filepath.Separator)) {
		return "", cderrors.ValidationError(cderrors.ErrCodeUnsafePath,
			"path escapes the knowledge tree").
			WithDetail("path", relPath)
	}
	return abs, nil
}
