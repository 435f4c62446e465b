package knowledge

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

// Extractor turns one kind of artifact into indexable plain text.
// PDF, DOCX and audio extraction live outside this module behind the same
// interface; the index builder skips artifacts no extractor supports.
type Extractor interface {
	// Supports reports whether the extractor handles the named artifact.
	Supports(name string) bool
	// Extract returns the artifact's text content.
	Extract(ctx context.Context, path string) (string, error)
}

// plainTextExts are the formats stored as raw text on disk.
var plainTextExts = map[string]bool{
	".txt": true,
	".md":  true,
	".rst": true,
}

// PlainText extracts artifacts that are already text on disk.
type PlainText struct{}

// Supports reports whether the artifact has a plain-text extension.
func (PlainText) Supports(name string) bool {
	return plainTextExts[strings.ToLower(filepath.Ext(name))]
}

// Extract reads the file's contents. A file with embedded null bytes is
// not text no matter its extension and fails the read.
func (PlainText) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", cderrors.StorageError(cderrors.ErrCodeArtifactReadFailed,
			"failed to read artifact", err).
			WithDetail("path", path)
	}
	if bytes.Contains(data, []byte{0}) {
		return "", cderrors.StorageError(cderrors.ErrCodeArtifactReadFailed,
			"artifact is not valid text", nil).
			WithDetail("path", path)
	}
	return string(data), nil
}

// DefaultExtractors returns the extractors this module ships with.
func DefaultExtractors() []Extractor {
	return []Extractor{PlainText{}}
}

// ExtractorFor finds the first extractor that supports the named artifact.
func ExtractorFor(extractors []Extractor, name string) (Extractor, bool) {
	for _, ex := range extractors {
		if ex.Supports(name) {
			return ex, true
		}
	}
	return nil, false
}
