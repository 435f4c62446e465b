// Package knowledge manages the on-disk artifact tree, one folder per
// department. All writes go through the store so file names stay safe,
// duplicate names gain numeric suffixes instead of clobbering, and no path
// ever escapes the base dir. Folders that match no configured department are
// surfaced for the rebuild audit rather than silently indexed.
package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies how an artifact entered the knowledge tree.
type Kind string

const (
	// KindText is a knowledge note sent as chat text.
	KindText Kind = "text"
	// KindVoice is a transcribed voice note.
	KindVoice Kind = "voice"
	// KindDocument is an uploaded file stored verbatim.
	KindDocument Kind = "document"
)

// Valid reports whether k is a known artifact kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindVoice, KindDocument:
		return true
	}
	return false
}

// ParseKind parses a kind name from the ingestion surface.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown artifact kind %q (valid: %s, %s, %s)",
			s, KindText, KindVoice, KindDocument)
	}
	return k, nil
}

// Artifact is one file in a department's knowledge folder.
type Artifact struct {
	Name    string    // file name within the department folder
	RelPath string    // path relative to the base dir
	AbsPath string    // absolute path
	Size    int64     // size in bytes
	ModTime time.Time // last modification time
}

// MaxArtifactSize bounds what the index builder will extract (10MB).
// Larger files are skipped with a warning, never indexed partially.
const MaxArtifactSize = 10 * 1024 * 1024
