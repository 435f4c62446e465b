package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk size defaults, in runes. Tuned for prose knowledge articles where
// a chunk should hold a few paragraphs of context around any sentence.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk is a retrievable unit of knowledge text.
type Chunk struct {
	ID         string // Stable short hash, see NewID
	Department string // Department slug the chunk belongs to
	Artifact   string // File name within the department folder
	Seq        int    // Position of the chunk within the artifact
	Text       string // Chunk text, trimmed
}

// Splitter splits artifact text into chunk-sized pieces.
type Splitter interface {
	Split(text string) []string
}

// NewID generates a stable chunk identifier from provenance and content.
// Content is hashed first so renames produce new IDs without exposing text.
func NewID(department, artifact string, seq int, text string) string {
	contentHash := sha256.Sum256([]byte(text))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]

	input := fmt.Sprintf("%s/%s#%d:%s", department, artifact, seq, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
