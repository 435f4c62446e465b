package chunk

import (
	"path/filepath"
	"strings"
)

// ForArtifact returns the splitter for an artifact name, chosen by
// extension. Markdown gets header-aware splitting; everything else is
// treated as plain prose.
func ForArtifact(name string) Splitter {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdx":
		return NewMarkdownSplitter()
	default:
		return NewSentenceSplitter()
	}
}

// FromArtifact splits artifact text and assembles chunks carrying their
// provenance. Empty or whitespace-only text yields no chunks.
func FromArtifact(department, artifact, text string) []Chunk {
	pieces := ForArtifact(artifact).Split(text)

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, Chunk{
			ID:         NewID(department, artifact, i, piece),
			Department: department,
			Artifact:   artifact,
			Seq:        i,
			Text:       piece,
		})
	}
	return chunks
}
