// Package store provides the in-memory retrieval index for a single
// department: an HNSW graph over chunk embeddings, with an optional
// Bleve keyword side when hybrid retrieval is enabled.
//
// Indexes are built once and sealed. A sealed Index is immutable and
// safe for concurrent readers without locking; replacing an index means
// building a new one and swapping the reference.
package store

import (
	"fmt"

	"github.com/uqsoft/crossdock/internal/chunk"
)

// Default HNSW graph parameters.
const (
	DefaultM        = 16
	DefaultEfSearch = 20
)

// ScoredChunk is a chunk with its retrieval score. Vector scores are
// cosine similarity mapped to 0..1; keyword scores are raw BM25 values.
type ScoredChunk struct {
	Chunk chunk.Chunk
	Score float64
}

// IndexConfig describes the index to build for one department.
type IndexConfig struct {
	// Slug is the department the index belongs to.
	Slug string

	// Dimensions is the embedding vector size. All vectors added to the
	// index must match it exactly.
	Dimensions int

	// Keyword enables the BM25 side used for hybrid retrieval.
	Keyword bool

	// M and EfSearch tune the HNSW graph. Zero means default.
	M        int
	EfSearch int
}

func (c IndexConfig) withDefaults() IndexConfig {
	if c.M == 0 {
		c.M = DefaultM
	}
	if c.EfSearch == 0 {
		c.EfSearch = DefaultEfSearch
	}
	return c
}

func (c IndexConfig) validate() error {
	if c.Slug == "" {
		return fmt.Errorf("index config: empty department slug")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("index config: dimensions must be positive, got %d", c.Dimensions)
	}
	return nil
}
