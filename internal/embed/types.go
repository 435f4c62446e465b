// Package embed generates vector embeddings for knowledge chunks and queries.
//
// Four providers are supported: Gemini (the default when GEMINI_API_KEY is
// set), OpenAI, a local Ollama daemon, and a deterministic hash-based
// fallback that needs no network at all. Remote providers are wrapped with
// retry and LRU caching by the factory; see New.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for a single embedding request
	DefaultTimeout = 60 * time.Second

	// DefaultColdTimeout is the timeout for the first Ollama request, when the
	// daemon may still be loading the model into memory
	DefaultColdTimeout = 180 * time.Second
)

// Static embedder constants
const (
	// StaticDimensions is the embedding dimension for the static embedder
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
//
// Embed and EmbedBatch are for knowledge artifacts at index time;
// EmbedQuery is for user questions at search time. Providers that
// distinguish retrieval task types (Gemini, nomic models on Ollama)
// produce different vectors for the two sides; for the rest EmbedQuery
// is identical to Embed.
type Embedder interface {
	// Embed generates a document embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates document embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates a query embedding for a search string
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
