package store

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/coder/hnsw"

	"github.com/uqsoft/crossdock/internal/chunk"
	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

// IndexBuilder accumulates chunks and their embeddings, then seals them
// into an immutable Index. A builder is not safe for concurrent use;
// each department build owns its builder.
type IndexBuilder struct {
	cfg     IndexConfig
	graph   *hnsw.Graph[int]
	chunks  []chunk.Chunk
	keyword *keywordIndex
	sealed  bool
}

// NewIndexBuilder creates a builder for one department index.
func NewIndexBuilder(cfg IndexConfig) (*IndexBuilder, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	b := &IndexBuilder{cfg: cfg, graph: graph}
	if cfg.Keyword {
		kw, err := newKeywordIndex()
		if err != nil {
			return nil, fmt.Errorf("create keyword index for %s: %w", cfg.Slug, err)
		}
		b.keyword = kw
	}
	return b, nil
}

// Add appends a batch of chunks with their embedding vectors. Graph keys
// are positions in the accumulated chunk slice, so chunks and vectors
// must stay paired.
func (b *IndexBuilder) Add(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) error {
	if b.sealed {
		return fmt.Errorf("index builder for %s is already sealed", b.cfg.Slug)
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, v := range vectors {
		if len(v) != b.cfg.Dimensions {
			return cderrors.New(cderrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embedding dimension mismatch for %s", b.cfg.Slug), nil).
				WithDetail("expected", strconv.Itoa(b.cfg.Dimensions)).
				WithDetail("got", strconv.Itoa(len(v)))
		}
	}

	start := len(b.chunks)
	for i := range chunks {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		b.graph.Add(hnsw.MakeNode(start+i, vec))
		b.chunks = append(b.chunks, chunks[i])
	}

	if b.keyword != nil {
		if err := b.keyword.add(start, chunks); err != nil {
			return fmt.Errorf("index keyword batch for %s: %w", b.cfg.Slug, err)
		}
	}
	return nil
}

// Seal finalizes the builder into an immutable Index. The builder must
// not be used afterwards.
func (b *IndexBuilder) Seal() (*Index, error) {
	if b.sealed {
		return nil, fmt.Errorf("index builder for %s is already sealed", b.cfg.Slug)
	}
	b.sealed = true

	idx := &Index{
		slug:    b.cfg.Slug,
		builtAt: time.Now().UTC(),
		dims:    b.cfg.Dimensions,
		graph:   b.graph,
		chunks:  b.chunks,
		keyword: b.keyword,
	}
	b.graph = nil
	b.chunks = nil
	b.keyword = nil
	return idx, nil
}

// Index is a sealed, read-only retrieval index for one department.
// An empty index (zero chunks) is valid and returns empty results.
type Index struct {
	slug    string
	builtAt time.Time
	dims    int
	graph   *hnsw.Graph[int]
	chunks  []chunk.Chunk
	keyword *keywordIndex
}

// Slug returns the department the index was built for.
func (idx *Index) Slug() string { return idx.slug }

// BuiltAt returns when the index was sealed.
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// Dimensions returns the embedding vector size the index expects.
func (idx *Index) Dimensions() int { return idx.dims }

// ChunkCount returns the number of chunks in the index.
func (idx *Index) ChunkCount() int { return len(idx.chunks) }

// HasKeyword reports whether the index carries a BM25 side.
func (idx *Index) HasKeyword() bool { return idx.keyword != nil }

// SearchVector returns the k chunks nearest to the query embedding,
// best first. Scores are cosine similarity mapped to 0..1.
func (idx *Index) SearchVector(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != idx.dims {
		return nil, cderrors.New(cderrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query dimension mismatch for %s", idx.slug), nil).
			WithDetail("expected", strconv.Itoa(idx.dims)).
			WithDetail("got", strconv.Itoa(len(query)))
	}
	if k <= 0 || idx.graph.Len() == 0 {
		return []ScoredChunk{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	nodes := idx.graph.Search(normalized, k)
	results := make([]ScoredChunk, 0, len(nodes))
	for _, node := range nodes {
		if node.Key < 0 || node.Key >= len(idx.chunks) {
			continue
		}
		distance := idx.graph.Distance(normalized, node.Value)
		results = append(results, ScoredChunk{
			Chunk: idx.chunks[node.Key],
			Score: distanceToScore(distance),
		})
	}
	return results, nil
}

// SearchKeyword returns the k best BM25 matches for the query, best
// first. The index must have been built with Keyword enabled.
func (idx *Index) SearchKeyword(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if idx.keyword == nil {
		return nil, fmt.Errorf("keyword search not enabled for %s index", idx.slug)
	}
	if k <= 0 {
		return []ScoredChunk{}, nil
	}

	hits, err := idx.keyword.search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search in %s: %w", idx.slug, err)
	}

	results := make([]ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if hit.pos < 0 || hit.pos >= len(idx.chunks) {
			continue
		}
		results = append(results, ScoredChunk{
			Chunk: idx.chunks[hit.pos],
			Score: hit.score,
		})
	}
	return results, nil
}

// Close releases the keyword side, if any. Readers that still hold the
// index must be done before calling it.
func (idx *Index) Close() error {
	if idx.keyword == nil {
		return nil
	}
	return idx.keyword.close()
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore maps cosine distance (0..2) to similarity (1..0).
func distanceToScore(distance float32) float64 {
	return float64(1.0 - distance/2.0)
}
