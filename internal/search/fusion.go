package search

import (
	"sort"

	"github.com/uqsoft/crossdock/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter, k=60 as
// used across the industry (Azure AI Search, OpenSearch).
const DefaultRRFConstant = 60

// Weights sets the relative importance of the two retrieval sides in
// hybrid fusion.
type Weights struct {
	// BM25 is the keyword weight (0-1, default 0.35).
	BM25 float64

	// Semantic is the vector weight (0-1, default 0.65).
	Semantic float64
}

// DefaultWeights returns the weights tuned for mixed prose queries.
func DefaultWeights() Weights {
	return Weights{BM25: 0.35, Semantic: 0.65}
}

// RRFFusion combines vector and keyword results with Reciprocal Rank
// Fusion:
//
//	score(d) = Σ weight_i / (k + rank_i)
//
// where rank_i is the 1-indexed position of d in list i. A document
// missing from one list contributes at rank max(len(vec), len(kw)) + 1
// for that side. Final scores are normalized so the best result is 1.
type RRFFusion struct {
	K int
}

// NewRRFFusion returns a fusion with the given smoothing constant;
// non-positive k falls back to the default.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

type fusedCandidate struct {
	chunk   store.ScoredChunk
	rrf     float64
	vecRank int
	kwRank  int
	kwScore float64
	inBoth  bool
}

// Fuse merges one department's vector and keyword result lists into a
// single ranking. The output is deterministic: ties break by presence
// in both lists, then keyword score, then chunk ID.
func (f *RRFFusion) Fuse(vector, keyword []store.ScoredChunk, weights Weights) []store.ScoredChunk {
	if len(vector) == 0 && len(keyword) == 0 {
		return []store.ScoredChunk{}
	}

	candidates := make(map[string]*fusedCandidate, len(vector)+len(keyword))
	get := func(sc store.ScoredChunk) *fusedCandidate {
		if c, ok := candidates[sc.Chunk.ID]; ok {
			return c
		}
		c := &fusedCandidate{chunk: sc}
		candidates[sc.Chunk.ID] = c
		return c
	}

	for rank, sc := range keyword {
		c := get(sc)
		c.kwRank = rank + 1
		c.kwScore = sc.Score
		c.rrf += weights.BM25 / float64(f.K+rank+1)
	}
	for rank, sc := range vector {
		c := get(sc)
		c.vecRank = rank + 1
		c.rrf += weights.Semantic / float64(f.K+rank+1)
		if c.kwRank > 0 {
			c.inBoth = true
		}
	}

	// Contributions for the side a document is missing from
	missingRank := max(len(vector), len(keyword)) + 1
	for _, c := range candidates {
		if c.kwRank == 0 {
			c.rrf += weights.BM25 / float64(f.K+missingRank)
		}
		if c.vecRank == 0 {
			c.rrf += weights.Semantic / float64(f.K+missingRank)
		}
	}

	ordered := make([]*fusedCandidate, 0, len(candidates))
	for _, c := range candidates {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.rrf != b.rrf {
			return a.rrf > b.rrf
		}
		if a.inBoth != b.inBoth {
			return a.inBoth
		}
		if a.kwScore != b.kwScore {
			return a.kwScore > b.kwScore
		}
		return a.chunk.Chunk.ID < b.chunk.Chunk.ID
	})

	maxScore := ordered[0].rrf
	results := make([]store.ScoredChunk, 0, len(ordered))
	for _, c := range ordered {
		score := c.rrf
		if maxScore > 0 {
			score = c.rrf / maxScore
		}
		results = append(results, store.ScoredChunk{Chunk: c.chunk.Chunk, Score: score})
	}
	return results
}
