package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/uqsoft/crossdock/internal/index"
	"github.com/uqsoft/crossdock/internal/store"
)

// DefaultDedupPrefix is how many leading characters of trimmed chunk
// text identify a near-duplicate across departments.
const DefaultDedupPrefix = 200

// MergerConfig tunes cross-department merging.
type MergerConfig struct {
	// DedupPrefix is the near-duplicate key length. Zero means default.
	DedupPrefix int

	// Hybrid fuses keyword results into each department's candidates.
	Hybrid      bool
	Weights     Weights
	RRFConstant int
}

func (c MergerConfig) withDefaults() MergerConfig {
	if c.DedupPrefix <= 0 {
		c.DedupPrefix = DefaultDedupPrefix
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	return c
}

// Merger runs one query across every department in scope and merges
// the per-department candidates into a single ranked list.
type Merger struct {
	cfg    MergerConfig
	fusion *RRFFusion
}

// NewMerger returns a merger with the given tuning.
func NewMerger(cfg MergerConfig) *Merger {
	cfg = cfg.withDefaults()
	return &Merger{cfg: cfg, fusion: NewRRFFusion(cfg.RRFConstant)}
}

// Search retrieves up to topK candidates from each in-scope department
// in parallel, merges them by score descending, collapses
// near-duplicates keeping the higher-scoring instance, and truncates
// to topK. Ties keep insertion order (scope order, then department
// rank), so identical inputs always produce identical output. Slugs in
// scope but absent from the snapshot are skipped with a warning.
func (m *Merger) Search(ctx context.Context, snap *index.Snapshot, scope []string, query string, queryVec []float32, topK int) ([]store.ScoredChunk, error) {
	if topK <= 0 || len(scope) == 0 {
		return []store.ScoredChunk{}, nil
	}

	targets := make([]*store.Index, 0, len(scope))
	for _, slug := range scope {
		idx, ok := snap.Index(slug)
		if !ok {
			slog.Warn("scope includes department absent from snapshot",
				slog.String("department", slug))
			continue
		}
		targets = append(targets, idx)
	}
	if len(targets) == 0 {
		return []store.ScoredChunk{}, nil
	}

	perDept := make([][]store.ScoredChunk, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, idx := range targets {
		g.Go(func() error {
			candidates, err := m.searchOne(gctx, idx, query, queryVec, topK)
			if err != nil {
				return err
			}
			perDept[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]store.ScoredChunk, 0, len(targets)*topK)
	for _, candidates := range perDept {
		merged = append(merged, candidates...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	deduped := m.dedupe(merged)
	if len(deduped) > topK {
		deduped = deduped[:topK]
	}
	return deduped, nil
}

// searchOne retrieves one department's candidates, fusing in keyword
// results when hybrid mode is on and the index carries a keyword side.
func (m *Merger) searchOne(ctx context.Context, idx *store.Index, query string, queryVec []float32, topK int) ([]store.ScoredChunk, error) {
	vector, err := idx.SearchVector(ctx, queryVec, topK)
	if err != nil {
		return nil, err
	}
	if !m.cfg.Hybrid || !idx.HasKeyword() {
		return vector, nil
	}

	keyword, err := idx.SearchKeyword(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	fused := m.fusion.Fuse(vector, keyword, m.cfg.Weights)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// dedupe collapses near-duplicates. The input is sorted by score
// descending, so the first occurrence of a key is the one to keep.
func (m *Merger) dedupe(candidates []store.ScoredChunk) []store.ScoredChunk {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]store.ScoredChunk, 0, len(candidates))
	for _, sc := range candidates {
		key := dedupeKey(sc.Chunk.Text, m.cfg.DedupPrefix)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sc)
	}
	return out
}

// dedupeKey is the first prefixLen characters of the trimmed text.
func dedupeKey(text string, prefixLen int) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) > prefixLen {
		return string(runes[:prefixLen])
	}
	return trimmed
}
