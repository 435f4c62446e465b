package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder hashes text into a fixed 256-dim vector. No network, no
// API key, fully deterministic: the same text always lands on the same
// vector, which is what the offline tests and the no-provider fallback
// need. Semantic quality is what a hash gives you.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// stopWords are high-frequency function words with no retrieval signal.
// The knowledge base mixes Russian and English prose, so both are covered.
var stopWords = map[string]bool{
	// Russian
	"и": true, "в": true, "на": true, "не": true, "по": true,
	"для": true, "что": true, "с": true, "как": true, "это": true,
	"или": true, "от": true, "до": true, "при": true, "из": true,
	"к": true, "у": true, "о": true, "же": true, "за": true,
	// English
	"the": true, "a": true, "an": true, "of": true, "to": true,
	"and": true, "in": true, "for": true, "on": true, "is": true,
	"are": true, "was": true, "be": true, "it": true, "that": true,
	"this": true, "with": true, "as": true, "at": true, "by": true,
}

// Whole tokens carry most of the signal; rune trigrams catch morphology
// shared between inflected forms.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches letter and digit sequences in any script.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		// Empty input gets a zero vector, not an error.
		return make([]float32, StaticDimensions), nil
	}

	return normalizeVector(e.hashVector(trimmed)), nil
}

// EmbedQuery embeds a search query. The hash scheme has no notion of
// task type, so queries embed the same way as documents.
func (e *StaticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available reports whether the embedder accepts work. There is no
// backend to probe, only the closed flag.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *StaticEmbedder) guard() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

// hashVector accumulates token and trigram contributions into the raw
// (unnormalized) vector.
func (e *StaticEmbedder) hashVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range filterStopWords(tokenize(text)) {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}
	for _, ngram := range extractNgrams(text, ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
	}

	return vector
}

// tokenize splits text into lowercased word tokens.
func tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}

func filterStopWords(tokens []string) []string {
	var kept []string
	for _, t := range tokens {
		if !stopWords[t] {
			kept = append(kept, t)
		}
	}
	return kept
}

// extractNgrams lowercases text, strips everything but letters and
// digits, and slides an n-rune window over what is left. Windows are cut
// in rune space so multi-byte scripts do not produce broken fragments.
func extractNgrams(text string, n int) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	runes := []rune(b.String())
	if len(runes) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
