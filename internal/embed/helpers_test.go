package embed

import (
	"context"
	"math"
	"sync"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// mockEmbedder counts calls and can be programmed to fail. Used by the
// cache and retry decorator tests.
type mockEmbedder struct {
	mu          sync.Mutex
	dims        int
	embedCalls  int
	batchCalls  int
	queryCalls  int
	closeCalls  int
	failWith    error
	failTimes   int // fail this many calls, then succeed
	failedSoFar int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) nextErr() error {
	if m.failWith == nil {
		return nil
	}
	if m.failTimes > 0 && m.failedSoFar >= m.failTimes {
		return nil
	}
	m.failedSoFar++
	return m.failWith
}

func (m *mockEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, m.dims)
	for i := range vec {
		vec[i] = float32(len(text)%7) + float32(i)
	}
	return normalizeVector(vec)
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.vectorFor(text)
	}
	return results, nil
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	// Query vectors differ from document vectors so cache tests can tell
	// the two apart.
	vec := m.vectorFor(text)
	vec[0] = -vec[0]
	return vec, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }

func (m *mockEmbedder) ModelName() string { return "mock-model" }

func (m *mockEmbedder) Available(_ context.Context) bool { return true }

func (m *mockEmbedder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockEmbedder) calls() (embed, batch, query int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls, m.batchCalls, m.queryCalls
}
