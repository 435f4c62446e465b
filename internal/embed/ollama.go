package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

// OllamaEmbedder talks to a local Ollama daemon over its HTTP API. No
// SDK: the two endpoints it needs (/api/tags, /api/embed) are stable and
// a client dependency would bring along the whole generation surface.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	mu       sync.RWMutex
	closed   bool
	lastCall time.Time
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to the daemon, resolves which installed
// model to use, and probes the embedding dimension when the config does
// not pin one. The probe runs under the cold timeout: a first request
// may trigger a model load that takes far longer than a connect.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = FallbackOllamaModels
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = OllamaConnectTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	e := &OllamaEmbedder{
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}
	e.transport = e.newTransport(false)
	// No http.Client.Timeout: it would override the per-request context
	// deadlines that implement warm/cold behavior.
	e.client = &http.Client{Transport: e.transport}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, DefaultColdTimeout)
		defer cancel()

		model, err := e.resolveModel(probeCtx)
		if err != nil {
			e.transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to connect to Ollama or find model: %w", err)
		}
		e.modelName = model

		if cfg.Dimensions == 0 {
			dims, err := e.probeDimensions(probeCtx)
			if err != nil {
				e.transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = dims
		}
	}

	if e.dims == 0 {
		e.dims = DefaultOllamaDimensions
	}
	return e, nil
}

// newTransport builds the pooled transport. Idle connections expire
// after 10s rather than the usual 90s: CLI runs are short-lived and
// sockets should drain quickly after Ctrl+C.
func (e *OllamaEmbedder) newTransport(closing bool) *http.Transport {
	return &http.Transport{
		MaxIdleConns:        e.config.PoolSize,
		MaxIdleConnsPerHost: e.config.PoolSize,
		MaxConnsPerHost:     e.config.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   closing,
	}
}

func (e *OllamaEmbedder) guard() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

// listModels fetches the daemon's installed models.
func (e *OllamaEmbedder) listModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var list OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return list.Models, nil
}

// resolveModel picks the first installed model matching the configured
// one or a fallback. Matching ignores case and the :tag suffix, so
// config "bge-m3" finds the installed "bge-m3:latest".
func (e *OllamaEmbedder) resolveModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	installed := make(map[string]string)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		installed[name] = m.Name
		if base := strings.Split(name, ":")[0]; installed[base] == "" {
			installed[base] = m.Name
		}
	}

	candidates := append([]string{e.config.Model}, e.config.FallbackModels...)
	for _, want := range candidates {
		name := strings.ToLower(want)
		if actual := installed[name]; actual != "" {
			return actual, nil
		}
		if actual := installed[strings.Split(name, ":")[0]]; actual != "" {
			return actual, nil
		}
	}

	return "", fmt.Errorf("no embedding model available (tried %s and %v)", e.config.Model, e.config.FallbackModels)
}

// probeDimensions embeds a throwaway string and measures the result.
func (e *OllamaEmbedder) probeDimensions(ctx context.Context) (int, error) {
	vecs, err := e.requestEmbeddings(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(vecs[0]), nil
}

// taskPrefixes returns the document and query markers the resolved model
// expects. The nomic-embed family is trained with task prefixes; other
// models take raw text.
func (e *OllamaEmbedder) taskPrefixes() (doc, query string) {
	base := strings.Split(strings.ToLower(e.modelName), ":")[0]
	if strings.Contains(base, "nomic-embed") {
		return "search_document: ", "search_query: "
	}
	return "", ""
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	doc, _ := e.taskPrefixes()
	return e.embedOne(ctx, text, doc)
}

func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	_, query := e.taskPrefixes()
	return e.embedOne(ctx, text, query)
}

func (e *OllamaEmbedder) embedOne(ctx context.Context, text, prefix string) ([]float32, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	vecs, err := e.embed(ctx, []string{prefix + text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, cderrors.ProviderError("no embedding returned", nil)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts through the daemon's batch endpoint in
// config-sized slices. Blank texts get zero vectors without an API call,
// and every vector comes back in its input slot.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	doc, _ := e.taskPrefixes()
	results := make([][]float32, len(texts))
	slots := make([]int, 0, len(texts))
	pending := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		slots = append(slots, i)
		pending = append(pending, doc+text)
	}
	if len(pending) == 0 {
		return results, nil
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.config.BatchSize, len(pending))
		vecs, err := e.embed(ctx, pending[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		for i, v := range vecs {
			results[slots[start+i]] = v
		}

		if e.config.ProgressFunc != nil {
			e.config.ProgressFunc(end, len(pending))
		}
	}

	return results, nil
}

// timeout picks the per-request deadline. Ollama unloads models after
// about five minutes idle; the next request pays the load cost and gets
// the long cold timeout.
func (e *OllamaEmbedder) timeout() time.Duration {
	e.mu.RLock()
	last := e.lastCall
	e.mu.RUnlock()

	if last.IsZero() || time.Since(last) > ollamaModelUnloadThreshold {
		return DefaultColdTimeout
	}
	return e.config.Timeout
}

// embed runs one embedding request under the warm/cold deadline. A
// deadline hit while the parent context is still live surfaces as a
// retryable provider error for the retry layer.
func (e *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	vecs, err := e.requestEmbeddings(reqCtx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, cderrors.ProviderError("embedding request timed out", err)
		}
		return nil, err
	}

	e.mu.Lock()
	e.lastCall = time.Now()
	e.mu.Unlock()
	return vecs, nil
}

// requestEmbeddings performs one /api/embed call. The HTTP exchange runs
// in its own goroutine with the caller selecting on the context, so
// Ctrl+C tears the request down instead of waiting out the deadline.
func (e *OllamaEmbedder) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	// The API takes a bare string or an array.
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	body, err := json.Marshal(OllamaEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	type outcome struct {
		vecs [][]float32
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		resp, err := e.client.Do(req)
		if err != nil {
			done <- outcome{nil, cderrors.New(cderrors.ErrCodeEmbedUnavailable, "ollama request failed", err)}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			done <- outcome{nil, cderrors.ProviderError(
				fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, string(respBody)), nil)}
			return
		}

		var parsed OllamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			done <- outcome{nil, cderrors.ProviderError("failed to decode response", err)}
			return
		}

		vecs := make([][]float32, len(parsed.Embeddings))
		for i, raw := range parsed.Embeddings {
			v := make([]float32, len(raw))
			for j, f := range raw {
				v[j] = float32(f)
			}
			vecs[i] = normalizeVector(v)
		}
		done <- outcome{vecs, nil}
	}()

	select {
	case <-ctx.Done():
		// Replace the transport to cancel the pending read, then give
		// the goroutine a moment to notice.
		e.resetTransport()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
		return nil, ctx.Err()
	case r := <-done:
		return r.vecs, r.err
	}
}

// resetTransport swaps in a fresh keep-alive-free transport, failing any
// in-flight request fast. CloseIdleConnections alone leaves active reads
// blocked.
func (e *OllamaEmbedder) resetTransport() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transport == nil {
		return
	}
	e.transport.CloseIdleConnections()
	e.transport = e.newTransport(true)
	e.client.Transport = e.transport
}

func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Available reports whether the daemon answers and still has the model.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.guard() != nil {
		return false
	}

	models, err := e.listModels(ctx)
	if err != nil {
		return false
	}

	want := strings.ToLower(e.modelName)
	for _, m := range models {
		have := strings.ToLower(m.Name)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}

func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}
