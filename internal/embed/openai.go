package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

// OpenAI API constants
const (
	// DefaultOpenAIModel is the OpenAI embedding model
	DefaultOpenAIModel = string(openai.SmallEmbedding3)
)

// openaiModelDimensions maps known embedding models to their native
// dimensions. Unknown models require an explicit dimensions setting.
var openaiModelDimensions = map[string]int{
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
	string(openai.AdaEmbeddingV2):  1536,
}

// OpenAIConfig configures the OpenAI embedder
type OpenAIConfig struct {
	// APIKey authenticates against the OpenAI API (required)
	APIKey string

	// Model is the embedding model to use (default: text-embedding-3-small)
	Model string

	// Dimensions shortens output vectors (0 = model native;
	// only text-embedding-3-* models accept an override)
	Dimensions int

	// BatchSize for batch embedding requests (default: 32)
	BatchSize int

	// Timeout for a single API request (default: 60s)
	Timeout time.Duration
}

// OpenAIEmbedder generates embeddings using the OpenAI API.
type OpenAIEmbedder struct {
	client      *openai.Client
	modelName   string
	dims        int
	requestDims int // Dimensions request parameter, 0 = omit
	batchSize   int
	timeout     time.Duration

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates a new OpenAI embedder. The constructor performs
// no network calls; an invalid key surfaces on first embedding request.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, cderrors.ConfigError("openai requires an API key (set OPENAI_API_KEY)", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	native, known := openaiModelDimensions[cfg.Model]
	supportsOverride := strings.HasPrefix(cfg.Model, "text-embedding-3")

	dims := cfg.Dimensions
	requestDims := 0
	switch {
	case dims <= 0 && known:
		dims = native
	case dims <= 0:
		return nil, cderrors.ConfigError(
			fmt.Sprintf("unknown embedding model %q: set embeddings.dimensions explicitly", cfg.Model), nil)
	case known && dims != native:
		if !supportsOverride {
			return nil, cderrors.ConfigError(
				fmt.Sprintf("model %q does not support dimension overrides", cfg.Model), nil)
		}
		requestDims = dims
	case !known && supportsOverride:
		// Unreleased text-embedding-3 variant: shorten server-side.
		requestDims = dims
	}

	return &OpenAIEmbedder{
		client:      openai.NewClient(cfg.APIKey),
		modelName:   cfg.Model,
		dims:        dims,
		requestDims: requestDims,
		batchSize:   cfg.BatchSize,
		timeout:     cfg.Timeout,
	}, nil
}

// Embed generates a document embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return embeddings[0], nil
}

// EmbedQuery generates a query embedding. OpenAI embedding models have no
// retrieval task types, so queries embed the same way as documents.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

// EmbedBatch generates document embeddings for multiple texts
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Track which indices need API calls vs zero vectors
	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	if len(nonEmpty) == 0 {
		return results, nil
	}

	for start := 0; start < len(nonEmpty); start += e.batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.batchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.embedTexts(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// embedTexts runs one CreateEmbeddings call. Results are placed by the Index
// field of the response rather than position, as the API documents order by
// index.
func (e *OpenAIEmbedder) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.modelName),
	}
	if e.requestDims > 0 {
		req.Dimensions = e.requestDims
	}

	resp, err := e.client.CreateEmbeddings(timeoutCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, cderrors.ProviderError("openai request timed out", err)
		}
		// Client-side rejections will not succeed on retry.
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) &&
			apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return nil, cderrors.ConfigError("openai rejected the request", err)
		}
		return nil, cderrors.ProviderError("openai embedding failed", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, cderrors.ProviderError(
			fmt.Sprintf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts)), nil)
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, cderrors.ProviderError(
				fmt.Sprintf("openai returned embedding with index %d out of range", item.Index), nil)
		}
		embeddings[item.Index] = normalizeVector(item.Embedding)
	}

	for i, emb := range embeddings {
		if emb == nil {
			return nil, cderrors.ProviderError(fmt.Sprintf("openai returned no embedding for text %d", i), nil)
		}
	}

	return embeddings, nil
}

// Dimensions returns the embedding dimension
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *OpenAIEmbedder) ModelName() string {
	return e.modelName
}

// Available reports readiness. Key validity surfaces on the first call.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
