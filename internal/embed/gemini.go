package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	cderrors "github.com/uqsoft/crossdock/internal/errors"
)

// Gemini API constants
const (
	// DefaultGeminiModel is the Gemini embedding model
	DefaultGeminiModel = "gemini-embedding-001"

	// DefaultGeminiDimensions is the native gemini-embedding-001 dimension
	DefaultGeminiDimensions = 3072

	// geminiMaxBatch is the API limit on contents per EmbedContent call
	geminiMaxBatch = 100
)

// Gemini task types. Document and query embeddings live in the same space
// but are optimized for their side of retrieval.
const (
	geminiTaskDocument = "RETRIEVAL_DOCUMENT"
	geminiTaskQuery    = "RETRIEVAL_QUERY"
)

// GeminiConfig configures the Gemini embedder
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API (required)
	APIKey string

	// Model is the embedding model to use (default: gemini-embedding-001)
	Model string

	// Dimensions truncates output vectors via MRL (0 = native 3072)
	Dimensions int

	// BatchSize for batch embedding requests (default: 32, max 100)
	BatchSize int

	// Timeout for a single API request (default: 60s)
	Timeout time.Duration
}

// GeminiEmbedder generates embeddings using the Gemini API.
// This is the provider the production deployment runs on.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dims      int
	batchSize int
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a new Gemini embedder. The constructor performs
// no network calls; an invalid key surfaces on first embedding request.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, cderrors.ConfigError("gemini requires an API key (set GEMINI_API_KEY)", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > geminiMaxBatch {
		cfg.BatchSize = geminiMaxBatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultGeminiDimensions
	}

	return &GeminiEmbedder{
		client:    client,
		modelName: cfg.Model,
		dims:      dims,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
	}, nil
}

// Embed generates a document embedding for a single text
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embedOne(ctx, text, geminiTaskDocument)
}

// EmbedQuery generates a query embedding for a search string
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embedOne(ctx, text, geminiTaskQuery)
}

func (e *GeminiEmbedder) embedOne(ctx context.Context, text, taskType string) ([]float32, error) {
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

	embeddings, err := e.embedTexts(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}

	return embeddings[0], nil
}

// EmbedBatch generates document embeddings for multiple texts
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

		embeddings, err := e.embedTexts(ctx, batchTexts, geminiTaskDocument)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// embedTexts runs one EmbedContent call for up to geminiMaxBatch texts.
// Vectors are normalized locally: the API returns unnormalized vectors for
// MRL-truncated dimensions.
func (e *GeminiEmbedder) embedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	embedCfg := &genai.EmbedContentConfig{TaskType: taskType}
	if e.dims != DefaultGeminiDimensions {
		embedCfg.OutputDimensionality = genai.Ptr(int32(e.dims))
	}

	resp, err := e.client.Models.EmbedContent(timeoutCtx, e.modelName, contents, embedCfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, cderrors.ProviderError("gemini request timed out", err)
		}
		return nil, cderrors.ProviderError("gemini embedding failed", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, cderrors.ProviderError(
			fmt.Sprintf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(texts)), nil)
	}

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, cderrors.ProviderError(fmt.Sprintf("gemini returned empty embedding at index %d", i), nil)
		}
		embeddings[i] = normalizeVector(emb.Values)
	}

	return embeddings, nil
}

// Dimensions returns the embedding dimension
func (e *GeminiEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *GeminiEmbedder) ModelName() string {
	return e.modelName
}

// Available reports readiness. There is no cheap liveness endpoint, so this
// only reflects whether the embedder has been closed; a bad key surfaces as
// an error on the first embedding call.
func (e *GeminiEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources
func (e *GeminiEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
