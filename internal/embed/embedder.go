package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrDimensionMismatch reports an embedding whose dimension does not match
// the configured model dimension. This is a fatal configuration error.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Config holds embedding configuration
type Config struct {
	Model      string // "text-embedding-3-small"
	APIKey     string
	BaseURL    string // Optional, defaults to OpenAI
	Dimensions int    // Expected vector dimension (default: 1536)
	CacheSize  int    // LRU cache size, default 10000
	MaxRetries int    // Bounded backoff retries per batch, default 3
}

// Embedder generates text embeddings
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts (up to 100)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int
}

// openaiEmbedder implements Embedder against an OpenAI-compatible API
type openaiEmbedder struct {
	config     Config
	httpClient *http.Client
	cache      *lru.Cache[string, []float32]
}

// NewEmbedder creates a new embedder
func NewEmbedder(config Config) (Embedder, error) {
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Dimensions == 0 {
		config.Dimensions = 1536
	}
	if config.CacheSize == 0 {
		config.CacheSize = 10000
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &openaiEmbedder{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		cache: cache,
	}, nil
}

// Embed generates embedding for a single text
func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *openaiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > 100 {
		return nil, fmt.Errorf("batch size exceeds limit: %d > 100", len(texts))
	}

	// Check cache and collect uncached texts
	results := make([][]float32, len(texts))
	uncachedIndices := []int{}
	uncachedTexts := []string{}

	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			results[i] = cached
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	// Call API with exponential backoff
	var embeddings [][]float32
	var err error
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		embeddings, err = e.callAPI(ctx, uncachedTexts)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDimensionMismatch) || ctx.Err() != nil {
			break
		}

		if attempt < e.config.MaxRetries-1 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("embed batch after retries: %w", err)
	}

	// Cache and populate results
	for i, idx := range uncachedIndices {
		e.cache.Add(texts[idx], embeddings[i])
		results[idx] = embeddings[i]
	}

	return results, nil
}

// Dimensions returns the configured embedding dimension
func (e *openaiEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// callAPI calls the embeddings endpoint
func (e *openaiEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"model": e.config.Model,
		"input": texts,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range apiResp.Data {
		if item.Index >= len(embeddings) {
			return nil, fmt.Errorf("invalid index: %d", item.Index)
		}
		if len(item.Embedding) != e.config.Dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(item.Embedding), e.config.Dimensions)
		}
		embeddings[item.Index] = item.Embedding
	}

	return embeddings, nil
}
