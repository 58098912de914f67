package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// localEmbedder produces deterministic embeddings without a network
// collaborator. Tokens are hashed into buckets and the resulting vector is
// L2-normalized, so identical text always maps to the identical vector and
// similar token sets land near each other. It backs offline runs and tests.
type localEmbedder struct {
	dimensions int
}

// NewLocalEmbedder creates a deterministic hash-based embedder.
func NewLocalEmbedder(dimensions int) Embedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &localEmbedder{dimensions: dimensions}
}

func (e *localEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		bucket := int(binary.BigEndian.Uint32(sum[:4])) % e.dimensions
		if bucket < 0 {
			bucket += e.dimensions
		}
		// Sign bit from the hash spreads tokens across both directions
		if sum[4]&1 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}

func (e *localEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *localEmbedder) Dimensions() int { return e.dimensions }
