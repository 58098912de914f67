package retriever

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"sift/internal/corpus"
	"sift/internal/embed"
	"sift/internal/logging"
	"sift/internal/vectorindex"
)

// ErrRetrievalFailed reports that the embedding collaborator stayed
// unavailable through every retry. Callers must distinguish this from "no
// matches", which is an empty result with a nil error.
var ErrRetrievalFailed = errors.New("retrieval failed")

// Config holds retrieval configuration
type Config struct {
	TopK       int           // Default result count (default: 5)
	MaxRetries int           // Embedding retry bound (default: 3)
	RetryDelay time.Duration // Base backoff delay (default: 200ms)
}

// Retriever turns a natural-language query into ranked, deduplicated units
type Retriever struct {
	config   Config
	embedder embed.Embedder
	index    vectorindex.Index
	catalog  *corpus.Catalog
	logger   logging.Logger
}

// New creates a retriever over the given index and unit catalog.
func New(config Config, embedder embed.Embedder, index vectorindex.Index, catalog *corpus.Catalog, logger logging.Logger) *Retriever {
	if config.TopK == 0 {
		config.TopK = 5
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 200 * time.Millisecond
	}

	return &Retriever{
		config:   config,
		embedder: embedder,
		index:    index,
		catalog:  catalog,
		logger:   logging.OrNop(logger),
	}
}

// Search embeds the query, runs a top-k similarity search, and maps the hits
// back to full units, deduplicated by id and ordered by non-increasing score.
func (r *Retriever) Search(ctx context.Context, query string, topK int, filters map[string]string) ([]corpus.Unit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if topK <= 0 {
		topK = r.config.TopK
	}

	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.index.Search(ctx, vector, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	seen := make(map[string]struct{}, len(matches))
	units := make([]corpus.Unit, 0, len(matches))
	for _, match := range matches {
		if _, dup := seen[match.ID]; dup {
			continue
		}
		seen[match.ID] = struct{}{}

		unit, ok := r.catalog.Get(match.ID)
		if !ok {
			r.logger.Warn("index hit %s missing from catalog", match.ID)
			continue
		}
		units = append(units, unit)
	}

	return units, nil
}

// embedQuery retries transient embedder faults with exponential backoff and
// surfaces ErrRetrievalFailed once the bound is exhausted.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		vector, err := r.embedder.Embed(ctx, query)
		if err == nil {
			return vector, nil
		}
		lastErr = err
		if errors.Is(err, embed.ErrDimensionMismatch) || ctx.Err() != nil {
			break
		}

		if attempt < r.config.MaxRetries-1 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * r.config.RetryDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("%w: embed query after %d attempts: %v", ErrRetrievalFailed, r.config.MaxRetries, lastErr)
}

// FormatResults formats retrieved units for reasoning-collaborator consumption
func (r *Retriever) FormatResults(units []corpus.Unit) string {
	if len(units) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	for i, unit := range units {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		sb.WriteString(fmt.Sprintf("Unit %s (%s, lines %s-%s)\n",
			unit.ID, unit.Metadata["source"], unit.Metadata["start_line"], unit.Metadata["end_line"]))
		sb.WriteString("```" + unit.Metadata["language"] + "\n")
		sb.WriteString(strings.TrimSpace(unit.Text))
		sb.WriteString("\n```\n")
	}

	return sb.String()
}
