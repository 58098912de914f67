package vectorindex

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemConfig holds persistent store configuration
type ChromemConfig struct {
	PersistPath string // Directory to persist data; empty means in-memory
	Collection  string // Collection name (corpus-specific)

	// Embed supplies query/document embeddings when chromem needs to compute
	// one itself. Optional; all core paths pass precomputed vectors.
	Embed func(ctx context.Context, text string) ([]float32, error)
}

// chromemIndex implements Index on top of chromem-go, giving the engine an
// on-disk collection whose format stays opaque behind the Index contract.
type chromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
}

// NewChromemIndex creates a chromem-go backed index.
func NewChromemIndex(config ChromemConfig) (Index, error) {
	if config.Collection == "" {
		config.Collection = "default"
	}

	var db *chromem.DB
	var err error

	if config.PersistPath != "" {
		persistFile := filepath.Join(config.PersistPath, "chromem.gob")
		db, err = chromem.NewPersistentDB(persistFile, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	var embeddingFunc chromem.EmbeddingFunc
	if config.Embed != nil {
		embeddingFunc = func(ctx context.Context, text string) ([]float32, error) {
			return config.Embed(ctx, text)
		}
	} else {
		embeddingFunc = func(context.Context, string) ([]float32, error) {
			return nil, fmt.Errorf("no embedder configured for collection %q", config.Collection)
		}
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &chromemIndex{
		db:         db,
		collection: collection,
		config:     config,
	}, nil
}

func (ix *chromemIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("empty id")
	}
	err := ix.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Embedding: vector,
		Metadata:  metadata,
		Content:   metadata["source"],
	})
	if err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	return nil
}

func (ix *chromemIndex) Remove(ctx context.Context, id string) error {
	if err := ix.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (ix *chromemIndex) Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	// chromem rejects nResults above the collection size
	count := ix.collection.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := ix.collection.QueryEmbedding(ctx, vector, topK, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{ID: r.ID, Score: r.Similarity})
	}
	return matches, nil
}

func (ix *chromemIndex) Count() int {
	return ix.collection.Count()
}
