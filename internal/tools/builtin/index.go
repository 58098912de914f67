package builtin

import (
	"context"
	"fmt"

	"sift/internal/corpus"
	"sift/internal/ports"
)

// IndexerFactory builds an indexer rooted at a corpus path.
type IndexerFactory func(corpusPath string) (*corpus.Indexer, error)

// indexTool runs the chunk-embed-upsert pipeline over a corpus snapshot.
type indexTool struct {
	factory IndexerFactory
}

// NewIndex creates the index tool.
func NewIndex(factory IndexerFactory) ports.ToolExecutor {
	return &indexTool{factory: factory}
}

func (t *indexTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	corpusPath, _ := call.Arguments["corpus_path"].(string)
	if corpusPath == "" {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("missing or invalid 'corpus_path' parameter"),
		}, nil
	}

	indexer, err := t.factory(corpusPath)
	if err != nil {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("create indexer: %w", err),
		}, nil
	}

	stats, err := indexer.Index(ctx)
	if err != nil {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("index corpus: %w", err),
		}, nil
	}

	content := fmt.Sprintf("Indexed %d/%d files into %d units (%d truncated, %d errors).",
		stats.IndexedFiles, stats.TotalFiles, stats.TotalUnits, stats.TruncatedUnits, stats.ErrorFiles)

	return &ports.ToolResult{
		CallID:  call.ID,
		Content: content,
		Metadata: map[string]any{
			"total_files":     stats.TotalFiles,
			"indexed_files":   stats.IndexedFiles,
			"total_units":     stats.TotalUnits,
			"truncated_units": stats.TruncatedUnits,
			"error_files":     stats.ErrorFiles,
		},
	}, nil
}

func (t *indexTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "index",
		Description: "Chunk and embed a corpus snapshot into the vector index. Idempotent over an unchanged snapshot.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"corpus_path": {
					Type:        "string",
					Description: "Root directory of the corpus to index",
				},
			},
			Required: []string{"corpus_path"},
		},
	}
}

func (t *indexTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:     "index",
		Version:  "1.0.0",
		Category: "indexing",
		Tags:     []string{"corpus", "pipeline"},
	}
}
