package builtin

import (
	"context"
	"errors"
	"fmt"

	"sift/internal/corpus"
	"sift/internal/ports"
	"sift/internal/retriever"
)

// searchTool exposes the retriever as the `search` tool.
type searchTool struct {
	retriever *retriever.Retriever
}

// NewSearch creates the search tool.
func NewSearch(r *retriever.Retriever) ports.ToolExecutor {
	return &searchTool{retriever: r}
}

func (t *searchTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query, _ := call.Arguments["query"].(string)
	if query == "" {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("missing or invalid 'query' parameter"),
		}, nil
	}

	topK := 0
	switch v := call.Arguments["top_k"].(type) {
	case int:
		topK = v
	case float64:
		topK = int(v)
	}

	var filters map[string]string
	if raw, ok := call.Arguments["filters"].(map[string]any); ok {
		filters = make(map[string]string, len(raw))
		for key, value := range raw {
			if s, ok := value.(string); ok {
				filters[key] = s
			}
		}
	}

	units, err := t.retriever.Search(ctx, query, topK, filters)
	if err != nil {
		// Retrieval failure is not "no matches"; surface it so the caller
		// can record a failed finding.
		if errors.Is(err, retriever.ErrRetrievalFailed) {
			return &ports.ToolResult{
				CallID: call.ID,
				Error:  err,
			}, nil
		}
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("search failed: %w", err),
		}, nil
	}

	unitIDs := make([]string, len(units))
	for i, unit := range units {
		unitIDs[i] = unit.ID
	}

	return &ports.ToolResult{
		CallID:  call.ID,
		Content: t.retriever.FormatResults(units),
		Metadata: map[string]any{
			"unit_ids":     unitIDs,
			"result_count": len(units),
		},
	}, nil
}

func (t *searchTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "search",
		Description: "Search the indexed corpus for relevant units using a natural language query. Returns ranked excerpts with unit ids and source locations.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {
					Type:        "string",
					Description: "Natural language query (e.g., 'where is retry logic implemented')",
				},
				"top_k": {
					Type:        "integer",
					Description: "Maximum number of units to return (optional)",
				},
				"filters": {
					Type:        "object",
					Description: "Metadata equality filters, e.g. {\"language\": \"go\"} (optional)",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *searchTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:     "search",
		Version:  "1.0.0",
		Category: "retrieval",
		Tags:     []string{"semantic-search", "corpus"},
	}
}

// UnitIDsFromMetadata recovers the id list a search result carries.
func UnitIDsFromMetadata(metadata map[string]any) []string {
	switch ids := metadata["unit_ids"].(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// lookupUnits maps ids back to cataloged units, reporting the missing ones.
func lookupUnits(catalog *corpus.Catalog, ids []string) (units []corpus.Unit, missing []string) {
	for _, id := range ids {
		if unit, ok := catalog.Get(id); ok {
			units = append(units, unit)
		} else {
			missing = append(missing, id)
		}
	}
	return units, missing
}
