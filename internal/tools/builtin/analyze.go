package builtin

import (
	"context"
	"fmt"
	"strings"

	"sift/internal/corpus"
	"sift/internal/ports"
	"sift/internal/reason"
)

// analyzeTool sends retrieved units plus an instruction to the reasoning
// collaborator.
type analyzeTool struct {
	reasoner reason.Reasoner
	catalog  *corpus.Catalog
}

// NewAnalyze creates the analyze tool.
func NewAnalyze(reasoner reason.Reasoner, catalog *corpus.Catalog) ports.ToolExecutor {
	return &analyzeTool{reasoner: reasoner, catalog: catalog}
}

func (t *analyzeTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	instruction, _ := call.Arguments["instruction"].(string)
	if instruction == "" {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("missing or invalid 'instruction' parameter"),
		}, nil
	}

	ids := UnitIDsFromMetadata(map[string]any{"unit_ids": call.Arguments["unit_ids"]})
	if len(ids) == 0 {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("missing or empty 'unit_ids' parameter"),
		}, nil
	}

	units, missing := lookupUnits(t.catalog, ids)
	if len(units) == 0 {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("no cataloged units among: %s", strings.Join(missing, ", ")),
		}, nil
	}

	analysis, err := t.reasoner.Analyze(ctx, units, instruction)
	if err != nil {
		return &ports.ToolResult{
			CallID: call.ID,
			Error:  fmt.Errorf("analyze failed: %w", err),
		}, nil
	}

	return &ports.ToolResult{
		CallID:  call.ID,
		Content: analysis.Conclusion,
		Metadata: map[string]any{
			"confidence":    string(analysis.Confidence),
			"unit_count":    len(units),
			"missing_units": len(missing),
		},
	}, nil
}

func (t *analyzeTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "analyze",
		Description: "Run the reasoning collaborator over previously retrieved units and return its conclusion with a confidence grade.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"instruction": {
					Type:        "string",
					Description: "What to determine from the units",
				},
				"unit_ids": {
					Type:        "array",
					Description: "Unit ids to analyze, as returned by the search tool",
				},
			},
			Required: []string{"instruction", "unit_ids"},
		},
	}
}

func (t *analyzeTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:     "analyze",
		Version:  "1.0.0",
		Category: "reasoning",
		Tags:     []string{"analysis", "corpus"},
	}
}
