package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"sift/internal/ports"
)

// fakeTool records invocations and replies with a canned result.
type fakeTool struct {
	name    string
	schema  ports.ParameterSchema
	result  *ports.ToolResult
	err     error
	invoked int
}

func (f *fakeTool) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	f.invoked++
	if f.err != nil {
		return nil, f.err
	}
	result := *f.result
	result.CallID = call.ID
	return &result, nil
}

func (f *fakeTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: f.name, Parameters: f.schema}
}

func (f *fakeTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: f.name, Category: "test"}
}

func newFakeTool(name string) *fakeTool {
	return &fakeTool{
		name: name,
		schema: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string"},
				"top_k": {Type: "integer"},
				"mode":  {Type: "string", Enum: []any{"fast", "full"}},
				"ids":   {Type: "array"},
			},
			Required: []string{"query"},
		},
		result: &ports.ToolResult{Content: "ok"},
	}
}

func TestRegistry_StaticAndDynamicTiers(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterStatic(newFakeTool("search")))
	require.NoError(t, r.Register(newFakeTool("scratch")))

	// Names collide across tiers.
	require.Error(t, r.RegisterStatic(newFakeTool("search")))
	require.Error(t, r.Register(newFakeTool("search")))
	require.Error(t, r.Register(newFakeTool("scratch")))

	defs := r.List()
	require.Len(t, defs, 2)
	require.Equal(t, "scratch", defs[0].Name)
	require.Equal(t, "search", defs[1].Name)

	require.Error(t, r.Unregister("search"), "built-ins cannot be unregistered")
	require.NoError(t, r.Unregister("scratch"))
	require.NoError(t, r.Unregister("scratch"), "unregistering an absent tool is a no-op")

	_, err := r.Get("scratch")
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestExecutor_UnknownTool(t *testing.T) {
	e := NewExecutor(NewRegistry(), nil)

	_, err := e.Invoke(context.Background(), ports.ToolCall{ID: "c1", Name: "nope"})
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestExecutor_ArgumentValidation(t *testing.T) {
	tool := newFakeTool("search")
	r := NewRegistry()
	require.NoError(t, r.RegisterStatic(tool))
	e := NewExecutor(r, nil)

	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{"top_k": 3}},
		{"unknown argument", map[string]any{"query": "x", "bogus": true}},
		{"wrong type", map[string]any{"query": 42}},
		{"non-integer float", map[string]any{"query": "x", "top_k": 2.5}},
		{"enum violation", map[string]any{"query": "x", "mode": "slow"}},
		{"not an array", map[string]any{"query": "x", "ids": "u1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Invoke(context.Background(), ports.ToolCall{ID: "c1", Name: "search", Arguments: tc.args})
			require.ErrorIs(t, err, ErrInvalidArguments)
		})
	}
	require.Zero(t, tool.invoked, "handler never runs on invalid arguments")
}

func TestExecutor_Dispatch(t *testing.T) {
	tool := newFakeTool("search")
	r := NewRegistry()
	require.NoError(t, r.RegisterStatic(tool))
	e := NewExecutor(r, nil)

	result, err := e.Invoke(context.Background(), ports.ToolCall{
		ID:   "call-7",
		Name: "search",
		Arguments: map[string]any{
			"query": "retry handling",
			"top_k": float64(5), // JSON-decoded integers arrive as float64
			"mode":  "fast",
			"ids":   []any{"u1"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "call-7", result.CallID)
	require.Equal(t, "ok", result.Content)
	require.Equal(t, 1, tool.invoked)
}

func TestExecutor_HandlerFaultPropagates(t *testing.T) {
	tool := newFakeTool("search")
	cause := errors.New("handler panic contained upstream")
	tool.err = cause

	r := NewRegistry()
	require.NoError(t, r.RegisterStatic(tool))
	e := NewExecutor(r, nil)

	_, err := e.Invoke(context.Background(), ports.ToolCall{
		ID: "c1", Name: "search", Arguments: map[string]any{"query": "x"},
	})
	require.ErrorIs(t, err, cause)
}

func TestExecutor_ToolLevelErrorStaysInResult(t *testing.T) {
	tool := newFakeTool("search")
	tool.result = &ports.ToolResult{Error: fmt.Errorf("no matches in corpus")}

	r := NewRegistry()
	require.NoError(t, r.RegisterStatic(tool))
	e := NewExecutor(r, nil)

	result, err := e.Invoke(context.Background(), ports.ToolCall{
		ID: "c1", Name: "search", Arguments: map[string]any{"query": "x"},
	})
	require.NoError(t, err, "domain errors ride inside the result")
	require.Error(t, result.Error)
}
