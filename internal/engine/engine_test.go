package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sift/internal/memory"
	"sift/internal/planner"
	"sift/internal/ports"
	"sift/internal/toolregistry"
)

// scriptedTool answers in order from a fixed script, then repeats the last
// entry.
type scriptedTool struct {
	name    string
	schema  ports.ParameterSchema
	script  []*ports.ToolResult
	calls   int
	onCall  func()
	queries []string
}

func (s *scriptedTool) Execute(_ context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	if query, ok := call.Arguments["query"].(string); ok {
		s.queries = append(s.queries, query)
	}
	if s.onCall != nil {
		s.onCall()
	}
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	result := *s.script[idx]
	result.CallID = call.ID
	return &result, nil
}

func (s *scriptedTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: s.name, Parameters: s.schema}
}

func (s *scriptedTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: s.name, Category: "test"}
}

func searchSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"query":   {Type: "string"},
			"top_k":   {Type: "integer"},
			"filters": {Type: "object"},
		},
		Required: []string{"query"},
	}
}

func analyzeSchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"instruction": {Type: "string"},
			"unit_ids":    {Type: "array"},
		},
		Required: []string{"instruction", "unit_ids"},
	}
}

func searchResult(ids ...string) *ports.ToolResult {
	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}
	return &ports.ToolResult{
		Content:  fmt.Sprintf("%d hits", len(ids)),
		Metadata: map[string]any{"unit_ids": anyIDs, "result_count": len(ids)},
	}
}

func newTestEngine(t *testing.T, config Config, tools ...ports.ToolExecutor) *Engine {
	t.Helper()
	registry := toolregistry.NewRegistry()
	for _, tool := range tools {
		require.NoError(t, registry.RegisterStatic(tool))
	}
	if config.NewRunID == nil {
		config.NewRunID = func() string { return "run-1" }
	}
	if config.Planner.NewTaskID == nil {
		n := 0
		config.Planner.NewTaskID = func() string {
			n++
			return fmt.Sprintf("task-%d", n)
		}
	}
	return New(config, toolregistry.NewExecutor(registry, nil), nil, nil)
}

func TestEngine_SearchThenAnalyze(t *testing.T) {
	search := &scriptedTool{name: "search", schema: searchSchema(), script: []*ports.ToolResult{
		searchResult("u1", "u2"),
		searchResult(),
	}}
	analyze := &scriptedTool{name: "analyze", schema: analyzeSchema(), script: []*ports.ToolResult{
		{Content: "verdict: retries are bounded", Metadata: map[string]any{"confidence": "high"}},
	}}

	e := newTestEngine(t, Config{SeedQueries: []string{"retry", "backoff"}}, search, analyze)

	result, err := e.Run(context.Background(), "audit retry handling")
	require.NoError(t, err)
	require.Equal(t, StatusDone, result.Status)
	require.Equal(t, "run-1", result.RunID)
	require.Equal(t, 3, result.Iterations)
	require.Len(t, result.Findings, 3)

	// Depth-first: the analyze child runs before the second seed.
	require.Equal(t, "retry", result.Findings[0].Query)
	require.Equal(t, []string{"u1", "u2"}, result.Findings[0].UnitIDs)
	require.Equal(t, memory.StatusOK, result.Findings[0].Status)

	require.Equal(t, "verdict: retries are bounded", result.Findings[1].Conclusion)
	require.Equal(t, memory.ConfidenceHigh, result.Findings[1].Confidence)

	require.Equal(t, "backoff", result.Findings[2].Query)
	require.Equal(t, "retrieved 0 units", result.Findings[2].Conclusion)
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() *RunResult {
		search := &scriptedTool{name: "search", schema: searchSchema(), script: []*ports.ToolResult{
			searchResult("u1"),
			searchResult(),
		}}
		analyze := &scriptedTool{name: "analyze", schema: analyzeSchema(), script: []*ports.ToolResult{
			{Content: "stable conclusion", Metadata: map[string]any{"confidence": "medium"}},
		}}
		e := newTestEngine(t, Config{SeedQueries: []string{"alpha", "beta"}}, search, analyze)
		result, err := e.Run(context.Background(), "same goal")
		require.NoError(t, err)
		return result
	}

	first, second := run(), run()
	require.Equal(t, first.Findings, second.Findings)
	require.Equal(t, first.Tasks, second.Tasks)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.Iterations, second.Iterations)
}

func TestEngine_TaskBudgetCapsRun(t *testing.T) {
	search := &scriptedTool{name: "search", schema: searchSchema(), script: []*ports.ToolResult{
		searchResult(),
	}}

	e := newTestEngine(t, Config{
		SeedQueries: []string{"a", "b", "c", "d", "e"},
		Planner:     planner.Config{MaxTasks: 3},
	}, search)

	result, err := e.Run(context.Background(), "goal")
	require.NoError(t, err)
	require.Equal(t, StatusDone, result.Status)
	require.Len(t, result.Findings, 3)
	require.Equal(t, "a", result.Findings[0].Query)
	require.Equal(t, "b", result.Findings[1].Query)
	require.Equal(t, "c", result.Findings[2].Query)
}

func TestEngine_SingleFailureIsContained(t *testing.T) {
	search := &scriptedTool{name: "search", schema: searchSchema(), script: []*ports.ToolResult{
		{Error: fmt.Errorf("index unavailable")},
		searchResult(),
	}}

	e := newTestEngine(t, Config{SeedQueries: []string{"a", "b"}}, search)

	result, err := e.Run(context.Background(), "goal")
	require.NoError(t, err)
	require.Equal(t, StatusDone, result.Status)
	require.Len(t, result.Findings, 2)
	require.Equal(t, memory.StatusFailed, result.Findings[0].Status)
	require.Equal(t, memory.ConfidenceLow, result.Findings[0].Confidence)
	require.Equal(t, memory.StatusOK, result.Findings[1].Status)
}

func TestEngine_ConsecutiveFailuresEscalate(t *testing.T) {
	search := &scriptedTool{name: "search", schema: searchSchema(), script: []*ports.ToolResult{
		{Error: fmt.Errorf("embedder down")},
	}}

	e := newTestEngine(t, Config{
		SeedQueries:            []string{"a", "b", "c", "d", "e"},
		MaxConsecutiveFailures: 3,
	}, search)

	result, err := e.Run(context.Background(), "goal")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.ErrorIs(t, result.Err, ErrRunFailed)
	require.Len(t, result.Findings, 3, "partial findings are kept on failure")
	require.Equal(t, 3, search.calls)
}

func TestEngine_IterationCap(t *testing.T) {
	// Every search spawns an analyze whose result spawns nothing, but seeds
	// alone outnumber the cap.
	search := &scriptedTool{name: "search", schema: searchSchema(), script: []*ports.ToolResult{
		searchResult(),
	}}

	e := newTestEngine(t, Config{
		SeedQueries:   []string{"a", "b", "c", "d"},
		MaxIterations: 2,
		Planner:       planner.Config{MaxTasks: 100},
	}, search)

	result, err := e.Run(context.Background(), "goal")
	require.NoError(t, err)
	require.Equal(t, StatusBudgetExhausted, result.Status)
	require.Equal(t, 2, result.Iterations)
	require.Len(t, result.Findings, 2)
}

func TestEngine_CancellationDiscardsInFlightResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	search := &scriptedTool{name: "search", schema: searchSchema(), script: []*ports.ToolResult{
		searchResult(),
	}}
	search.onCall = func() {
		// calls has not been incremented yet, so 1 means the second call.
		if search.calls == 1 {
			cancel()
		}
	}

	e := newTestEngine(t, Config{SeedQueries: []string{"a", "b", "c"}}, search)

	result, err := e.Run(ctx, "goal")
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, result.Status)
	require.Len(t, result.Findings, 1, "only results integrated before cancellation survive")
	require.Equal(t, 2, search.calls)
}

func TestEngine_EmptyGoalRejected(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.Run(context.Background(), "  ")
	require.Error(t, err)
}

// tickClock advances a fixed step on every reading.
type tickClock struct {
	now  time.Time
	step time.Duration
}

func (c *tickClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func TestEngine_TimeBudget(t *testing.T) {
	search := &scriptedTool{name: "search", schema: searchSchema(), script: []*ports.ToolResult{
		searchResult(),
	}}

	registry := toolregistry.NewRegistry()
	require.NoError(t, registry.RegisterStatic(search))

	clock := &tickClock{now: time.Unix(0, 0), step: time.Minute}
	e := New(Config{
		Budget:      30 * time.Second,
		SeedQueries: []string{"a", "b"},
		NewRunID:    func() string { return "run-1" },
	}, toolregistry.NewExecutor(registry, nil), nil, clock)

	result, err := e.Run(context.Background(), "goal")
	require.NoError(t, err)
	require.Equal(t, StatusBudgetExhausted, result.Status)
	require.Zero(t, result.Iterations)
	require.Empty(t, result.Findings)
}
