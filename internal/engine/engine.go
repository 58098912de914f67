package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sift/internal/logging"
	"sift/internal/memory"
	"sift/internal/planner"
	"sift/internal/ports"
	"sift/internal/toolregistry"
	"sift/internal/tools/builtin"
)

// ErrRunFailed reports an unrecoverable collaborator outage. The run result
// still carries every finding gathered before the failure.
var ErrRunFailed = errors.New("run failed")

// RunStatus is the terminal state of an analysis run.
type RunStatus string

const (
	StatusDone            RunStatus = "done"
	StatusFailed          RunStatus = "failed"
	StatusBudgetExhausted RunStatus = "budget_exhausted"
	StatusCanceled        RunStatus = "canceled"
)

// RunResult is what a run always returns: accumulated findings plus an
// explicit status, never an opaque crash.
type RunResult struct {
	RunID      string
	Status     RunStatus
	Findings   []memory.Finding
	Tasks      []planner.Task
	Iterations int
	Duration   time.Duration
	Err        error
}

// Config holds execution loop configuration
type Config struct {
	// MaxIterations caps plan/act cycles (default: 16).
	MaxIterations int

	// Budget bounds wall-clock time per run; zero means no time budget.
	Budget time.Duration

	// TopK passed to search tasks (default: retriever default).
	TopK int

	// SeedQueries open the run; empty means the goal itself.
	SeedQueries []string

	// MaxConsecutiveFailures escalates to run failure once this many tool
	// calls in a row produce failed findings (default: 3).
	MaxConsecutiveFailures int

	// Planner carries the task budget and id minting policy.
	Planner planner.Config

	// NewRunID mints run identifiers. Defaults to random UUIDs.
	NewRunID func() string
}

// Engine drives planner, executor and memory to convergence. One engine may
// serve many concurrent runs; each Run call builds its own planner, memory
// and coverage set, and runs logically single-threaded.
type Engine struct {
	config   Config
	executor *toolregistry.Executor
	logger   logging.Logger
	clock    ports.Clock
}

// New creates an engine over the given tool executor.
func New(config Config, executor *toolregistry.Executor, logger logging.Logger, clock ports.Clock) *Engine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = 16
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = 3
	}
	if config.NewRunID == nil {
		config.NewRunID = uuid.NewString
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Engine{
		config:   config,
		executor: executor,
		logger:   logging.OrNop(logger),
		clock:    clock,
	}
}

// Run executes one analysis: plan, act, observe, integrate, repeat. The loop
// stops when the planner is done, the iteration cap or time budget is hit,
// or the context is canceled. Cancellation is cooperative: it is observed
// between iterations, and an in-flight tool result is discarded rather than
// integrated.
func (e *Engine) Run(ctx context.Context, goal string) (*RunResult, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("empty goal")
	}

	runID := e.config.NewRunID()
	mem := memory.New()
	plan := planner.New(e.config.Planner, mem, e.logger)
	if err := plan.Start(goal, e.config.SeedQueries); err != nil {
		return nil, err
	}

	e.logger.Info("run %s started: %q", runID, goal)
	start := e.clock.Now()

	status := StatusDone
	iterations := 0
	consecutiveFailures := 0

loop:
	for {
		if ctx.Err() != nil {
			status = StatusCanceled
			break
		}
		if e.config.Budget > 0 && e.clock.Now().Sub(start) >= e.config.Budget {
			e.logger.Info("run %s: time budget exhausted after %d iterations", runID, iterations)
			status = StatusBudgetExhausted
			break
		}
		if iterations >= e.config.MaxIterations {
			e.logger.Info("run %s: iteration cap reached", runID)
			status = StatusBudgetExhausted
			break
		}

		task, ok, err := plan.Next()
		if err != nil {
			plan.Fail(err)
			status = StatusFailed
			break
		}
		if !ok {
			// Planner reached Done: goal satisfied or task budget spent
			break
		}
		iterations++

		result, invokeErr := e.executor.Invoke(ctx, e.callForTask(runID, task))
		if ctx.Err() != nil {
			// Discard the in-flight result; memory keeps only what was
			// integrated before cancellation.
			status = StatusCanceled
			break
		}

		finding := e.findingFor(task, result, invokeErr)
		if finding.Status == memory.StatusFailed {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		if err := plan.Integrate(finding); err != nil {
			plan.Fail(err)
			status = StatusFailed
			break
		}

		if consecutiveFailures >= e.config.MaxConsecutiveFailures {
			outage := fmt.Errorf("%w: %d consecutive tool failures", ErrRunFailed, consecutiveFailures)
			plan.Fail(outage)
			status = StatusFailed
			break loop
		}
	}

	if plan.State() == planner.StateFailed {
		status = StatusFailed
	}

	result := &RunResult{
		RunID:      runID,
		Status:     status,
		Findings:   mem.Query(nil),
		Tasks:      plan.Tasks(),
		Iterations: iterations,
		Duration:   e.clock.Now().Sub(start),
		Err:        plan.Err(),
	}
	e.logger.Info("run %s finished: status=%s findings=%d iterations=%d",
		runID, result.Status, len(result.Findings), result.Iterations)
	return result, nil
}

// callForTask maps a planned task onto a tool invocation.
func (e *Engine) callForTask(runID string, task *planner.Task) ports.ToolCall {
	call := ports.ToolCall{
		ID:           task.ID,
		RunID:        runID,
		TaskID:       task.ID,
		ParentTaskID: task.ParentID,
	}

	switch task.Kind {
	case planner.KindAnalyze:
		call.Name = "analyze"
		unitIDs := make([]any, len(task.UnitIDs))
		for i, id := range task.UnitIDs {
			unitIDs[i] = id
		}
		call.Arguments = map[string]any{
			"instruction": task.Goal,
			"unit_ids":    unitIDs,
		}
	default:
		call.Name = "search"
		call.Arguments = map[string]any{"query": task.Goal}
		if e.config.TopK > 0 {
			call.Arguments["top_k"] = e.config.TopK
		}
	}
	return call
}

// findingFor wraps a tool outcome into a finding. Errors local to one call
// are contained here as failed findings; they never abort the run on their
// own.
func (e *Engine) findingFor(task *planner.Task, result *ports.ToolResult, invokeErr error) memory.Finding {
	finding := memory.Finding{
		TaskID: task.ID,
		Query:  task.Goal,
	}

	if invokeErr != nil {
		finding.Status = memory.StatusFailed
		finding.Conclusion = invokeErr.Error()
		finding.Confidence = memory.ConfidenceLow
		return finding
	}
	if result.Error != nil {
		finding.Status = memory.StatusFailed
		finding.Conclusion = result.Error.Error()
		finding.Confidence = memory.ConfidenceLow
		return finding
	}

	switch task.Kind {
	case planner.KindAnalyze:
		finding.UnitIDs = append([]string(nil), task.UnitIDs...)
		finding.Conclusion = result.Content
		finding.Confidence = memory.Confidence(stringFromMetadata(result.Metadata, "confidence", string(memory.ConfidenceLow)))
		finding.Status = memory.StatusOK
		if missing, ok := result.Metadata["missing_units"].(int); ok && missing > 0 {
			finding.Status = memory.StatusPartial
		}
	default:
		finding.UnitIDs = builtin.UnitIDsFromMetadata(result.Metadata)
		finding.Conclusion = fmt.Sprintf("retrieved %d units", len(finding.UnitIDs))
		finding.Confidence = memory.ConfidenceHigh
		finding.Status = memory.StatusOK
	}
	return finding
}

func stringFromMetadata(metadata map[string]any, key, fallback string) string {
	if value, ok := metadata[key].(string); ok && value != "" {
		return value
	}
	return fallback
}
