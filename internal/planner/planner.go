package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sift/internal/logging"
	"sift/internal/memory"
)

// State names a planner state-machine state.
type State string

const (
	StateIdle           State = "idle"
	StateProposing      State = "proposing"
	StateAwaitingResult State = "awaiting_result"
	StateIntegrating    State = "integrating"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// ErrInvalidTransition reports a call that is illegal in the current state.
var ErrInvalidTransition = errors.New("invalid planner transition")

// Config holds planning configuration
type Config struct {
	// MaxTasks bounds how many tasks one run may issue (default: 8).
	MaxTasks int

	// NewTaskID mints task identifiers. Defaults to random UUIDs; tests and
	// reproducible runs inject a counter instead.
	NewTaskID func() string
}

// Planner decides the next sub-task for a goal. It is an explicit state
// machine with a deterministic selection policy: pending tasks are proposed
// in task-tree order (children directly after their parent), then insertion
// order. It must not be driven concurrently; each run owns one planner.
type Planner struct {
	config Config
	logger logging.Logger

	state   State
	goal    string
	mem     *memory.Memory
	pending []*Task
	tasks   []*Task
	current *Task
	issued  int
	runErr  error
}

// New creates a planner in the Idle state.
func New(config Config, mem *memory.Memory, logger logging.Logger) *Planner {
	if config.MaxTasks <= 0 {
		config.MaxTasks = 8
	}
	if config.NewTaskID == nil {
		config.NewTaskID = uuid.NewString
	}
	return &Planner{
		config: config,
		logger: logging.OrNop(logger),
		state:  StateIdle,
		mem:    mem,
	}
}

// State returns the current state.
func (p *Planner) State() State { return p.state }

// Err returns the terminal error after a transition to Failed.
func (p *Planner) Err() error { return p.runErr }

// Tasks returns the task tree in creation order.
func (p *Planner) Tasks() []Task {
	out := make([]Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, *t)
	}
	return out
}

// Start seeds the run: Idle -> Proposing. Each seed query becomes a pending
// search task, in declared order; with no seeds the goal itself is the
// single opening query.
func (p *Planner) Start(goal string, seeds []string) error {
	if p.state != StateIdle {
		return fmt.Errorf("%w: Start in state %s", ErrInvalidTransition, p.state)
	}
	if strings.TrimSpace(goal) == "" {
		return fmt.Errorf("empty goal")
	}

	p.goal = goal
	if len(seeds) == 0 {
		seeds = []string{goal}
	}
	for _, seed := range seeds {
		p.enqueue(&Task{
			ID:     p.config.NewTaskID(),
			Goal:   seed,
			Kind:   KindSearch,
			Status: TaskPending,
		}, false)
	}

	p.state = StateProposing
	p.logger.Debug("planner started: goal=%q seeds=%d", goal, len(seeds))
	return nil
}

// Next proposes the next uncovered task: Proposing -> AwaitingResult. It
// returns (nil, false, nil) after transitioning to Done when the task budget
// is exhausted or no uncovered angle remains.
func (p *Planner) Next() (*Task, bool, error) {
	if p.state != StateProposing {
		return nil, false, fmt.Errorf("%w: Next in state %s", ErrInvalidTransition, p.state)
	}

	for len(p.pending) > 0 {
		if p.issued >= p.config.MaxTasks {
			p.state = StateDone
			p.logger.Info("task budget exhausted after %d tasks", p.issued)
			return nil, false, nil
		}

		task := p.pending[0]
		p.pending = p.pending[1:]

		if p.mem.HasCovered(p.fingerprint(task)) {
			task.Status = TaskDone
			p.logger.Debug("skipping covered task %s: %q", task.ID, task.Goal)
			continue
		}

		task.Status = TaskInProgress
		p.current = task
		p.issued++
		p.state = StateAwaitingResult
		return task, true, nil
	}

	p.state = StateDone
	p.logger.Info("no uncovered angle left after %d tasks", p.issued)
	return nil, false, nil
}

// Integrate consumes the finding for the in-flight task: AwaitingResult ->
// Integrating -> Proposing. The finding lands in memory, its fingerprint in
// the coverage set, and a successful search spawns a child analyze task over
// the retrieved units.
func (p *Planner) Integrate(finding memory.Finding) error {
	if p.state != StateAwaitingResult {
		return fmt.Errorf("%w: Integrate in state %s", ErrInvalidTransition, p.state)
	}
	if p.current == nil || finding.TaskID != p.current.ID {
		return fmt.Errorf("finding for unexpected task %q", finding.TaskID)
	}

	p.state = StateIntegrating
	p.mem.Append(finding)
	p.mem.MarkCovered(p.fingerprint(p.current))

	switch finding.Status {
	case memory.StatusFailed:
		p.current.Status = TaskFailed
	default:
		p.current.Status = TaskDone
	}

	if p.current.Kind == KindSearch && finding.Status == memory.StatusOK && len(finding.UnitIDs) > 0 {
		p.enqueue(&Task{
			ID:       p.config.NewTaskID(),
			Goal:     fmt.Sprintf("Assess, with respect to the goal %q, the material retrieved for %q", p.goal, p.current.Goal),
			Kind:     KindAnalyze,
			Status:   TaskPending,
			ParentID: p.current.ID,
			UnitIDs:  append([]string(nil), finding.UnitIDs...),
		}, true)
	}

	p.current = nil
	p.state = StateProposing
	return nil
}

// Fail is terminal from any non-terminal state. Findings gathered so far
// stay in memory as a partial result.
func (p *Planner) Fail(err error) {
	if p.state == StateDone || p.state == StateFailed {
		return
	}
	p.runErr = err
	p.state = StateFailed
	p.logger.Error("planner failed: %v", err)
}

// enqueue appends a task; child tasks go to the front so the tree is walked
// depth-first, keeping tie-breaks deterministic.
func (p *Planner) enqueue(task *Task, child bool) {
	p.tasks = append(p.tasks, task)
	if child {
		p.pending = append([]*Task{task}, p.pending...)
		return
	}
	p.pending = append(p.pending, task)
}

// fingerprint identifies a task's intent for coverage. Analyze tasks over
// different unit sets are distinct intents even under the same instruction.
func (p *Planner) fingerprint(task *Task) string {
	intent := task.Goal
	if len(task.UnitIDs) > 0 {
		intent += "|" + strings.Join(task.UnitIDs, ",")
	}
	return memory.Fingerprint(string(task.Kind), intent)
}
