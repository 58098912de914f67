package planner

// TaskKind selects which tool a task maps to.
type TaskKind string

const (
	KindSearch  TaskKind = "search"
	KindAnalyze TaskKind = "analyze"
)

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of planned work. Tasks form a tree: a search task may
// spawn a child analyze task over its retrieved units. The execution loop
// owns the tree; the planner only reads and proposes.
type Task struct {
	ID       string     `json:"id"`
	Goal     string     `json:"goal"`
	Kind     TaskKind   `json:"kind"`
	Status   TaskStatus `json:"status"`
	ParentID string     `json:"parent_id,omitempty"`
	UnitIDs  []string   `json:"unit_ids,omitempty"`
}
