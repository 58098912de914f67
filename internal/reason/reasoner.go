package reason

import (
	"context"

	"sift/internal/corpus"
	"sift/internal/memory"
)

// Analysis is the reasoning collaborator's verdict over a set of units.
type Analysis struct {
	Conclusion string            `json:"conclusion"`
	Confidence memory.Confidence `json:"confidence"`
}

// Reasoner is the text-generation collaborator invoked through the analyze
// tool. It is treated as a pure, possibly-slow, possibly-failing remote call.
type Reasoner interface {
	Analyze(ctx context.Context, units []corpus.Unit, instruction string) (*Analysis, error)
}
