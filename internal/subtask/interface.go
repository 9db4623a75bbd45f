// Package subtask builds solution entries from manifest specs.
package subtask

import (
	v1 "github.com/kination/stagehand/api/v1"
	"github.com/kination/stagehand/internal/task"
)

// Factory builds a solution entry for one manifest subtask.
// Different factories handle different subtask types.
type Factory interface {
	// Type returns the subtask type(s) this factory handles
	Type() []v1.SubtaskType

	// Build returns the solution entry for the manifest subtask
	Build(spec v1.SubtaskSpec) (task.SubtaskSpec, error)
}
