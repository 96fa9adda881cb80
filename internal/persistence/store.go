package persistence

import (
	"errors"

	"github.com/petrijr/conveyor/pkg/api"
)

var (
	// ErrWorkflowNotFound is returned when a workflow definition is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")
)

// WorkflowStore handles storage of workflow definitions.
//
// Definitions are registered in-process and kept in memory; unlike runs
// they are not durable state, they are code-shaped configuration.
type WorkflowStore interface {
	SaveWorkflow(def api.Workflow) error
	GetWorkflow(name string) (api.Workflow, error)
	ListWorkflows() ([]api.Workflow, error)
}

// RunFilter is used to select runs from the store.
// Empty string / zero status mean "no filter" for that field.
type RunFilter struct {
	Workflow string
	Status   api.Status
}

// RunStore handles storage of runs and their job instances.
type RunStore interface {
	SaveRun(run *api.Run) error
	UpdateRun(run *api.Run) error
	GetRun(id string) (*api.Run, error)
	ListRuns(filter RunFilter) ([]*api.Run, error)
}
