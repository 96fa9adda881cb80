package api

import "context"

// DefaultConcurrency is the instance concurrency limit used when
// RunOptions.Concurrency is zero.
const DefaultConcurrency = 4

// RunOptions controls one activation of a workflow.
type RunOptions struct {
	// Event is the trigger event name; it must be in the workflow's
	// trigger set. Empty means "push".
	Event string

	// Concurrency caps how many job instances may hold RUNNING status
	// simultaneously. Zero means DefaultConcurrency.
	Concurrency int
}

// Execution is a handle on an in-flight run. Cancel stops the scheduler
// from admitting new instances and requests cancellation of running
// ones; already-terminal instances are unaffected.
type Execution interface {
	// Run returns the run owned by this execution. Safe to call at any
	// time; the returned value is only safe to inspect concurrently
	// with execution through the engine's stores or after Wait.
	Run() *Run

	// Cancel requests cooperative cancellation. It is idempotent.
	Cancel()

	// Wait blocks until the run reaches a terminal status and returns
	// it.
	Wait() *Run
}

// RunListOptions filters ListRuns. Zero values mean "no filter".
type RunListOptions struct {
	Workflow string
	Status   Status
}

// Engine is the high-level orchestration API: it validates and registers
// workflow definitions, expands matrices, resolves dependencies and
// schedules job instances against an Environment.
type Engine interface {
	// RegisterWorkflow validates a definition (including dependency
	// cycle detection) and registers it by name.
	RegisterWorkflow(def Workflow) error

	// Run activates the named workflow for the given event and blocks
	// until the run is terminal. The returned run is non-nil whenever a
	// run was started, even if it failed; the error reports
	// pre-execution problems (unknown workflow, ErrNotTriggered,
	// validation errors).
	Run(ctx context.Context, name string, opts RunOptions) (*Run, error)

	// Start activates the named workflow asynchronously and returns a
	// handle exposing cancellation.
	Start(ctx context.Context, name string, opts RunOptions) (Execution, error)

	// GetRun looks up a finished or in-flight run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs matching the given options.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*Run, error)
}
