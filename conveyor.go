package conveyor

import (
	"context"
	"database/sql"

	"github.com/petrijr/conveyor/internal/engine"
	"github.com/petrijr/conveyor/internal/loader"
	"github.com/petrijr/conveyor/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Execution            = api.Execution
	Workflow             = api.Workflow
	Job                  = api.Job
	Axis                 = api.Axis
	Step                 = api.Step
	Run                  = api.Run
	JobInstance          = api.JobInstance
	StepOutcome          = api.StepOutcome
	RunOptions           = api.RunOptions
	RunListOptions       = api.RunListOptions
	Status               = api.Status
	RetryPolicy          = api.RetryPolicy
	Environment          = api.Environment
	Session              = api.Session
	ExecResult           = api.ExecResult
	ActionRef            = api.ActionRef
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	ParseActionRef       = api.ParseActionRef
	IsValidation         = api.IsValidation
)

// Re-export error types and sentinels so callers can use errors.Is and
// errors.As without importing pkg/api.

type (
	ValidationError       = api.ValidationError
	InvalidMatrixError    = api.InvalidMatrixError
	CyclicDependencyError = api.CyclicDependencyError
	StepFailureError      = api.StepFailureError
	EnvironmentError      = api.EnvironmentError
)

var ErrNotTriggered = api.ErrNotTriggered

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusSucceeded = api.StatusSucceeded
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
)

// DefaultConcurrency is the instance concurrency limit used when
// RunOptions.Concurrency is zero.
const DefaultConcurrency = api.DefaultConcurrency

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine(env Environment) Engine {
	return engine.NewInMemoryEngine(env)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(env Environment, obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(env, obs)
}

// NewSQLiteEngine returns an Engine that persists runs and run events
// in a SQLite database. Workflow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB, env Environment) (Engine, error) {
	return engine.NewSQLiteEngine(db, env)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, env Environment, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, env, obs)
}

// Definition loading

// LoadWorkflow reads and validates a YAML workflow definition from a
// file.
func LoadWorkflow(path string) (Workflow, error) {
	return loader.Load(path)
}

// ParseWorkflow parses and validates a YAML workflow definition.
func ParseWorkflow(data []byte) (Workflow, error) {
	return loader.Parse(data)
}

// Execute loads the definition at path and runs it once against env
// using a throwaway in-memory engine. It is the one-call path for
// scripts and tools that do not need run persistence or reuse.
func Execute(ctx context.Context, path string, env Environment, opts RunOptions) (*Run, error) {
	wf, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	eng := engine.NewInMemoryEngine(env)
	if err := eng.RegisterWorkflow(wf); err != nil {
		return nil, err
	}
	return eng.Run(ctx, wf.Name, opts)
}
