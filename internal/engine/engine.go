// Package engine implements the conveyor orchestration engine: it
// registers workflow definitions, expands matrices into job instances,
// resolves job dependencies and schedules instances against an
// Environment with a bounded concurrency limit.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/petrijr/conveyor/internal/depgraph"
	"github.com/petrijr/conveyor/internal/persistence"
	"github.com/petrijr/conveyor/pkg/api"
)

// engineImpl is an in-process engine implementation. All cross-instance
// bookkeeping happens in a single scheduling loop per run (see
// orchestrator.go); engineImpl itself only holds shared collaborators.
type engineImpl struct {
	workflows persistence.WorkflowStore
	runs      persistence.RunStore
	env       api.Environment
	observer  api.Observer

	concurrency int
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence persistence.Persistence
	Environment api.Environment
	Observer    api.Observer

	// Concurrency is the default instance concurrency limit for runs
	// that do not set their own. Zero means api.DefaultConcurrency.
	Concurrency int
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine(env api.Environment) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngine(persistence.Persistence{
		Workflows: mem,
		Runs:      mem,
	}, env)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(env api.Environment, obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{Workflows: mem, Runs: mem},
		Environment: env,
		Observer:    obs,
	})
}

// NewSQLiteEngine returns an Engine that persists runs and run events in
// a SQLite database. Workflow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB, env api.Environment) (api.Engine, error) {
	return NewSQLiteEngineWithObserver(db, env, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, env api.Environment, obs api.Observer) (api.Engine, error) {
	runs, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	memWF := persistence.NewInMemoryStore()

	// Run events are recorded through the observer seam.
	recorder := persistence.NewEventRecorder(events)

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows: memWF,
			Runs:      runs,
			Events:    events,
		},
		Environment: env,
		Observer:    api.NewCompositeObserver(recorder, obs),
	}), nil
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = api.DefaultConcurrency
	}
	return &engineImpl{
		workflows:   cfg.Persistence.Workflows,
		runs:        cfg.Persistence.Runs,
		env:         cfg.Environment,
		observer:    obs,
		concurrency: concurrency,
	}
}

// NewEngine returns an Engine backed by the given stores and environment.
func NewEngine(p persistence.Persistence, env api.Environment) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
		Environment: env,
	})
}

func (e *engineImpl) RegisterWorkflow(def api.Workflow) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, err := depgraph.Resolve(def.Jobs); err != nil {
		return err
	}

	// Check for duplicates via the store.
	if existing, err := e.workflows.GetWorkflow(def.Name); err == nil && existing.Name != "" {
		return fmt.Errorf("workflow already registered: %s", def.Name)
	} else if err != nil && !errors.Is(err, persistence.ErrWorkflowNotFound) {
		// Unexpected store error.
		return err
	}

	return e.workflows.SaveWorkflow(def)
}

func (e *engineImpl) Run(ctx context.Context, name string, opts api.RunOptions) (*api.Run, error) {
	exec, err := e.Start(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	return exec.Wait(), nil
}

func (e *engineImpl) Start(ctx context.Context, name string, opts api.RunOptions) (api.Execution, error) {
	def, err := e.workflows.GetWorkflow(name)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, fmt.Errorf("unknown workflow: %s", name)
		}
		return nil, err
	}

	event := opts.Event
	if event == "" {
		event = "push"
	}
	if !def.TriggeredBy(event) {
		return nil, fmt.Errorf("workflow %s: event %q: %w", name, event, api.ErrNotTriggered)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = e.concurrency
	}

	return e.newExecution(ctx, def, event, concurrency)
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.Run, error) {
	run, err := e.runs.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("run not found: %s: %w", id, err)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.Run, error) {
	filter := persistence.RunFilter{
		Workflow: opts.Workflow,
		Status:   opts.Status,
	}
	return e.runs.ListRuns(filter)
}
