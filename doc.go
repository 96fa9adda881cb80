// Package conveyor provides an embeddable CI workflow orchestration
// engine for Go.
//
// Conveyor takes a workflow definition (jobs with steps, matrix
// expansion and dependencies), expands each job's matrix into job
// instances, resolves the dependency graph and executes the instances
// against an Environment under a bounded concurrency limit. It runs
// fully in-process and integrates into existing services or CLI tools.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Workflow
//  2. Engine
//  3. Environment
//  4. Run
//  5. Observer
//
// # Workflow
//
// A Workflow is a named definition with trigger events and jobs. Each
// job has ordered steps (shell commands or versioned actions), optional
// dependencies on other jobs and an optional matrix. Definitions come
// from YAML files (LoadWorkflow) or from code (NewWorkflow and the
// fluent builder).
//
// # Engine
//
// The Engine validates and registers definitions, activates them for a
// trigger event and owns run state:
//   - start runs synchronously (Run) or asynchronously (Start)
//   - cancel in-flight runs through the Execution handle
//   - read run state and history (GetRun, ListRuns)
//
// Engines can be backed by different storage:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability, including a run event history)
//
// # Environment
//
// The Environment is the collaborator that actually executes step
// commands and actions. The engine never shells out itself; it hands
// each job instance a Session and interprets the results. This keeps
// execution pluggable: a real shell environment, a container runtime
// or a test fake all satisfy the same two interfaces.
//
// # Run
//
// A Run is one activation of a workflow: its job instances, their step
// outcomes and a terminal status. A run succeeds only if every instance
// succeeds; a failed dependency cancels everything downstream of it,
// and the rest of the run still completes.
//
// # Observer
//
// Observers receive run, instance and step lifecycle callbacks. The
// package ships a logging observer (slog), an atomic metrics collector
// and a composite to fan out to several at once.
package conveyor
