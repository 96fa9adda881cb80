package api

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a run or a job instance.
//
// Transitions are monotonic: PENDING -> RUNNING -> {SUCCEEDED|FAILED|CANCELLED}.
// A terminal status never changes.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s is one of the terminal statuses.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Workflow is a named collection of jobs plus the set of trigger events
// that activate it. Workflows are immutable once loaded; all runs derived
// from a workflow share the same definition read-only.
type Workflow struct {
	Name string

	// On lists the event names (e.g. "push", "pull_request") that
	// activate this workflow.
	On []string

	// Jobs are kept in declaration order so that run summaries and
	// scheduling are reproducible across runs of the same definition.
	Jobs []Job
}

// TriggeredBy reports whether the given event name activates the workflow.
func (w Workflow) TriggeredBy(event string) bool {
	for _, e := range w.On {
		if e == event {
			return true
		}
	}
	return false
}

// Job looks up a job by name. The second return value is false if no job
// with that name exists.
func (w Workflow) Job(name string) (Job, bool) {
	for _, j := range w.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

// Job is a named unit of work: an ordered sequence of steps, optionally
// parameterized by a matrix and gated on other jobs via Needs.
type Job struct {
	Name string

	// Needs names the jobs that must fully succeed before any instance
	// of this job starts. Names must resolve within the same workflow
	// and must not form a cycle.
	Needs []string

	// Matrix holds the job's axes in declaration order. The cartesian
	// product of the axis value lists defines the job's instances; a job
	// without a matrix expands to exactly one instance.
	Matrix []Axis

	Steps []Step
}

// Axis is one named matrix dimension with an ordered list of values.
type Axis struct {
	Name   string
	Values []string
}

// Step is the smallest ordered unit of execution within a job instance.
// Exactly one of Run and Uses must be set: Run holds a literal shell
// command, Uses references a versioned action ("name@version") whose
// behavior is supplied by the Environment, parameterized by With.
type Step struct {
	Name string
	Run  string
	Uses string
	With map[string]string

	// Retry, if set, makes the job runner re-attempt this step on
	// failure. The step executor itself never retries.
	Retry *RetryPolicy
}

// IsAction reports whether the step references an action rather than a
// literal command.
func (s Step) IsAction() bool { return s.Uses != "" }

// DisplayName returns the step's name, falling back to the command or
// action reference for unnamed steps.
func (s Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}
	return s.Run
}

// RetryPolicy controls how a step is retried when it fails.
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// InitialBackoff is the delay before the second attempt; each further
// attempt multiplies the delay by BackoffMultiplier (default 2.0), capped
// at MaxBackoff when set. A zero InitialBackoff retries immediately.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Validate checks the structural invariants of a workflow definition:
// non-empty name, at least one job, unique job names, every step with
// exactly one of Run/Uses, every Needs entry resolving to a job in the
// same workflow, and no empty matrix axis.
//
// Dependency cycles are detected separately by the resolver; Validate
// only checks what can be seen one job at a time.
func (w Workflow) Validate() error {
	if w.Name == "" {
		return &ValidationError{Reason: "workflow name is required"}
	}
	if len(w.Jobs) == 0 {
		return &ValidationError{Reason: "workflow must have at least one job"}
	}

	seen := make(map[string]bool, len(w.Jobs))
	for _, job := range w.Jobs {
		if job.Name == "" {
			return &ValidationError{Reason: "job name is required"}
		}
		if seen[job.Name] {
			return &ValidationError{Job: job.Name, Reason: "duplicate job name"}
		}
		seen[job.Name] = true

		if len(job.Steps) == 0 {
			return &ValidationError{Job: job.Name, Reason: "job must have at least one step"}
		}
		for _, axis := range job.Matrix {
			if axis.Name == "" {
				return &ValidationError{Job: job.Name, Reason: "matrix axis name is required"}
			}
			if len(axis.Values) == 0 {
				return &InvalidMatrixError{Job: job.Name, Axis: axis.Name}
			}
		}
		for i, step := range job.Steps {
			if step.Run == "" && step.Uses == "" {
				return &ValidationError{Job: job.Name, Reason: fmt.Sprintf("step %d needs either run or uses", i+1)}
			}
			if step.Run != "" && step.Uses != "" {
				return &ValidationError{Job: job.Name, Reason: fmt.Sprintf("step %d: run and uses are mutually exclusive", i+1)}
			}
		}
	}

	for _, job := range w.Jobs {
		for _, dep := range job.Needs {
			if !seen[dep] {
				return &ValidationError{Job: job.Name, Reason: "needs unknown job: " + dep}
			}
		}
	}

	return nil
}
