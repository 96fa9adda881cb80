package api

import (
	"strings"
	"time"
)

// Run is one activation of a workflow by a trigger event. It owns all job
// instances it spawned and is the unit of overall pass/fail.
type Run struct {
	ID       string
	Workflow string
	Event    string
	Status   Status

	// Instances holds every job instance spawned by this run, in job
	// declaration order and, within a job, in matrix expansion order.
	Instances []*JobInstance

	StartedAt  time.Time
	FinishedAt time.Time
}

// Instance looks up a job instance by its composite key.
func (r *Run) Instance(key string) (*JobInstance, bool) {
	for _, inst := range r.Instances {
		if inst.Key == key {
			return inst, true
		}
	}
	return nil, false
}

// InstancesOf returns the instances belonging to the named job, in
// expansion order.
func (r *Run) InstancesOf(job string) []*JobInstance {
	var out []*JobInstance
	for _, inst := range r.Instances {
		if inst.JobName == job {
			out = append(out, inst)
		}
	}
	return out
}

// JobInstance is a job bound to one concrete combination of matrix values.
// It exclusively owns the outcomes of its steps.
type JobInstance struct {
	// Key is the stable composite identifier of the instance:
	// the job name followed by axis=value pairs in axis declaration
	// order, e.g. "test/toolchain=stable".
	Key string

	// Name is the human-readable display name, e.g. "test (stable)".
	Name string

	JobName string

	// Axes and Values carry the bound matrix combination; Axes preserves
	// declaration order and Values maps axis name to the bound value.
	Axes   []string
	Values map[string]string

	Status Status

	// Steps records the outcome of each executed step, in order. Steps
	// skipped by fail-fast or cancellation do not appear.
	Steps []StepOutcome

	// Err holds the instance-local failure, if any: a *StepFailureError
	// or *EnvironmentError, or a skip reason for propagated
	// cancellation. It never crosses instance boundaries.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

// MatrixValue returns the value bound to the named axis, or "".
func (ji *JobInstance) MatrixValue(axis string) string {
	if ji.Values == nil {
		return ""
	}
	return ji.Values[axis]
}

// FailedStep returns the outcome of the step that failed this instance,
// if any.
func (ji *JobInstance) FailedStep() (StepOutcome, bool) {
	for _, so := range ji.Steps {
		if so.ExitCode != 0 || so.Err != "" {
			return so, true
		}
	}
	return StepOutcome{}, false
}

// StepOutcome records what happened when one step executed.
type StepOutcome struct {
	Step     string
	ExitCode int
	Output   string
	Duration time.Duration

	// Attempts counts how many times the step ran, including the final
	// attempt. It exceeds 1 only when a retry policy is set.
	Attempts int

	// Err carries the failure message for non-exit-code errors
	// (environment problems, cancellation). Stored as a string so
	// outcomes survive serialization.
	Err string
}

// OutputTail returns at most n trailing lines of the captured output,
// for compact failure reports.
func (so StepOutcome) OutputTail(n int) string {
	out := strings.TrimRight(so.Output, "\n")
	if out == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(out, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
