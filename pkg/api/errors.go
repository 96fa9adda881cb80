package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotTriggered is returned by Engine.Run / Engine.Start when the given
// event is not in the workflow's trigger set. It is not a failure: the
// workflow simply does not activate for that event.
var ErrNotTriggered = errors.New("event does not trigger workflow")

// ValidationError reports a malformed workflow definition. It is always
// detected before any execution; a run is never started from an invalid
// definition.
type ValidationError struct {
	// Job names the offending job, when the problem is job-scoped.
	Job    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Job != "" {
		return fmt.Sprintf("invalid workflow: job %q: %s", e.Job, e.Reason)
	}
	return "invalid workflow: " + e.Reason
}

// InvalidMatrixError reports a matrix axis with an empty value list.
// The cartesian product of such a matrix would be empty, which is never
// what the author meant.
type InvalidMatrixError struct {
	Job  string
	Axis string
}

func (e *InvalidMatrixError) Error() string {
	return fmt.Sprintf("invalid matrix: job %q: axis %q has no values", e.Job, e.Axis)
}

// CyclicDependencyError reports a dependency cycle between jobs. Cycle
// holds the job names along the cycle, starting and ending with the same
// job.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}

// StepFailureError reports a step whose command or action finished with a
// non-zero exit status. It fails only the owning job instance.
type StepFailureError struct {
	Step     string
	ExitCode int
}

func (e *StepFailureError) Error() string {
	return fmt.Sprintf("step %q failed with exit code %d", e.Step, e.ExitCode)
}

// EnvironmentError reports that the execution environment for an instance
// could not be prepared, for example because a requested toolchain is not
// available. It fails only the owning job instance.
type EnvironmentError struct {
	Reason string
	Err    error
}

func (e *EnvironmentError) Error() string {
	if e.Err != nil {
		return "environment error: " + e.Reason + ": " + e.Err.Error()
	}
	return "environment error: " + e.Reason
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// IsValidation reports whether err is any of the pre-execution definition
// errors: ValidationError, InvalidMatrixError or CyclicDependencyError.
// The CLI maps these to its definition-error exit code.
func IsValidation(err error) bool {
	var ve *ValidationError
	var me *InvalidMatrixError
	var ce *CyclicDependencyError
	return errors.As(err, &ve) || errors.As(err, &me) || errors.As(err, &ce)
}
