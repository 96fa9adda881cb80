package engine

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/conveyor/internal/matrix"
	"github.com/petrijr/conveyor/pkg/api"
)

// runInstance drives one job instance on the calling worker goroutine:
// it prepares an environment session, executes the steps strictly in
// order with fail-fast on the first failure, and leaves the instance in a
// terminal status. inst must be private to the calling goroutine; the
// scheduler owns the canonical instance and applies reported state
// itself. onRunning, if non-nil, is invoked once after the transition to
// RUNNING so the scheduler can record it.
func (e *engineImpl) runInstance(ctx context.Context, run *api.Run, job api.Job, inst *api.JobInstance, onRunning func()) {
	// Cancellation is observed at instance-start time: a queued
	// instance never begins executing after a cancel request.
	if ctx.Err() != nil {
		now := time.Now()
		inst.Status = api.StatusCancelled
		inst.Err = context.Canceled
		inst.StartedAt = now
		inst.FinishedAt = now
		return
	}

	inst.Status = api.StatusRunning
	inst.StartedAt = time.Now()
	if onRunning != nil {
		onRunning()
	}
	e.observer.OnInstanceStart(ctx, run, inst)

	defer func() {
		inst.FinishedAt = time.Now()
	}()

	session, err := e.env.Prepare(ctx, run, inst)
	if err != nil {
		var envErr *api.EnvironmentError
		if !errors.As(err, &envErr) {
			err = &api.EnvironmentError{Reason: "prepare session", Err: err}
		}
		inst.Status = api.StatusFailed
		inst.Err = err
		return
	}
	defer session.Close()

	for i, step := range job.Steps {
		// Step boundaries are the cooperative cancellation points
		// within an instance.
		if ctx.Err() != nil {
			inst.Status = api.StatusCancelled
			inst.Err = context.Canceled
			return
		}

		bound := matrix.Interpolate(step, inst)
		outcome, stepErr := e.executeStep(ctx, run, inst, session, bound, i)
		inst.Steps = append(inst.Steps, outcome)

		if stepErr != nil {
			// A step interrupted by cancellation must not masquerade
			// as an ordinary failure.
			if ctx.Err() != nil {
				inst.Status = api.StatusCancelled
				inst.Err = context.Canceled
				return
			}
			inst.Status = api.StatusFailed
			inst.Err = stepErr
			return
		}
	}

	inst.Status = api.StatusSucceeded
}

// executeStep runs a single step, applying the step's retry policy. The
// underlying execution (executeOnce) never retries on its own; all retry
// bookkeeping lives here, adapted per attempt with exponential backoff.
func (e *engineImpl) executeStep(
	ctx context.Context,
	run *api.Run,
	inst *api.JobInstance,
	session api.Session,
	step api.Step,
	index int,
) (api.StepOutcome, error) {
	name := step.DisplayName()

	// Determine max attempts for this step.
	maxAttempts := 1
	var (
		backoff    time.Duration // current backoff value
		maxBackoff time.Duration
		multiplier float64
	)

	if step.Retry != nil {
		if step.Retry.MaxAttempts > 0 {
			maxAttempts = step.Retry.MaxAttempts
		}
		backoff = step.Retry.InitialBackoff
		maxBackoff = step.Retry.MaxBackoff

		// Backoff multiplier defaults to 2.0 (standard exponential backoff).
		multiplier = step.Retry.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
	}

	outcome := api.StepOutcome{Step: name}
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			outcome.Attempts = attempt - 1
			outcome.Err = ctx.Err().Error()
			return outcome, ctx.Err()
		default:
		}

		e.observer.OnStepStart(ctx, run, inst, name, index)

		res, execErr := executeOnce(ctx, session, step)
		stepErr := classify(name, res, execErr)

		e.observer.OnStepCompleted(ctx, run, inst, name, index, stepErr, res.Duration)

		outcome.ExitCode = res.ExitCode
		outcome.Output = res.Output
		outcome.Duration = res.Duration
		outcome.Attempts = attempt

		if stepErr == nil {
			return outcome, nil
		}
		lastErr = stepErr

		if attempt == maxAttempts {
			outcome.Err = lastErr.Error()
			return outcome, lastErr
		}

		// Wait before the next attempt, if backoff is configured.
		if backoff > 0 {
			delay := backoff
			if maxBackoff > 0 && delay > maxBackoff {
				delay = maxBackoff
			}

			select {
			case <-ctx.Done():
				outcome.Err = ctx.Err().Error()
				return outcome, ctx.Err()
			case <-time.After(delay):
			}

			next := time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && next > maxBackoff {
				backoff = maxBackoff
			} else {
				backoff = next
			}
		}
	}

	outcome.Err = lastErr.Error()
	return outcome, lastErr
}

// executeOnce performs exactly one execution of the step through the
// environment session: the literal command for command steps, the
// resolved action for action steps. No retry, no policy.
func executeOnce(ctx context.Context, session api.Session, step api.Step) (api.ExecResult, error) {
	if step.IsAction() {
		ref, err := api.ParseActionRef(step.Uses)
		if err != nil {
			return api.ExecResult{ExitCode: -1}, &api.EnvironmentError{Reason: err.Error()}
		}
		return session.RunAction(ctx, ref, step.With)
	}
	return session.RunCommand(ctx, step.Run)
}

// classify converts an execution result into the step-level error
// taxonomy: environment errors pass through, a non-zero exit status
// becomes *api.StepFailureError, everything else is success.
func classify(step string, res api.ExecResult, execErr error) error {
	if execErr != nil {
		var envErr *api.EnvironmentError
		if errors.As(execErr, &envErr) {
			return execErr
		}
		return &api.EnvironmentError{Reason: "execute step " + step, Err: execErr}
	}
	if res.ExitCode != 0 {
		return &api.StepFailureError{Step: step, ExitCode: res.ExitCode}
	}
	return nil
}
